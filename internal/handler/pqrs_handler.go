package handler

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// PQRS records: admin
// ============================================================

// GET /v1/pqrs?departamento=TEC&page=1&page_size=20
func listRecordsHandler(records RecordQuery, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.ListRecords")
		defer span.End()

		if records == nil {
			writeError(w, http.StatusServiceUnavailable, "record store not configured")
			return
		}

		dept := r.URL.Query().Get("departamento")
		page, pageSize := parsePagination(r)
		span.SetAttributes(attribute.String("pqrs.department", dept))

		resp, err := records.List(ctx, dept, page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GET /v1/pqrs/pending
func pendingRecordsHandler(records RecordQuery, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if records == nil {
			writeError(w, http.StatusServiceUnavailable, "record store not configured")
			return
		}

		pending := records.Pending(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"data":  nonNil(pending),
			"total": len(pending),
		})
	}
}

// GET /v1/pqrs/stats
func statsHandler(records RecordQuery, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if records == nil {
			writeError(w, http.StatusServiceUnavailable, "record store not configured")
			return
		}
		writeJSON(w, http.StatusOK, records.Stats(r.Context()))
	}
}

// POST /v1/pqrs/sweep: runs the pending-alert sweep and reports its outcome.
func sweepHandler(sweeper Sweeper, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.Sweep")
		defer span.End()

		if sweeper == nil {
			writeError(w, http.StatusServiceUnavailable, "notifier not configured")
			return
		}

		report := sweeper.SweepPending(ctx)
		logger.Info("manual sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("alerted", report.Alerted),
			zap.Int("failed", report.Failed),
			zap.String("admin", AdminSubjectFromContext(ctx)),
		)
		writeJSON(w, http.StatusOK, report)
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
