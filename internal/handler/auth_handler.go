package handler

import (
	"net/http"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// POST /v1/auth/token
// ============================================================

func issueTokenHandler(auth TokenAuthority, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.IssueToken")
		defer span.End()

		if auth == nil {
			writeError(w, http.StatusServiceUnavailable, "admin auth not configured")
			return
		}

		var req domain.TokenRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := auth.IssueToken(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
