package service

import (
	"context"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/resilience"
	"github.com/boddenberg/pqrs-intake-bot/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var notifyTracer = otel.Tracer("service/notifier")

// NotifierConfig bounds the coordinator's outbound calls.
type NotifierConfig struct {
	SinkTimeout time.Duration // per sink call; a timeout counts as a failure
	SweepPause  time.Duration // between records during the pending sweep
}

// DispatchResult reports what happened to one freshly stored record.
type DispatchResult struct {
	SimilarCount int
	Alerted      bool
	Emailed      bool
}

// SweepReport summarizes one pending-record sweep.
type SweepReport struct {
	Checked int `json:"checked"`
	Alerted int `json:"alerted"`
	Marked  int `json:"markedWithoutAlert"`
	Failed  int `json:"failed"`
}

// NotificationCoordinator fans a stored record out to the chat-alert sink
// (only when near-duplicates exist) and the email sink (always).
// Sink calls are never retried inline; the pending sweep is the only retry
// path and it covers chat alerts only.
type NotificationCoordinator struct {
	store   port.RecordStore
	index   *SimilarityIndex
	alerts  port.AlertSink
	email   port.EmailSink
	cfg     NotifierConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewNotificationCoordinator wires the coordinator. email may be nil when
// no email provider is configured.
func NewNotificationCoordinator(
	store port.RecordStore,
	index *SimilarityIndex,
	alerts port.AlertSink,
	email port.EmailSink,
	cfg NotifierConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *NotificationCoordinator {
	return &NotificationCoordinator{
		store:   store,
		index:   index,
		alerts:  alerts,
		email:   email,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// ============================================================
// Live path
// ============================================================

// Dispatch notifies the sinks about rec, which must already be stored.
// Alert and email run concurrently and fail independently; failures are
// logged and counted, never returned.
func (n *NotificationCoordinator) Dispatch(ctx context.Context, rec domain.ComplaintRecord) DispatchResult {
	ctx, span := notifyTracer.Start(ctx, "NotificationCoordinator.Dispatch")
	defer span.End()

	res := DispatchResult{SimilarCount: n.index.CountOthers(ctx, rec)}
	span.SetAttributes(
		attribute.String("pqrs.id", rec.RecordID),
		attribute.Int("pqrs.similar_count", res.SimilarCount),
	)

	var g errgroup.Group

	g.Go(func() error {
		if res.SimilarCount < 1 {
			// first occurrence: left pending, a later duplicate or the sweep settles it
			n.metrics.IncrNotification(observability.SinkAlert, observability.StatusSkipped)
			return nil
		}
		if n.sendAlert(ctx, rec, res.SimilarCount) {
			res.Alerted = true
			n.markSent(ctx, rec.RecordID)
		}
		return nil
	})

	g.Go(func() error {
		res.Emailed = n.sendEmail(ctx, rec)
		return nil
	})

	_ = g.Wait()

	n.logger.Info("pqrs notifications dispatched",
		zap.String("pqrs_id", rec.RecordID),
		zap.Int("similar_count", res.SimilarCount),
		zap.Bool("alerted", res.Alerted),
		zap.Bool("emailed", res.Emailed),
	)
	return res
}

// ============================================================
// Pending sweep: run at startup and on demand
// ============================================================

// SweepPending reconciles every record still waiting for a chat alert.
// Records with near-duplicates are alerted and marked on success; records
// without any are marked without alerting. One failure never stops the sweep.
func (n *NotificationCoordinator) SweepPending(ctx context.Context) SweepReport {
	ctx, span := notifyTracer.Start(ctx, "NotificationCoordinator.SweepPending")
	defer span.End()

	var report SweepReport
	pending := n.store.Pending(ctx)
	if len(pending) == 0 {
		n.logger.Info("sweep: no pending pqrs")
		return report
	}
	n.logger.Info("sweep: processing pending pqrs", zap.Int("count", len(pending)))

	for i, rec := range pending {
		if i > 0 {
			if err := n.sleep(ctx, n.cfg.SweepPause); err != nil {
				n.metrics.IncrSweep(observability.SweepCanceled)
				n.logger.Warn("sweep: canceled",
					zap.Int("processed", report.Checked),
					zap.Int("remaining", len(pending)-i),
				)
				break
			}
		}
		report.Checked++

		count := n.index.CountOthers(ctx, rec)
		if count < 1 {
			if err := n.store.MarkSent(ctx, rec.RecordID); err != nil {
				report.Failed++
				n.metrics.IncrSweep(observability.SweepFailed)
				continue
			}
			report.Marked++
			n.metrics.IncrSweep(observability.SweepMarked)
			n.logger.Debug("sweep: marked without alert", zap.String("pqrs_id", rec.RecordID))
			continue
		}

		if !n.sendAlert(ctx, rec, count) {
			report.Failed++
			n.metrics.IncrSweep(observability.SweepFailed)
			continue
		}
		if err := n.store.MarkSent(ctx, rec.RecordID); err != nil {
			report.Failed++
			n.metrics.IncrSweep(observability.SweepFailed)
			continue
		}
		report.Alerted++
		n.metrics.IncrSweep(observability.SweepAlerted)
	}

	span.SetAttributes(
		attribute.Int("sweep.checked", report.Checked),
		attribute.Int("sweep.failed", report.Failed),
	)
	n.logger.Info("sweep: finished",
		zap.Int("checked", report.Checked),
		zap.Int("alerted", report.Alerted),
		zap.Int("marked", report.Marked),
		zap.Int("failed", report.Failed),
	)
	return report
}

// ============================================================
// Sink calls
// ============================================================

func (n *NotificationCoordinator) sendAlert(ctx context.Context, rec domain.ComplaintRecord, similarCount int) bool {
	alert := domain.Alert{
		RecordID:     rec.RecordID,
		Department:   rec.DepartmentName,
		Description:  rec.Description,
		SimilarCount: similarCount,
	}

	start := time.Now()
	err := resilience.CallWithTimeout(ctx, n.cfg.SinkTimeout, "telegram.alert", func(ctx context.Context) error {
		return n.alerts.SendAlert(ctx, alert)
	})
	n.metrics.RecordRequestDuration("telegram.alert", time.Since(start))

	if err != nil {
		n.metrics.IncrNotification(observability.SinkAlert, observability.StatusFailed)
		n.metrics.IncrExternalError(observability.SinkAlert)
		n.logger.Error("failed to send telegram alert",
			zap.String("pqrs_id", rec.RecordID),
			zap.Int("similar_count", similarCount),
			zap.Error(err),
		)
		return false
	}
	n.metrics.IncrNotification(observability.SinkAlert, observability.StatusSent)
	n.logger.Info("telegram alert sent",
		zap.String("pqrs_id", rec.RecordID),
		zap.Int("similar_count", similarCount),
	)
	return true
}

func (n *NotificationCoordinator) sendEmail(ctx context.Context, rec domain.ComplaintRecord) bool {
	if n.email == nil {
		n.metrics.IncrNotification(observability.SinkEmail, observability.StatusSkipped)
		return false
	}

	start := time.Now()
	err := resilience.CallWithTimeout(ctx, n.cfg.SinkTimeout, "email.send", func(ctx context.Context) error {
		return n.email.SendComplaintEmail(ctx, rec)
	})
	n.metrics.RecordRequestDuration("email.send", time.Since(start))

	if err != nil {
		n.metrics.IncrNotification(observability.SinkEmail, observability.StatusFailed)
		n.metrics.IncrExternalError(observability.SinkEmail)
		n.logger.Error("failed to send pqrs email",
			zap.String("pqrs_id", rec.RecordID),
			zap.Error(err),
		)
		return false
	}
	n.metrics.IncrNotification(observability.SinkEmail, observability.StatusSent)
	n.logger.Info("pqrs email sent", zap.String("pqrs_id", rec.RecordID))
	return true
}

func (n *NotificationCoordinator) markSent(ctx context.Context, recordID string) {
	if err := n.store.MarkSent(ctx, recordID); err != nil {
		n.logger.Error("failed to mark pqrs as sent",
			zap.String("pqrs_id", recordID),
			zap.Error(err),
		)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
