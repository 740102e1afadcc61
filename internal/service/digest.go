package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"
	"github.com/boddenberg/pqrs-intake-bot/internal/port"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var digestTracer = otel.Tracer("service/digest")

var digestCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

const digestTitle = "Resumen diario de PQRS"

// Digest announces the day's PQRS counts per department on the alert channel.
type Digest struct {
	store     port.RecordStore
	announcer port.Announcer
	timeout   time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewDigest creates the daily digest job.
func NewDigest(store port.RecordStore, announcer port.Announcer, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Digest {
	return &Digest{
		store:     store,
		announcer: announcer,
		timeout:   timeout,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source (tests).
func (d *Digest) WithClock(now func() time.Time) *Digest {
	d.now = now
	return d
}

// Summary builds the announcement body for the calendar day of day.
// It returns the body and the number of records counted.
func (d *Digest) Summary(ctx context.Context, day time.Time) (string, int) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var today []domain.ComplaintRecord
	for _, rec := range d.store.All(ctx) {
		at := rec.CreatedAt.In(day.Location())
		if !at.Before(start) && at.Before(end) {
			today = append(today, rec)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Fecha: %s\n", start.Format("02/01/2006"))
	if len(today) == 0 {
		b.WriteString("No se registraron PQRS hoy.")
		return b.String(), 0
	}

	stats := ComputeStats(today)
	fmt.Fprintf(&b, "Total: %d (pendientes de alerta: %d)\n", stats.Total, stats.AlertsPending)
	for _, dc := range stats.DepartmentCharts {
		fmt.Fprintf(&b, "\n• %s: %d", dc.Department, dc.Count)
	}
	return b.String(), len(today)
}

// Run announces today's summary once.
func (d *Digest) Run(ctx context.Context) error {
	ctx, span := digestTracer.Start(ctx, "Digest.Run")
	defer span.End()

	body, count := d.Summary(ctx, d.now())
	span.SetAttributes(attribute.Int("pqrs.count", count))

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.announcer.Announce(ctx, digestTitle, body); err != nil {
		d.metrics.IncrExternalError(observability.SinkAlert)
		return fmt.Errorf("announce digest: %w", err)
	}
	d.logger.Info("daily digest announced", zap.Int("records", count))
	return nil
}

// Schedule registers Run on a cron expression and starts the scheduler.
// The returned function stops it and waits for a running job to finish.
func (d *Digest) Schedule(expr string) (func(), error) {
	expr = strings.Join(strings.Fields(expr), " ")
	if _, err := digestCronParser.Parse(expr); err != nil {
		return nil, fmt.Errorf("parse cron expression: %w", err)
	}

	c := cron.New(cron.WithParser(digestCronParser))
	if _, err := c.AddFunc(expr, func() {
		if err := d.Run(context.Background()); err != nil {
			d.logger.Error("daily digest failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule digest: %w", err)
	}
	c.Start()

	if next, err := NextDigestRun(expr, d.now()); err == nil {
		d.logger.Info("daily digest scheduled", zap.String("cron", expr), zap.Time("next_run", next))
	}
	return func() { <-c.Stop().Done() }, nil
}

// NextDigestRun resolves the next run of expr after from.
func NextDigestRun(expr string, from time.Time) (time.Time, error) {
	sched, err := digestCronParser.Parse(strings.Join(strings.Fields(expr), " "))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	return sched.Next(from), nil
}
