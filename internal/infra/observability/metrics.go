package observability

import (
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Label values shared by callers.
const (
	MessageText        = "text"
	MessageUnsupported = "unsupported"

	SinkAlert = "telegram"
	SinkEmail = "email"
	SinkReply = "whatsapp"

	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"

	SweepAlerted  = "alerted"
	SweepMarked   = "marked"
	SweepFailed   = "failed"
	SweepCanceled = "canceled"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	messages        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	records         *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	sweep           *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pqrs_request_duration_seconds",
				Help:    "Duration of operations (webhook handling, outbound calls).",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pqrs_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pqrs_inbound_messages_total",
				Help: "Inbound WhatsApp messages by kind.",
			},
			[]string{"type"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pqrs_dialogue_transitions_total",
				Help: "Dialogue step transitions.",
			},
			[]string{"from", "to"},
		),
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pqrs_records_created_total",
				Help: "PQRS records created by department code.",
			},
			[]string{"department"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pqrs_notifications_total",
				Help: "Notification attempts by sink and outcome.",
			},
			[]string{"sink", "status"},
		),
		sweep: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pqrs_sweep_records_total",
				Help: "Pending-record sweep outcomes.",
			},
			[]string{"outcome"},
		),
		duplicates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pqrs_duplicate_deliveries_total",
				Help: "Inbound messages dropped because their id was already seen.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrMessage counts an inbound message (MessageText or MessageUnsupported).
func (m *Metrics) IncrMessage(kind string) {
	m.messages.WithLabelValues(kind).Inc()
}

// IncrTransition counts a dialogue step change.
func (m *Metrics) IncrTransition(from, to domain.Step) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// IncrRecord counts a stored record.
func (m *Metrics) IncrRecord(departmentCode string) {
	m.records.WithLabelValues(departmentCode).Inc()
}

// IncrNotification counts a sink attempt.
func (m *Metrics) IncrNotification(sink, status string) {
	m.notifications.WithLabelValues(sink, status).Inc()
}

// IncrSweep counts one sweep outcome.
func (m *Metrics) IncrSweep(outcome string) {
	m.sweep.WithLabelValues(outcome).Inc()
}

// IncrDuplicate counts a redelivered message.
func (m *Metrics) IncrDuplicate(cache string) {
	m.duplicates.WithLabelValues(cache).Inc()
}

// GetBotSnapshot returns a snapshot of bot counters suitable for the
// GET /v1/metrics/bot endpoint.
func (m *Metrics) GetBotSnapshot() *domain.BotMetrics {
	// Prometheus counters expose cumulative values.
	text := getCounterValue(m.messages, MessageText)
	unsupported := getCounterValue(m.messages, MessageUnsupported)

	var records float64
	for _, d := range domain.Departments() {
		records += getCounterValue(m.records, d.Code)
	}

	unsupportedRatio := float64(0)
	if text+unsupported > 0 {
		unsupportedRatio = unsupported / (text + unsupported)
	}

	return &domain.BotMetrics{
		MessagesReceived: int64(text + unsupported),
		UnsupportedRatio: unsupportedRatio,
		RecordsCreated:   int64(records),
		AlertsSent:       int64(getCounterValue(m.notifications, SinkAlert, StatusSent)),
		AlertsFailed:     int64(getCounterValue(m.notifications, SinkAlert, StatusFailed)),
		EmailsSent:       int64(getCounterValue(m.notifications, SinkEmail, StatusSent)),
		EmailsFailed:     int64(getCounterValue(m.notifications, SinkEmail, StatusFailed)),
		DuplicateDrops:   int64(getCounterValue(m.duplicates, "inbound")),
		Period:           "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
