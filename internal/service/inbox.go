package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/resilience"
	"github.com/boddenberg/pqrs-intake-bot/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var inboxTracer = otel.Tracer("service/inbox")

// Deduper remembers message ids for a while.
type Deduper interface {
	SetIfAbsent(key string, value struct{}) bool
}

// InboxConfig bounds inbound processing.
type InboxConfig struct {
	SendTimeout    time.Duration
	MaxConcurrency int
}

// Inbox turns normalized inbound messages into dialogue steps and replies.
type Inbox struct {
	engine    *DialogueEngine
	transport port.MessageTransport
	seen      Deduper
	bulkhead  *resilience.Bulkhead
	cfg       InboxConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewInbox creates the inbound processor.
func NewInbox(
	engine *DialogueEngine,
	transport port.MessageTransport,
	seen Deduper,
	cfg InboxConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Inbox {
	return &Inbox{
		engine:    engine,
		transport: transport,
		seen:      seen,
		bulkhead:  resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// ProcessPayload handles every message of a webhook payload in order and
// returns how many were processed. Status updates are only logged.
func (in *Inbox) ProcessPayload(ctx context.Context, payload *domain.WebhookPayload) int {
	ctx, span := inboxTracer.Start(ctx, "Inbox.ProcessPayload")
	defer span.End()

	if n := payload.StatusCount(); n > 0 {
		in.logger.Debug("webhook status updates received", zap.Int("count", n))
	}

	processed := 0
	for _, msg := range payload.Messages() {
		if err := in.Process(ctx, msg); err != nil {
			in.logger.Error("failed to process inbound message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		processed++
	}
	span.SetAttributes(attribute.Int("messages.processed", processed))
	return processed
}

// Process runs one inbound message through the dialogue and sends the reply.
// Redelivered message ids are dropped silently.
func (in *Inbox) Process(ctx context.Context, msg domain.InboundMessage) error {
	ctx, span := inboxTracer.Start(ctx, "Inbox.Process")
	defer span.End()

	sender := domain.NormalizePhone(msg.From)
	if sender == "" {
		return &domain.ErrValidation{Field: "from", Message: "sender is empty"}
	}
	// Rejected before the id is remembered, so a redelivery is processed.
	if err := in.bulkhead.Acquire(ctx); err != nil {
		return fmt.Errorf("inbox busy: %w", err)
	}
	defer in.bulkhead.Release()

	// The id is claimed before the dialogue runs and stays claimed even if the
	// reply fails: replaying it would advance the dialogue a second time.
	generated := msg.ID == ""
	if generated {
		msg.ID = "local-" + uuid.NewString()
	} else if !in.seen.SetIfAbsent(msg.ID, struct{}{}) {
		in.metrics.IncrDuplicate("inbound")
		in.logger.Debug("duplicate delivery dropped", zap.String("message_id", msg.ID))
		return nil
	}
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
	)

	start := time.Now()
	defer func() { in.metrics.RecordRequestDuration("inbox.process", time.Since(start)) }()

	if !generated {
		in.markRead(ctx, msg.ID)
	}

	var reply string
	if msg.IsText() {
		in.metrics.IncrMessage(observability.MessageText)
		in.logger.Debug("text message received",
			zap.String("from", sender),
			zap.String("message_id", msg.ID),
		)
		reply = in.engine.Handle(ctx, sender, msg.Text)
	} else {
		in.metrics.IncrMessage(observability.MessageUnsupported)
		in.logger.Info("unsupported message type", zap.String("type", msg.Type), zap.String("message_id", msg.ID))
		reply = in.engine.HandleUnsupported(ctx, sender)
	}

	return in.reply(ctx, sender, reply)
}

func (in *Inbox) markRead(ctx context.Context, messageID string) {
	err := resilience.CallWithTimeout(ctx, in.cfg.SendTimeout, "whatsapp.mark_read", func(ctx context.Context) error {
		return in.transport.MarkRead(ctx, messageID)
	})
	if err != nil {
		in.metrics.IncrExternalError(observability.SinkReply)
		in.logger.Warn("failed to mark message as read",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

func (in *Inbox) reply(ctx context.Context, to, body string) error {
	err := resilience.CallWithTimeout(ctx, in.cfg.SendTimeout, "whatsapp.send", func(ctx context.Context) error {
		return in.transport.SendText(ctx, to, body)
	})
	if err != nil {
		in.metrics.IncrNotification(observability.SinkReply, observability.StatusFailed)
		in.metrics.IncrExternalError(observability.SinkReply)
		return fmt.Errorf("send reply: %w", err)
	}
	in.metrics.IncrNotification(observability.SinkReply, observability.StatusSent)
	return nil
}
