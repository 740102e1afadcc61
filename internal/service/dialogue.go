package service

import (
	"context"
	"strings"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"
	"github.com/boddenberg/pqrs-intake-bot/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var dialogueTracer = otel.Tracer("service/dialogue")

// resetKeywords restart the dialogue from any step.
var resetKeywords = map[string]bool{
	"reiniciar": true,
	"nuevo":     true,
	"empezar":   true,
	"reset":     true,
}

// Dispatcher notifies the side channels about a stored record.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec domain.ComplaintRecord) DispatchResult
}

// DialogueEngine drives the PQRS conversation of each sender.
//
// ============================================================
// Transitions (on lowercase-trimmed text)
// ============================================================
//
//	any step + reset keyword  → INITIAL              welcome + menu
//	INITIAL                   → AWAITING_DEPARTMENT  welcome + menu
//	AWAITING_DEPARTMENT       → AWAITING_DESCRIPTION on a valid choice, else stay + menu
//	AWAITING_DESCRIPTION      → COMPLETED            record stored, notifications sent
//	COMPLETED                 → COMPLETED            "already registered"
type DialogueEngine struct {
	sessions port.SessionStore
	store    port.RecordStore
	notifier Dispatcher
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewDialogueEngine creates the engine with all dependencies injected.
func NewDialogueEngine(
	sessions port.SessionStore,
	store port.RecordStore,
	notifier Dispatcher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *DialogueEngine {
	return &DialogueEngine{
		sessions: sessions,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for record ids and dates (tests).
func (e *DialogueEngine) WithClock(now func() time.Time) *DialogueEngine {
	e.now = now
	return e
}

// Handle applies one text message from sender and returns the reply.
// Messages of the same sender are applied one at a time, in call order.
func (e *DialogueEngine) Handle(ctx context.Context, sender, text string) string {
	ctx, span := dialogueTracer.Start(ctx, "DialogueEngine.Handle")
	defer span.End()

	unlock := e.sessions.Lock(sender)
	defer unlock()

	normalized := strings.ToLower(strings.TrimSpace(text))
	state := e.sessions.Get(sender)
	from := state.Step
	span.SetAttributes(attribute.String("dialogue.step", string(from)))

	if resetKeywords[normalized] {
		e.sessions.Reset(sender)
		e.metrics.IncrTransition(from, domain.StepInitial)
		e.logger.Info("dialogue reset", zap.String("from_step", string(from)))
		return welcomeWithMenu()
	}

	var reply string
	switch state.Step {
	case domain.StepInitial:
		state.Step = domain.StepAwaitingDepartment
		reply = welcomeWithMenu()

	case domain.StepAwaitingDepartment:
		dept, ok := domain.ParseDepartment(normalized)
		if !ok {
			e.logger.Debug("dialogue: invalid department choice", zap.String("input", normalized))
			return invalidChoiceText()
		}
		state.SelectDepartment(dept)
		reply = departmentSelectedText(dept)

	case domain.StepAwaitingDescription:
		reply = e.complete(ctx, sender, state, text)

	default:
		return alreadyRegistered
	}

	e.metrics.IncrTransition(from, state.Step)
	return reply
}

// HandleUnsupported answers a non-text message without changing state.
func (e *DialogueEngine) HandleUnsupported(ctx context.Context, sender string) string {
	_, span := dialogueTracer.Start(ctx, "DialogueEngine.HandleUnsupported")
	defer span.End()

	unlock := e.sessions.Lock(sender)
	defer unlock()

	if e.sessions.Get(sender).Step == domain.StepInitial {
		return unsupportedAtStart
	}
	return unsupportedMidway
}

// State returns a copy of sender's current dialogue state.
func (e *DialogueEngine) State(sender string) domain.ConversationState {
	unlock := e.sessions.Lock(sender)
	defer unlock()
	return e.sessions.Get(sender).Snapshot()
}

// complete stores the record, notifies the sinks and builds the confirmation.
// Storage and notification failures are logged; the user still gets a
// confirmation.
func (e *DialogueEngine) complete(ctx context.Context, sender string, state *domain.ConversationState, text string) string {
	now := e.now()
	dept := *state.Department

	rec := domain.ComplaintRecord{
		RecordID:       domain.NewRecordID(dept.Code, now),
		DepartmentName: dept.Name,
		DepartmentCode: dept.Code,
		Description:    text,
		SubmittedAt:    domain.NewTimestamp(now),
		SenderAddress:  sender,
	}

	stored, err := e.store.Append(ctx, rec)
	if err != nil {
		e.logger.Error("pqrs not durably stored, continuing with in-memory record",
			zap.String("pqrs_id", stored.RecordID),
			zap.Error(err),
		)
	}
	state.Complete(text, stored.RecordID)
	e.metrics.IncrRecord(dept.Code)

	e.logger.Info("pqrs registered",
		zap.String("pqrs_id", stored.RecordID),
		zap.String("department", dept.Code),
	)

	e.notifier.Dispatch(ctx, stored)

	return confirmationText(stored.RecordID, dept.Name, now)
}
