// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the dialogue and
// notification services from the JSON store and the HTTP clients.
package port

import (
	"context"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
)

// MessageTransport delivers replies to a WhatsApp user and acknowledges
// inbound messages.
type MessageTransport interface {
	SendText(ctx context.Context, to, body string) error
	MarkRead(ctx context.Context, messageID string) error
}

// AlertSink broadcasts a PQRS alert to the group chat (Telegram channel).
type AlertSink interface {
	SendAlert(ctx context.Context, alert domain.Alert) error
}

// Announcer posts a free-form announcement to the group chat.
type Announcer interface {
	Announce(ctx context.Context, title, message string) error
}

// EmailSink delivers the transactional email for a record.
type EmailSink interface {
	SendComplaintEmail(ctx context.Context, rec domain.ComplaintRecord) error
}

// RecordStore owns the persisted PQRS collection.
type RecordStore interface {
	Append(ctx context.Context, rec domain.ComplaintRecord) (domain.ComplaintRecord, error)
	MarkSent(ctx context.Context, recordID string) error
	Pending(ctx context.Context) []domain.ComplaintRecord
	ByDepartment(ctx context.Context, code string, limit int) []domain.ComplaintRecord
	All(ctx context.Context) []domain.ComplaintRecord
}

// SessionStore keeps the in-memory dialogue state per sender.
type SessionStore interface {
	// Lock serializes work for one sender; call the returned func to release.
	Lock(sender string) (unlock func())
	Get(sender string) *domain.ConversationState
	Reset(sender string) *domain.ConversationState
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
