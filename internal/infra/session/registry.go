// Package session provides the in-memory conversation registry.
// One entry per sender address; entries are never evicted.
package session

import (
	"sync"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
)

type entry struct {
	mu    sync.Mutex // serializes dialogue processing for this sender
	state *domain.ConversationState
}

// Registry is a thread-safe map of sender → conversation state with a
// per-sender lock.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for StartedAt (tests).
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func (r *Registry) entryFor(sender string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sender]
	if !ok {
		e = &entry{}
		r.entries[sender] = e
	}
	return e
}

// Lock blocks until the caller owns the sender's entry.
func (r *Registry) Lock(sender string) func() {
	e := r.entryFor(sender)
	e.mu.Lock()
	return e.mu.Unlock
}

// Get returns the sender's state, creating an INITIAL one if absent.
func (r *Registry) Get(sender string) *domain.ConversationState {
	e := r.entryFor(sender)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e.state == nil {
		e.state = domain.NewConversationState(r.now())
	}
	return e.state
}

// Reset replaces the sender's state with a fresh INITIAL one.
func (r *Registry) Reset(sender string) *domain.ConversationState {
	e := r.entryFor(sender)

	r.mu.Lock()
	defer r.mu.Unlock()
	e.state = domain.NewConversationState(r.now())
	return e.state
}

// Len returns the number of known senders.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
