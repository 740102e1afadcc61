package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
)

// --- Mocks ---

// memStore is an in-memory port.RecordStore.
type memStore struct {
	mu      sync.Mutex
	records []domain.ComplaintRecord
	tick    time.Time
	marked  []string
	markErr error
}

func newMemStore() *memStore {
	return &memStore{tick: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (m *memStore) Append(_ context.Context, rec domain.ComplaintRecord) (domain.ComplaintRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick = m.tick.Add(time.Second)
	rec.AlertSent = false
	rec.CreatedAt = domain.NewTimestamp(m.tick)
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memStore) MarkSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.marked = append(m.marked, id)
	for i := range m.records {
		if m.records[i].RecordID == id {
			at := domain.NewTimestamp(m.tick)
			m.records[i].AlertSent = true
			m.records[i].AlertSentAt = &at
		}
	}
	return nil
}

func (m *memStore) Pending(_ context.Context) []domain.ComplaintRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ComplaintRecord
	for _, r := range m.records {
		if !r.AlertSent {
			out = append(out, r)
		}
	}
	return out
}

func (m *memStore) ByDepartment(_ context.Context, code string, limit int) []domain.ComplaintRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ComplaintRecord
	for _, r := range m.records {
		if r.DepartmentCode == code {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt.Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memStore) All(_ context.Context) []domain.ComplaintRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ComplaintRecord, len(m.records))
	copy(out, m.records)
	return out
}

func (m *memStore) get(id string) (domain.ComplaintRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.RecordID == id {
			return r, true
		}
	}
	return domain.ComplaintRecord{}, false
}

// seed appends a record directly, bypassing dialogue.
func (m *memStore) seed(id, code, description string) domain.ComplaintRecord {
	d, _ := domain.DepartmentByCode(code)
	rec, _ := m.Append(context.Background(), domain.ComplaintRecord{
		RecordID:       id,
		DepartmentName: d.Name,
		DepartmentCode: d.Code,
		Description:    description,
		SenderAddress:  "573000000000",
	})
	return rec
}

type fakeAlertSink struct {
	mu     sync.Mutex
	alerts []domain.Alert
	err    error
	block  bool
}

func (f *fakeAlertSink) SendAlert(ctx context.Context, a domain.Alert) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return f.err
}

func (f *fakeAlertSink) sent() []domain.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Alert, len(f.alerts))
	copy(out, f.alerts)
	return out
}

type fakeEmailSink struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (f *fakeEmailSink) SendComplaintEmail(_ context.Context, rec domain.ComplaintRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, rec.RecordID)
	return nil
}

func (f *fakeEmailSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errSinkDown = errors.New("sink unavailable")
