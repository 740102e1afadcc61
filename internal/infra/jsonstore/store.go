// Package jsonstore persists PQRS records as a single JSON array file.
//
// Every mutation is a full read-modify-write of the file under one global
// mutex. Reads that fail (missing or corrupt file) degrade to an empty
// collection. Writes go through a temp file + rename; a failed write is
// logged and the in-memory result is still handed back to the caller.
// After each successful write the whole collection is copied to an optional
// mirror path (read by the dashboard); a failed mirror never fails the write.
package jsonstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("jsonstore")

// Store is the file-backed implementation of port.RecordStore.
type Store struct {
	mu         sync.Mutex // guards every load-mutate-save cycle
	path       string
	mirrorPath string
	logger     *zap.Logger
	now        func() time.Time
}

// New creates the store and writes an empty array if the file is missing.
func New(path, mirrorPath string, logger *zap.Logger) *Store {
	s := &Store{
		path:       path,
		mirrorPath: mirrorPath,
		logger:     logger,
		now:        time.Now,
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.save(nil); err != nil {
			logger.Error("jsonstore: failed to initialize data file", zap.String("path", path), zap.Error(err))
		}
	}
	return s
}

// WithClock overrides the clock used for CreatedAt/AlertSentAt (tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Append stores rec with AlertSent=false and CreatedAt=now.
// If another record already uses rec.RecordID a "-N" suffix is added.
func (s *Store) Append(ctx context.Context, rec domain.ComplaintRecord) (domain.ComplaintRecord, error) {
	_, span := tracer.Start(ctx, "Store.Append")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	rec.RecordID = uniqueID(records, rec.RecordID)
	rec.AlertSent = false
	rec.AlertSentAt = nil
	rec.CreatedAt = domain.NewTimestamp(s.now())
	records = append(records, rec)
	span.SetAttributes(attribute.String("pqrs.id", rec.RecordID))

	if err := s.save(records); err != nil {
		s.logger.Error("jsonstore: failed to persist record",
			zap.String("pqrs_id", rec.RecordID),
			zap.Error(err),
		)
		return rec, fmt.Errorf("append %s: %w", rec.RecordID, err)
	}

	s.logger.Info("pqrs stored",
		zap.String("pqrs_id", rec.RecordID),
		zap.String("department", rec.DepartmentCode),
	)
	return rec, nil
}

// MarkSent flips AlertSent to true. Unknown ids are a logged no-op.
func (s *Store) MarkSent(ctx context.Context, recordID string) error {
	_, span := tracer.Start(ctx, "Store.MarkSent")
	defer span.End()
	span.SetAttributes(attribute.String("pqrs.id", recordID))

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	found := false
	for i := range records {
		if records[i].RecordID != recordID {
			continue
		}
		if records[i].AlertSent {
			return nil
		}
		sentAt := domain.NewTimestamp(s.now())
		records[i].AlertSent = true
		records[i].AlertSentAt = &sentAt
		found = true
		break
	}
	if !found {
		s.logger.Warn("jsonstore: mark sent on unknown record", zap.String("pqrs_id", recordID))
		return nil
	}

	if err := s.save(records); err != nil {
		s.logger.Error("jsonstore: failed to persist sent flag",
			zap.String("pqrs_id", recordID),
			zap.Error(err),
		)
		return fmt.Errorf("mark sent %s: %w", recordID, err)
	}
	s.logger.Info("pqrs marked as sent", zap.String("pqrs_id", recordID))
	return nil
}

// Pending returns records not yet confirmed on the chat channel, in storage order.
func (s *Store) Pending(ctx context.Context) []domain.ComplaintRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ComplaintRecord
	for _, r := range s.load() {
		if !r.AlertSent {
			out = append(out, r)
		}
	}
	return out
}

// ByDepartment returns up to limit records of the department, newest first.
// A limit of zero or less returns all of them.
func (s *Store) ByDepartment(ctx context.Context, code string, limit int) []domain.ComplaintRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ComplaintRecord
	for _, r := range s.load() {
		if r.DepartmentCode == code {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// All returns the full collection in storage order.
func (s *Store) All(ctx context.Context) []domain.ComplaintRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// ============================================================
// File I/O: caller must hold s.mu
// ============================================================

func (s *Store) load() []domain.ComplaintRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("jsonstore: failed to read data file", zap.String("path", s.path), zap.Error(err))
		}
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var records []domain.ComplaintRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Error("jsonstore: data file is not a valid record array", zap.String("path", s.path), zap.Error(err))
		return nil
	}
	return records
}

func (s *Store) save(records []domain.ComplaintRecord) error {
	if records == nil {
		records = []domain.ComplaintRecord{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	if err := writeAtomic(s.path, buf.Bytes()); err != nil {
		return err
	}

	if s.mirrorPath != "" {
		if err := writeAtomic(s.mirrorPath, buf.Bytes()); err != nil {
			s.logger.Warn("jsonstore: failed to mirror data file",
				zap.String("mirror_path", s.mirrorPath),
				zap.Error(err),
			)
		} else {
			s.logger.Debug("jsonstore: data mirrored", zap.String("mirror_path", s.mirrorPath))
		}
	}
	return nil
}

// writeAtomic writes content to a sibling temp file and renames it over path.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}

func uniqueID(records []domain.ComplaintRecord, id string) string {
	taken := make(map[string]bool, len(records))
	for _, r := range records {
		taken[r.RecordID] = true
	}
	if !taken[id] {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if !taken[candidate] {
			return candidate
		}
	}
}
