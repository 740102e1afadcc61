package service

import (
	"context"
	"strings"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/port"
)

// Similarity defaults used by the live path and the sweep.
const (
	DefaultWordOverlap = 2
	DefaultScanLimit   = 50
)

// SimilarityIndex finds near-duplicate complaints by bag-of-words overlap.
// No stemming, no stopword removal: "el", "la", "de" count as shared words.
type SimilarityIndex struct {
	store port.RecordStore
}

// NewSimilarityIndex creates an index over store.
func NewSimilarityIndex(store port.RecordStore) *SimilarityIndex {
	return &SimilarityIndex{store: store}
}

// Similar returns the records among the scanLimit most recent ones of the
// department whose description shares at least threshold distinct words
// with description. Store order (newest first) is kept.
func (s *SimilarityIndex) Similar(ctx context.Context, deptCode, description string, threshold, scanLimit int) []domain.ComplaintRecord {
	query := wordSet(description)
	if len(query) == 0 {
		return nil
	}

	var out []domain.ComplaintRecord
	for _, candidate := range s.store.ByDepartment(ctx, deptCode, scanLimit) {
		if overlap(query, wordSet(candidate.Description)) >= threshold {
			out = append(out, candidate)
		}
	}
	return out
}

// CountOthers is the number of similar records excluding rec itself.
func (s *SimilarityIndex) CountOthers(ctx context.Context, rec domain.ComplaintRecord) int {
	n := 0
	for _, r := range s.Similar(ctx, rec.DepartmentCode, rec.Description, DefaultWordOverlap, DefaultScanLimit) {
		if r.RecordID != rec.RecordID {
			n++
		}
	}
	return n
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
