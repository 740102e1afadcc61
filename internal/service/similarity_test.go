package service_test

import (
	"context"
	"testing"

	"github.com/boddenberg/pqrs-intake-bot/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilar_TwoSharedWordsMatch(t *testing.T) {
	store := newMemStore()
	store.seed("A", "TEC", "el proyector del salón 204 no enciende")
	store.seed("B", "TEC", "El PROYECTOR no funciona")

	idx := service.NewSimilarityIndex(store)
	got := idx.Similar(context.Background(), "TEC", "El PROYECTOR no funciona", service.DefaultWordOverlap, service.DefaultScanLimit)

	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].RecordID, "newest first")
	assert.Equal(t, "A", got[1].RecordID)
}

func TestSimilar_OneSharedWordDoesNotMatch(t *testing.T) {
	store := newMemStore()
	store.seed("A", "TEC", "proyector dañado")

	idx := service.NewSimilarityIndex(store)
	got := idx.Similar(context.Background(), "TEC", "impresora dañado", 2, 50)

	assert.Empty(t, got)
}

func TestSimilar_OtherDepartmentIgnored(t *testing.T) {
	store := newMemStore()
	store.seed("A", "ASE", "el baño del segundo piso está sucio")

	idx := service.NewSimilarityIndex(store)
	got := idx.Similar(context.Background(), "TEC", "el baño del segundo piso está sucio", 2, 50)

	assert.Empty(t, got)
}

func TestSimilar_ScanLimitBoundsCandidates(t *testing.T) {
	store := newMemStore()
	store.seed("OLD", "BIB", "faltan libros de cálculo")
	store.seed("N1", "BIB", "horario de atención corto")
	store.seed("N2", "BIB", "wifi lento en sala")

	idx := service.NewSimilarityIndex(store)
	got := idx.Similar(context.Background(), "BIB", "faltan libros de física", 2, 2)

	assert.Empty(t, got, "oldest record is outside the scan window")
}

func TestCountOthers_ExcludesSelf(t *testing.T) {
	store := newMemStore()
	first := store.seed("A", "SEG", "robaron una maleta en la cafetería")
	idx := service.NewSimilarityIndex(store)

	assert.Equal(t, 0, idx.CountOthers(context.Background(), first))

	second := store.seed("B", "SEG", "robaron un celular en la cafetería")
	assert.Equal(t, 1, idx.CountOthers(context.Background(), second))
	assert.Equal(t, 1, idx.CountOthers(context.Background(), first))
}

func TestCountOthers_SingleWordDescription(t *testing.T) {
	store := newMemStore()
	store.seed("A", "OTR", "hola")
	rec := store.seed("B", "OTR", "hola")

	idx := service.NewSimilarityIndex(store)
	assert.Equal(t, 0, idx.CountOthers(context.Background(), rec))
}
