package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, code string, submitted time.Time, sent bool) domain.ComplaintRecord {
	d, _ := domain.DepartmentByCode(code)
	return domain.ComplaintRecord{
		RecordID:       id,
		DepartmentName: d.Name,
		DepartmentCode: d.Code,
		SubmittedAt:    domain.NewTimestamp(submitted),
		CreatedAt:      domain.NewTimestamp(submitted),
		AlertSent:      sent,
	}
}

func TestComputeStats(t *testing.T) {
	jan := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	stats := service.ComputeStats([]domain.ComplaintRecord{
		record("PQRS-EDU-1", "EDU", mar, true),
		record("PQRS-TEC-1", "TEC", jan, false),
		record("PQRS-EDU-2", "EDU", jan, false),
		{RecordID: "legacy", DepartmentName: "Cafetería", CreatedAt: domain.NewTimestamp(mar)},
	})

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.AlertsSent)
	assert.Equal(t, 3, stats.AlertsPending)
	assert.Equal(t, map[string]int{"Educativo": 2, "Tecnología": 1, "Cafetería": 1}, stats.ByDepartment)
	assert.Equal(t, []domain.MonthCount{{Month: "2025-01", Count: 2}, {Month: "2025-03", Count: 2}}, stats.MonthlyTrend)

	require.Len(t, stats.DepartmentCharts, 3)
	assert.Equal(t, domain.DeptCount{Department: "Tecnología", Count: 1, Sent: 0, Pending: 1}, stats.DepartmentCharts[0])
	assert.Equal(t, domain.DeptCount{Department: "Educativo", Count: 2, Sent: 1, Pending: 1}, stats.DepartmentCharts[1])
	assert.Equal(t, "Cafetería", stats.DepartmentCharts[2].Department)
}

func TestComputeStats_Empty(t *testing.T) {
	stats := service.ComputeStats(nil)

	assert.Zero(t, stats.Total)
	assert.NotNil(t, stats.MonthlyTrend)
	assert.NotNil(t, stats.DepartmentCharts)
	assert.Empty(t, stats.ByDepartment)
}

func TestStatsService_List(t *testing.T) {
	store := newMemStore()
	for _, code := range []string{"TEC", "EDU", "TEC", "SEG", "TEC"} {
		store.seed("PQRS-"+code, code, "algo")
	}
	svc := service.NewStatsService(store)
	ctx := context.Background()

	t.Run("all records newest first", func(t *testing.T) {
		page, err := svc.List(ctx, "", 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.True(t, page.HasMore)
		require.Len(t, page.Data, 2)
		assert.Equal(t, "TEC", page.Data[0].DepartmentCode)
		assert.Equal(t, "SEG", page.Data[1].DepartmentCode)
	})

	t.Run("department filter", func(t *testing.T) {
		page, err := svc.List(ctx, "tec", 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.False(t, page.HasMore)
		assert.Len(t, page.Data, 1)
	})

	t.Run("page past the end", func(t *testing.T) {
		page, err := svc.List(ctx, "", 9, 10)
		require.NoError(t, err)
		assert.Empty(t, page.Data)
		assert.NotNil(t, page.Data)
	})

	t.Run("unknown department", func(t *testing.T) {
		_, err := svc.List(ctx, "XYZ", 1, 10)
		var ve *domain.ErrValidation
		assert.True(t, errors.As(err, &ve))
	})
}

func TestStatsService_Pending(t *testing.T) {
	store := newMemStore()
	a := store.seed("PQRS-TEC-A", "TEC", "uno")
	store.seed("PQRS-TEC-B", "TEC", "dos")
	require.NoError(t, store.MarkSent(context.Background(), a.RecordID))

	pending := service.NewStatsService(store).Pending(context.Background())
	require.Len(t, pending, 1)
	assert.Equal(t, "PQRS-TEC-B", pending[0].RecordID)
}
