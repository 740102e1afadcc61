package service

import (
	"context"
	"slices"
	"sort"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var statsTracer = otel.Tracer("service/stats")

const monthLayout = "2006-01"

// StatsService serves dashboard statistics and record listings.
type StatsService struct {
	store port.RecordStore
}

// NewStatsService creates a new stats service.
func NewStatsService(store port.RecordStore) *StatsService {
	return &StatsService{store: store}
}

// Stats aggregates every stored record.
func (s *StatsService) Stats(ctx context.Context) domain.PQRSStats {
	ctx, span := statsTracer.Start(ctx, "StatsService.Stats")
	defer span.End()

	stats := ComputeStats(s.store.All(ctx))
	span.SetAttributes(attribute.Int("pqrs.total", stats.Total))
	return stats
}

// List returns one page of records, newest first, optionally filtered by
// department code.
func (s *StatsService) List(ctx context.Context, departmentCode string, page, pageSize int) (*domain.ListResponse[domain.ComplaintRecord], error) {
	ctx, span := statsTracer.Start(ctx, "StatsService.List")
	defer span.End()

	var records []domain.ComplaintRecord
	if departmentCode != "" {
		dept, ok := domain.DepartmentByCode(departmentCode)
		if !ok {
			return nil, &domain.ErrValidation{Field: "departamento", Message: "unknown department code"}
		}
		records = s.store.ByDepartment(ctx, dept.Code, 0)
	} else {
		records = s.store.All(ctx)
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].CreatedAt.After(records[j].CreatedAt.Time)
		})
	}

	return paginate(records, page, pageSize), nil
}

// Pending returns the records whose chat alert has not been sent.
func (s *StatsService) Pending(ctx context.Context) []domain.ComplaintRecord {
	ctx, span := statsTracer.Start(ctx, "StatsService.Pending")
	defer span.End()

	return s.store.Pending(ctx)
}

func paginate[T any](items []T, page, pageSize int) *domain.ListResponse[T] {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	data := items[start:end]
	if data == nil {
		data = []T{}
	}
	return &domain.ListResponse[T]{
		Data:     data,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  end < total,
	}
}

// ComputeStats builds the dashboard aggregates. Department charts follow the
// catalog order followed by unknown names; departments without records are
// omitted. The monthly trend is sorted by month.
func ComputeStats(records []domain.ComplaintRecord) domain.PQRSStats {
	stats := domain.PQRSStats{
		Total:        len(records),
		ByDepartment: make(map[string]int),
		ByMonth:      make(map[string]int),
	}

	type tally struct{ count, sent int }
	byDept := make(map[string]*tally)

	for _, rec := range records {
		name := rec.DepartmentName
		if name == "" {
			name = rec.DepartmentCode
		}
		stats.ByDepartment[name]++

		if !rec.SubmittedAt.IsZero() {
			stats.ByMonth[rec.SubmittedAt.Format(monthLayout)]++
		} else if !rec.CreatedAt.IsZero() {
			stats.ByMonth[rec.CreatedAt.Format(monthLayout)]++
		}

		if rec.AlertSent {
			stats.AlertsSent++
		} else {
			stats.AlertsPending++
		}

		t, ok := byDept[name]
		if !ok {
			t = &tally{}
			byDept[name] = t
		}
		t.count++
		if rec.AlertSent {
			t.sent++
		}
	}

	order := make([]string, 0, len(byDept))
	for _, d := range domain.Departments() {
		if _, ok := byDept[d.Name]; ok {
			order = append(order, d.Name)
		}
	}
	var rest []string
	for name := range byDept {
		if !slices.Contains(order, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	stats.DepartmentCharts = make([]domain.DeptCount, 0, len(order))
	for _, name := range order {
		t := byDept[name]
		stats.DepartmentCharts = append(stats.DepartmentCharts, domain.DeptCount{
			Department: name,
			Count:      t.count,
			Sent:       t.sent,
			Pending:    t.count - t.sent,
		})
	}

	months := make([]string, 0, len(stats.ByMonth))
	for m := range stats.ByMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	stats.MonthlyTrend = make([]domain.MonthCount, 0, len(months))
	for _, m := range months {
		stats.MonthlyTrend = append(stats.MonthlyTrend, domain.MonthCount{Month: m, Count: stats.ByMonth[m]})
	}

	return stats
}
