package domain

// ============================================================
// Dashboard statistics: GET /v1/pqrs/stats
// ============================================================

// PQRSStats aggregates the stored records the way the dashboard charts them.
type PQRSStats struct {
	Total            int            `json:"total"`
	ByDepartment     map[string]int `json:"porDepartamento"`
	ByMonth          map[string]int `json:"porMes"`
	AlertsSent       int            `json:"enviadasTelegram"`
	AlertsPending    int            `json:"pendientesTelegram"`
	MonthlyTrend     []MonthCount   `json:"tendenciaMensual"`
	DepartmentCharts []DeptCount    `json:"departamentos"`
}

// MonthCount is one point of the monthly trend ("2025-03").
type MonthCount struct {
	Month string `json:"mes"`
	Count int    `json:"cantidad"`
}

// DeptCount is one bar of the per-department chart.
type DeptCount struct {
	Department string `json:"departamento"`
	Count      int    `json:"cantidad"`
	Sent       int    `json:"enviadas"`
	Pending    int    `json:"pendientes"`
}
