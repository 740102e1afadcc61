package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Service  string          `json:"service"`
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// BotMetrics is returned by GET /v1/metrics/bot.
type BotMetrics struct {
	MessagesReceived int64   `json:"messagesReceived"`
	UnsupportedRatio float64 `json:"unsupportedRatio"`
	RecordsCreated   int64   `json:"recordsCreated"`
	AlertsSent       int64   `json:"alertsSent"`
	AlertsFailed     int64   `json:"alertsFailed"`
	EmailsSent       int64   `json:"emailsSent"`
	EmailsFailed     int64   `json:"emailsFailed"`
	DuplicateDrops   int64   `json:"duplicateDeliveries"`
	Period           string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}
