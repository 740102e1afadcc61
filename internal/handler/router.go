package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"
	"github.com/boddenberg/pqrs-intake-bot/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

const maxBodyBytes = 1 << 20

// PayloadProcessor consumes verified webhook payloads.
type PayloadProcessor interface {
	ProcessPayload(ctx context.Context, payload *domain.WebhookPayload) int
}

// MessageSender backs the manual send endpoints.
type MessageSender interface {
	SendTextMessage(ctx context.Context, to, body string, previewURL bool) (*domain.SendResult, error)
	SendTemplate(ctx context.Context, req *domain.SendTemplateRequest) (*domain.SendResult, error)
}

// RecordQuery serves the read-only record endpoints.
type RecordQuery interface {
	List(ctx context.Context, departmentCode string, page, pageSize int) (*domain.ListResponse[domain.ComplaintRecord], error)
	Pending(ctx context.Context) []domain.ComplaintRecord
	Stats(ctx context.Context) domain.PQRSStats
}

// Sweeper re-attempts pending chat alerts.
type Sweeper interface {
	SweepPending(ctx context.Context) service.SweepReport
}

// TokenAuthority issues and validates admin tokens.
type TokenAuthority interface {
	IssueToken(ctx context.Context, req *domain.TokenRequest) (*domain.TokenResponse, error)
	ValidateToken(token string) (*service.JWTClaims, error)
}

// HealthProbe reports the state of one dependency for /healthz.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) (status, detail string)
}

// WebhookConfig holds the Meta webhook secrets.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string // empty disables signature checks
}

// Dependencies groups everything the router needs. Nil collaborators leave
// their routes answering 503.
type Dependencies struct {
	AppName string
	Version string
	Webhook WebhookConfig
	Inbox   PayloadProcessor
	Sender  MessageSender
	Records RecordQuery
	Sweeper Sweeper
	Auth    TokenAuthority
	Probes  []HealthProbe
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/", rootHandler(deps.AppName, deps.Version))
	r.Get("/health", healthHandler(deps.AppName))
	r.Get("/healthz", healthzHandler(deps.AppName, deps.Probes))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- WhatsApp webhook ---
	r.Get("/webhook", verifyWebhookHandler(deps.Webhook, logger))
	r.Post("/webhook", receiveWebhookHandler(deps.Webhook, deps.Inbox, metrics, logger))

	// --- Manual sends (admin) ---
	r.Group(func(r chi.Router) {
		r.Use(AdminAuthMiddleware(deps.Auth, logger))
		r.Post("/send-message", sendMessageHandler(deps.Sender, logger))
		r.Post("/send-template", sendTemplateHandler(deps.Sender, logger))
	})

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/token", issueTokenHandler(deps.Auth, logger))
		r.Get("/metrics/bot", botMetricsHandler(metrics))

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(deps.Auth, logger))
			r.Get("/pqrs", listRecordsHandler(deps.Records, logger))
			r.Get("/pqrs/pending", pendingRecordsHandler(deps.Records, logger))
			r.Get("/pqrs/stats", statsHandler(deps.Records, logger))
			r.Post("/pqrs/sweep", sweepHandler(deps.Sweeper, logger))
		})
	})

	return r
}

// ============================================================
// Probes
// ============================================================

func rootHandler(appName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Bienvenido a " + appName,
			"status":  "running",
			"version": version,
		})
	}
}

func healthHandler(appName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": appName,
		})
	}
}

func healthzHandler(appName string, probes []HealthProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.Healthz")
		defer span.End()

		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: appName, Status: "healthy", LastChecked: now},
		}
		for _, p := range probes {
			status, detail := p.Check(ctx)
			services = append(services, domain.ServiceHealth{
				Name: p.Name, Status: status, Detail: detail, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		code := http.StatusOK
		if overallStatus == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Service:  appName,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func botMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetBotSnapshot())
	}
}
