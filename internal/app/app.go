// Package app wires configuration, infrastructure clients and services into
// a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/config"
	"github.com/boddenberg/pqrs-intake-bot/internal/handler"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/cache"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/jsonstore"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/resilience"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/sendgrid"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/session"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/telegram"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/whatsapp"
	"github.com/boddenberg/pqrs-intake-bot/internal/port"
	"github.com/boddenberg/pqrs-intake-bot/internal/service"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Version is reported by GET / and the CLI.
const Version = "1.0.0"

// App holds every long-lived component of the bot.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Store    *jsonstore.Store
	WhatsApp *whatsapp.Client
	Telegram *telegram.Client
	Email    *sendgrid.Client

	Notifier *service.NotificationCoordinator
	Engine   *service.DialogueEngine
	Inbox    *service.Inbox
	Stats    *service.StatsService
	Auth     *service.AuthService
	Digest   *service.Digest

	dedup    *cache.InMemory[struct{}]
	breakers map[string]*gobreaker.CircuitBreaker
}

// New builds the application from configuration.
func New(cfg *config.Config, logger *zap.Logger) *App {
	metrics := observability.NewMetrics()

	// --- Resilience ---
	retryCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	breakers := map[string]*gobreaker.CircuitBreaker{
		"whatsapp": resilience.NewCircuitBreaker("whatsapp"),
		"telegram": resilience.NewCircuitBreaker("telegram"),
		"sendgrid": resilience.NewCircuitBreaker("sendgrid"),
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.SinkTimeout}

	wa := whatsapp.NewClient(httpClient, whatsapp.Config{
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		APIVersion:    cfg.WhatsAppAPIVersion,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
	}, breakers["whatsapp"], retryCfg)

	tg := telegram.NewClient(httpClient, cfg.TelegramAPIBaseURL, cfg.TelegramBotToken, cfg.TelegramChannelID, breakers["telegram"], logger)
	if !tg.Configured() {
		logger.Warn("telegram not configured, alerts will stay pending")
	}

	sg := sendgrid.NewClient(httpClient, sendgrid.Config{
		APIKey:    cfg.SendGridAPIKey,
		APIURL:    cfg.SendGridAPIURL,
		Sender:    cfg.EmailSender,
		Recipient: cfg.EmailRecipient,
	}, breakers["sendgrid"], logger)

	var email port.EmailSink
	if sg.Configured() {
		email = sg
	} else {
		logger.Warn("sendgrid not configured, email notifications disabled")
	}

	// --- Storage ---
	store := jsonstore.New(cfg.DataFile, cfg.MirrorFile, logger)

	// --- Services ---
	notifier := service.NewNotificationCoordinator(
		store,
		service.NewSimilarityIndex(store),
		tg,
		email,
		service.NotifierConfig{SinkTimeout: cfg.SinkTimeout, SweepPause: cfg.SweepPause},
		metrics,
		logger,
	)
	engine := service.NewDialogueEngine(session.NewRegistry(), store, notifier, metrics, logger)

	dedup := cache.New[struct{}](cfg.DedupTTL)
	inbox := service.NewInbox(engine, wa, dedup, service.InboxConfig{
		SendTimeout:    cfg.SinkTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
	}, metrics, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Store:    store,
		WhatsApp: wa,
		Telegram: tg,
		Email:    sg,
		Notifier: notifier,
		Engine:   engine,
		Inbox:    inbox,
		Stats:    service.NewStatsService(store),
		Auth:     service.NewAuthService(cfg.AdminPasswordHash, cfg.AdminJWTSecret, cfg.AdminTokenTTL, logger),
		Digest:   service.NewDigest(store, tg, cfg.SinkTimeout, metrics, logger),
		dedup:    dedup,
		breakers: breakers,
	}
}

// Router builds the HTTP handler.
func (a *App) Router() http.Handler {
	deps := handler.Dependencies{
		AppName: a.Config.AppName,
		Version: Version,
		Webhook: handler.WebhookConfig{
			VerifyToken: a.Config.WhatsAppVerifyToken,
			AppSecret:   a.Config.WhatsAppAppSecret,
		},
		Inbox:   a.Inbox,
		Records: a.Stats,
		Sweeper: a.Notifier,
		Probes:  a.Probes(),
		Metrics: a.Metrics,
		Logger:  a.Logger,
	}
	if a.Config.WhatsAppConfigured() {
		deps.Sender = a.WhatsApp
	}
	if a.Config.AdminConfigured() {
		deps.Auth = a.Auth
	} else {
		a.Logger.Warn("admin credentials not configured, admin routes unavailable")
	}
	return handler.NewRouter(deps)
}

// Probes reports storage and per-integration health.
func (a *App) Probes() []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "store",
		Check: func(context.Context) (string, string) {
			if _, err := os.Stat(a.Config.DataFile); err != nil {
				return "unhealthy", err.Error()
			}
			return "healthy", ""
		},
	}}

	integrations := []struct {
		name       string
		configured func() bool
	}{
		{"whatsapp", a.Config.WhatsAppConfigured},
		{"telegram", a.Telegram.Configured},
		{"sendgrid", a.Email.Configured},
	}
	for _, in := range integrations {
		cb := a.breakers[in.name]
		configured := in.configured
		probes = append(probes, handler.HealthProbe{
			Name: in.name,
			Check: func(context.Context) (string, string) {
				if !configured() {
					return "disabled", "not configured"
				}
				if cb.State() == gobreaker.StateOpen {
					return "degraded", "circuit " + cb.State().String()
				}
				return "healthy", ""
			},
		})
	}
	return probes
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully. The startup sweep and the digest run alongside it.
func (a *App) Serve(ctx context.Context) error {
	logger := a.Logger

	if a.Config.SweepOnStartup {
		go func() {
			report := a.Notifier.SweepPending(ctx)
			logger.Info("startup sweep finished",
				zap.Int("checked", report.Checked),
				zap.Int("alerted", report.Alerted),
				zap.Int("marked_without_alert", report.Marked),
				zap.Int("failed", report.Failed),
			)
		}()
	}

	if a.Config.DigestCron != "" {
		stop, err := a.Digest.Schedule(a.Config.DigestCron)
		if err != nil {
			return fmt.Errorf("daily digest: %w", err)
		}
		defer stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Port),
		Handler:      a.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2*a.Config.SinkTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", a.Config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// Close releases background resources.
func (a *App) Close() {
	a.dedup.Close()
}
