package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/whatsapp"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// GET /webhook: verification handshake
// ============================================================

func verifyWebhookHandler(cfg WebhookConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mode := q.Get("hub.mode")
		token := q.Get("hub.verify_token")
		challenge := q.Get("hub.challenge")

		if mode != "subscribe" || token == "" {
			logger.Warn("webhook verification: invalid parameters", zap.String("mode", mode))
			writeError(w, http.StatusBadRequest, "Parámetros de verificación inválidos")
			return
		}
		if !whatsapp.VerifyToken(cfg.VerifyToken, token) {
			logger.Warn("webhook verification: invalid token")
			writeError(w, http.StatusForbidden, "Token de verificación inválido")
			return
		}

		logger.Info("webhook verified")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, challenge)
	}
}

// ============================================================
// POST /webhook: inbound messages
// ============================================================

// receiveWebhookHandler always answers 200 so the provider does not retry;
// rejected or malformed deliveries are logged and reported in the body.
func receiveWebhookHandler(cfg WebhookConfig, inbox PayloadProcessor, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.ReceiveWebhook")
		defer span.End()

		start := time.Now()
		defer func() { metrics.RecordRequestDuration("webhook.receive", time.Since(start)) }()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			logger.Warn("webhook: failed to read body", zap.Error(err))
			writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "unreadable body"})
			return
		}

		if cfg.AppSecret != "" && !whatsapp.VerifySignature(cfg.AppSecret, body, r.Header.Get(whatsapp.SignatureHeader)) {
			logger.Warn("webhook: invalid signature",
				zap.String("request_id", requestID(r)),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "message": "invalid signature"})
			return
		}

		var payload domain.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			logger.Warn("webhook: malformed payload", zap.Error(err))
			writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "malformed payload"})
			return
		}
		span.SetAttributes(attribute.String("webhook.object", payload.Object))

		if inbox == nil {
			logger.Error("webhook: no inbox configured")
			writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "not ready"})
			return
		}

		// The provider may hang up early; finish the dialogue step anyway.
		processed := inbox.ProcessPayload(context.WithoutCancel(ctx), &payload)
		logger.Debug("webhook processed",
			zap.String("object", payload.Object),
			zap.Int("messages", processed),
		)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "processed": processed})
	}
}
