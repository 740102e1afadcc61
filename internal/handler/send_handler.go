package handler

import (
	"net/http"
	"strings"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultTemplateName = "hello_world"

// ============================================================
// POST /send-message
// ============================================================

func sendMessageHandler(sender MessageSender, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.SendMessage")
		defer span.End()

		if sender == nil {
			writeError(w, http.StatusServiceUnavailable, "whatsapp not configured")
			return
		}

		var req domain.SendMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if domain.NormalizePhone(req.To) == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "to", Message: "recipient is required"}, logger)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "message", Message: "message is required"}, logger)
			return
		}
		span.SetAttributes(attribute.Int("message.length", len(req.Message)))

		result, err := sender.SendTextMessage(ctx, req.To, req.Message, req.PreviewURL)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("manual message sent", zap.String("admin", AdminSubjectFromContext(ctx)))
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "result": result})
	}
}

// ============================================================
// POST /send-template
// ============================================================

func sendTemplateHandler(sender MessageSender, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.SendTemplate")
		defer span.End()

		if sender == nil {
			writeError(w, http.StatusServiceUnavailable, "whatsapp not configured")
			return
		}

		var req domain.SendTemplateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if domain.NormalizePhone(req.To) == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "to", Message: "recipient is required"}, logger)
			return
		}
		if req.TemplateName == "" {
			req.TemplateName = defaultTemplateName
		}
		span.SetAttributes(attribute.String("template.name", req.TemplateName))

		result, err := sender.SendTemplate(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("manual template sent",
			zap.String("template", req.TemplateName),
			zap.String("admin", AdminSubjectFromContext(ctx)),
		)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "result": result})
	}
}
