// Package whatsapp talks to the WhatsApp Cloud API (Graph API) and verifies
// inbound webhook signatures.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("infra/whatsapp")

const serviceName = "whatsapp"

// Config holds the Graph API settings.
type Config struct {
	BaseURL       string // e.g. https://graph.facebook.com
	APIVersion    string // e.g. v22.0
	PhoneNumberID string
	AccessToken   string
}

// Client implements port.MessageTransport plus the manual send operations.
type Client struct {
	httpClient *http.Client
	cfg        Config
	cb         *gobreaker.CircuitBreaker
	retry      resilience.Config
}

// NewClient creates a WhatsApp Cloud API client.
func NewClient(httpClient *http.Client, cfg Config, cb *gobreaker.CircuitBreaker, retry resilience.Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v22.0"
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		cb:         cb,
		retry:      retry,
	}
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.cfg.BaseURL, c.cfg.APIVersion, c.cfg.PhoneNumberID)
}

// ============================================================
// Payloads
// ============================================================

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateBody struct {
	Name       string           `json:"name"`
	Language   templateLanguage `json:"language"`
	Components []map[string]any `json:"components,omitempty"`
}

type templateMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateBody `json:"template"`
}

type readReceipt struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

// ============================================================
// Operations
// ============================================================

// SendText sends a plain text reply (port.MessageTransport).
func (c *Client) SendText(ctx context.Context, to, body string) error {
	_, err := c.SendTextMessage(ctx, to, body, false)
	return err
}

// SendTextMessage sends a text message and returns the Graph API response.
func (c *Client) SendTextMessage(ctx context.Context, to, body string, previewURL bool) (*domain.SendResult, error) {
	ctx, span := tracer.Start(ctx, "WhatsAppClient.SendTextMessage")
	defer span.End()

	to = domain.NormalizePhone(to)
	span.SetAttributes(attribute.Int("message.length", len(body)))

	return c.post(ctx, textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{PreviewURL: previewURL, Body: body},
	})
}

// SendTemplate sends an approved template message.
func (c *Client) SendTemplate(ctx context.Context, req *domain.SendTemplateRequest) (*domain.SendResult, error) {
	ctx, span := tracer.Start(ctx, "WhatsAppClient.SendTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("template.name", req.TemplateName))

	lang := req.LanguageCode
	if lang == "" {
		lang = "en_US"
	}
	return c.post(ctx, templateMessage{
		MessagingProduct: "whatsapp",
		To:               domain.NormalizePhone(req.To),
		Type:             "template",
		Template: templateBody{
			Name:       req.TemplateName,
			Language:   templateLanguage{Code: lang},
			Components: req.Components,
		},
	})
}

// MarkRead acknowledges an inbound message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	ctx, span := tracer.Start(ctx, "WhatsAppClient.MarkRead")
	defer span.End()

	_, err := c.post(ctx, readReceipt{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	})
	return err
}

// post sends payload with retry inside the circuit breaker.
// 4xx answers are not retried.
func (c *Client) post(ctx context.Context, payload any) (*domain.SendResult, error) {
	if c.cfg.AccessToken == "" || c.cfg.PhoneNumberID == "" {
		return nil, &domain.ErrNotConfigured{Service: serviceName}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var result domain.SendResult
	err = resilience.Guard(c.cb, serviceName, func() error {
		return resilience.RetryWithBackoff(ctx, c.retry, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
				statusErr := fmt.Errorf("graph api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return resilience.Permanent(statusErr)
				}
				return statusErr
			}
			return json.NewDecoder(resp.Body).Decode(&result)
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: serviceName, Err: err}
	}
	return &result, nil
}
