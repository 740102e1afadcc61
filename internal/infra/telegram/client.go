// Package telegram posts PQRS alerts and announcements to a Telegram channel
// through the Bot API (sendMessage, HTML parse mode).
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/telegram")

const serviceName = "telegram"

// Client implements port.AlertSink and port.Announcer.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger

	mu        sync.Mutex
	channelID string // last id form that worked
}

// NewClient creates a Telegram client. baseURL is usually https://api.telegram.org.
func NewClient(httpClient *http.Client, baseURL, token, channelID string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		channelID:  strings.TrimSpace(channelID),
		cb:         cb,
		logger:     logger,
	}
}

// Configured reports whether a token and channel are set.
func (c *Client) Configured() bool {
	return c.token != "" && c.channelID != ""
}

// ChannelID returns the channel id currently in use.
func (c *Client) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// SendAlert posts the alert for a record. SimilarCount ≥ 1 uses the
// "multiple similar reports" framing; 0 uses the plain "new PQRS" one.
func (c *Client) SendAlert(ctx context.Context, alert domain.Alert) error {
	ctx, span := tracer.Start(ctx, "TelegramClient.SendAlert")
	defer span.End()
	span.SetAttributes(
		attribute.String("pqrs.id", alert.RecordID),
		attribute.Int("pqrs.similar_count", alert.SimilarCount),
	)
	return c.send(ctx, FormatAlert(alert))
}

// Announce posts a free-form announcement with a bold title.
func (c *Client) Announce(ctx context.Context, title, message string) error {
	ctx, span := tracer.Start(ctx, "TelegramClient.Announce")
	defer span.End()
	return c.send(ctx, FormatAnnouncement(title, message))
}

// ============================================================
// Message formats (Telegram HTML)
// ============================================================

// FormatAlert renders the channel text for an alert.
func FormatAlert(a domain.Alert) string {
	dept := html.EscapeString(a.Department)
	id := html.EscapeString(a.RecordID)

	if a.SimilarCount > 0 {
		return fmt.Sprintf("⚠️ <b>ALERTA - Múltiples reportes similares</b>\n\n"+
			"📋 Se han recibido <b>%d quejas similares</b> sobre:\n\n"+
			"🏢 <b>Departamento:</b> %s\n"+
			"📝 <b>Problema:</b> %s\n"+
			"🆔 <b>Última PQRS:</b> %s\n\n"+
			"Se requiere atención inmediata.",
			a.SimilarCount+1, dept, html.EscapeString(truncate(a.Description, 100)), id)
	}

	return fmt.Sprintf("📢 <b>Nueva PQRS registrada</b>\n\n"+
		"🏢 <b>Departamento:</b> %s\n"+
		"🆔 <b>ID:</b> %s\n"+
		"📝 <b>Descripción:</b> %s\n\n"+
		"Se ha dirigido al área encargada.",
		dept, id, html.EscapeString(truncate(a.Description, 200)))
}

// FormatAnnouncement renders a general announcement.
func FormatAnnouncement(title, message string) string {
	return fmt.Sprintf("📢 <b>%s</b>\n\n%s", html.EscapeString(title), message)
}

// truncate cuts s to max runes and appends "..." when it was longer.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// ============================================================
// Bot API
// ============================================================

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type okResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// RequestError is a non-ok answer from the Bot API.
type RequestError struct {
	StatusCode  int
	Description string
}

func (e *RequestError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram http %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram http %d", e.StatusCode)
}

func isChatNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && strings.Contains(strings.ToLower(reqErr.Description), "chat not found")
}

// alternateChannelID toggles the "@" prefix of a public channel username.
// Numeric ids ("-100...") have no alternate form.
func alternateChannelID(id string) string {
	if strings.HasPrefix(id, "@") {
		return strings.TrimPrefix(id, "@")
	}
	if strings.HasPrefix(id, "-") || id == "" {
		return ""
	}
	return "@" + id
}

func (c *Client) send(ctx context.Context, text string) error {
	if !c.Configured() {
		return &domain.ErrNotConfigured{Service: serviceName}
	}

	err := resilience.Guard(c.cb, serviceName, func() error {
		channel := c.ChannelID()
		err := c.sendMessage(ctx, channel, text)
		if err == nil || !isChatNotFound(err) {
			return err
		}

		alt := alternateChannelID(channel)
		if alt == "" {
			return err
		}
		c.logger.Warn("telegram channel not found, trying alternate id",
			zap.String("channel_id", channel),
			zap.String("alternate", alt),
		)
		if altErr := c.sendMessage(ctx, alt, text); altErr != nil {
			return fmt.Errorf("channel %q and %q: %w", channel, alt, altErr)
		}

		c.mu.Lock()
		c.channelID = alt
		c.mu.Unlock()
		c.logger.Info("telegram channel id switched", zap.String("channel_id", alt))
		return nil
	})
	if err != nil {
		return &domain.ErrExternalService{Service: serviceName, Err: err}
	}
	return nil
}

func (c *Client) sendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out okResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &RequestError{StatusCode: resp.StatusCode, Description: desc}
	}
	return nil
}
