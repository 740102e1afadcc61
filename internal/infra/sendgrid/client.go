// Package sendgrid delivers the PQRS notification email through the
// SendGrid v3 mail/send API.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/sendgrid")

const (
	serviceName = "sendgrid"

	// DefaultAPIURL is the SendGrid mail/send endpoint.
	DefaultAPIURL = "https://api.sendgrid.com/v3/mail/send"
	// DefaultSender is used when no sender address is configured.
	DefaultSender = "noreply@ulibertadores.edu.co"
	senderName    = "Sistema PQRS - Universidad Los Libertadores"
)

// Config holds the SendGrid settings.
type Config struct {
	APIKey    string
	APIURL    string
	Sender    string
	Recipient string
}

// Client implements port.EmailSink.
type Client struct {
	httpClient *http.Client
	cfg        Config
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a SendGrid client. Keys missing the "SG." prefix get it added.
func NewClient(httpClient *http.Client, cfg Config, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey != "" && !strings.HasPrefix(cfg.APIKey, "SG.") {
		logger.Warn("sendgrid api key lacks the SG. prefix, adding it")
		cfg.APIKey = "SG." + cfg.APIKey
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Sender == "" {
		cfg.Sender = DefaultSender
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		cb:         cb,
		logger:     logger,
		now:        time.Now,
	}
}

// APIKey returns the normalized key (tests).
func (c *Client) APIKey() string {
	return c.cfg.APIKey
}

// Configured reports whether emails can be sent.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.Recipient != ""
}

// Subject is the email subject for rec.
func Subject(rec domain.ComplaintRecord) string {
	return fmt.Sprintf("🔔 Nueva PQRS - %s - %s", rec.DepartmentName, rec.RecordID)
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To      []address `json:"to"`
	Subject string    `json:"subject"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Content          []content         `json:"content"`
}

// SendComplaintEmail sends the notification for rec. Only 202 counts as success.
func (c *Client) SendComplaintEmail(ctx context.Context, rec domain.ComplaintRecord) error {
	ctx, span := tracer.Start(ctx, "SendGridClient.SendComplaintEmail")
	defer span.End()
	span.SetAttributes(attribute.String("pqrs.id", rec.RecordID))

	if !c.Configured() {
		return &domain.ErrNotConfigured{Service: serviceName}
	}

	plain, html, err := renderBodies(newEmailView(rec, c.now()))
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	payload := mailRequest{
		Personalizations: []personalization{{
			To:      []address{{Email: c.cfg.Recipient}},
			Subject: Subject(rec),
		}},
		From: address{Email: c.cfg.Sender, Name: senderName},
		Content: []content{
			{Type: "text/plain", Value: plain},
			{Type: "text/html", Value: html},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	err = resilience.Guard(c.cb, serviceName, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil
	})
	if err != nil {
		return &domain.ErrExternalService{Service: serviceName, Err: err}
	}

	c.logger.Debug("sendgrid accepted email",
		zap.String("pqrs_id", rec.RecordID),
		zap.String("recipient", c.cfg.Recipient),
	)
	return nil
}
