package domain

import "encoding/json"

// ============================================================
// WhatsApp Cloud API: inbound webhook payload
// ============================================================

// WebhookPayload is the body Meta POSTs to /webhook.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups the changes for one business account.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange carries one value of the subscribed field ("messages").
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue holds messages and/or delivery statuses.
type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         map[string]any    `json:"metadata"`
	Contacts         []WebhookContact  `json:"contacts,omitempty"`
	Messages         []WebhookMessage  `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

// WebhookContact is the sender profile attached to a message.
type WebhookContact struct {
	Profile map[string]any `json:"profile,omitempty"`
	WaID    string         `json:"wa_id,omitempty"`
}

// WebhookMessage is one inbound message. Only text carries a body; every
// other type (image, audio, document, sticker...) is treated as unsupported.
type WebhookMessage struct {
	From      string       `json:"from"`
	ID        string       `json:"id"`
	Timestamp string       `json:"timestamp"`
	Type      string       `json:"type"`
	Text      *WebhookText `json:"text,omitempty"`
}

// WebhookText is the body of a text message.
type WebhookText struct {
	Body string `json:"body"`
}

// MessageTypeText is the only type the dialogue consumes.
const MessageTypeText = "text"

// InboundMessage is the normalized form handed to the core.
type InboundMessage struct {
	From      string
	ID        string
	Type      string
	Text      string
	Timestamp string
}

// IsText reports whether the message carries usable text.
func (m InboundMessage) IsText() bool {
	return m.Type == MessageTypeText && m.Text != ""
}

// Messages flattens the payload into normalized inbound messages.
func (p *WebhookPayload) Messages() []InboundMessage {
	var out []InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				in := InboundMessage{
					From:      m.From,
					ID:        m.ID,
					Type:      m.Type,
					Timestamp: m.Timestamp,
				}
				if m.Text != nil {
					in.Text = m.Text.Body
				}
				out = append(out, in)
			}
		}
	}
	return out
}

// StatusCount returns how many delivery status updates the payload carries.
func (p *WebhookPayload) StatusCount() int {
	n := 0
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			n += len(change.Value.Statuses)
		}
	}
	return n
}

// ============================================================
// Manual send endpoints
// ============================================================

// SendMessageRequest is the body of POST /send-message.
type SendMessageRequest struct {
	To         string `json:"to"`
	Message    string `json:"message"`
	PreviewURL bool   `json:"preview_url"`
}

// SendTemplateRequest is the body of POST /send-template.
type SendTemplateRequest struct {
	To           string           `json:"to"`
	TemplateName string           `json:"template_name"`
	LanguageCode string           `json:"language_code"`
	Components   []map[string]any `json:"components,omitempty"`
}

// SendResult is the Graph API response for a sent message.
type SendResult struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []map[string]any `json:"contacts"`
	Messages         []map[string]any `json:"messages"`
}
