package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string
	AppName  string

	// WhatsApp Cloud API
	WhatsAppVerifyToken   string
	WhatsAppAccessToken   string
	WhatsAppAppSecret     string // empty disables X-Hub-Signature-256 checks
	WhatsAppPhoneNumberID string
	WhatsAppAPIVersion    string
	WhatsAppAPIBaseURL    string

	// Telegram channel (alerts)
	TelegramBotToken   string
	TelegramChannelID  string
	TelegramAPIBaseURL string

	// SendGrid (email)
	SendGridAPIKey string
	SendGridAPIURL string
	EmailSender    string
	EmailRecipient string

	// Storage
	DataFile   string
	MirrorFile string // empty disables the dashboard mirror

	// Notifications
	SinkTimeout    time.Duration
	SweepPause     time.Duration
	SweepOnStartup bool
	DigestCron     string // empty disables the daily digest

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Inbound dedup
	DedupTTL time.Duration

	// Admin API
	AdminPasswordHash string
	AdminJWTSecret    string
	AdminTokenTTL     time.Duration

	// Observability
	OTLPEndpoint string
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_NAME", "pqrs-intake-bot")

	v.SetDefault("WHATSAPP_VERIFY_TOKEN", "")
	v.SetDefault("WHATSAPP_ACCESS_TOKEN", "")
	v.SetDefault("WHATSAPP_APP_SECRET", "")
	v.SetDefault("WHATSAPP_PHONE_NUMBER_ID", "")
	v.SetDefault("WHATSAPP_API_VERSION", "v22.0")
	v.SetDefault("WHATSAPP_API_BASE_URL", "https://graph.facebook.com")

	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHANNEL_ID", "")
	v.SetDefault("TELEGRAM_API_BASE_URL", "https://api.telegram.org")

	v.SetDefault("EMAIL_SENDGRID_API_KEY", "")
	v.SetDefault("SENDGRID_API_URL", "https://api.sendgrid.com/v3/mail/send")
	v.SetDefault("EMAIL_SENDER", "noreply@ulibertadores.edu.co")
	v.SetDefault("EMAIL_RECIPIENT", "")

	v.SetDefault("PQRS_DATA_FILE", "pqrs_data.json")
	v.SetDefault("PQRS_MIRROR_FILE", "")

	v.SetDefault("SINK_TIMEOUT", 30*time.Second)
	v.SetDefault("SWEEP_PAUSE", time.Second)
	v.SetDefault("SWEEP_ON_STARTUP", true)
	v.SetDefault("DIGEST_CRON", "")

	v.SetDefault("MAX_RETRIES", 2)
	v.SetDefault("INITIAL_BACKOFF", 200*time.Millisecond)
	v.SetDefault("MAX_CONCURRENCY", 50)

	v.SetDefault("DEDUP_TTL", 10*time.Minute)

	v.SetDefault("ADMIN_PASSWORD_HASH", "")
	v.SetDefault("ADMIN_JWT_SECRET", "")
	v.SetDefault("ADMIN_TOKEN_TTL", time.Hour)

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

// New returns a viper instance reading the environment with all defaults set.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return FromViper(New())
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
		AppName:  v.GetString("APP_NAME"),

		WhatsAppVerifyToken:   v.GetString("WHATSAPP_VERIFY_TOKEN"),
		WhatsAppAccessToken:   v.GetString("WHATSAPP_ACCESS_TOKEN"),
		WhatsAppAppSecret:     v.GetString("WHATSAPP_APP_SECRET"),
		WhatsAppPhoneNumberID: v.GetString("WHATSAPP_PHONE_NUMBER_ID"),
		WhatsAppAPIVersion:    v.GetString("WHATSAPP_API_VERSION"),
		WhatsAppAPIBaseURL:    strings.TrimRight(v.GetString("WHATSAPP_API_BASE_URL"), "/"),

		TelegramBotToken:   v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChannelID:  v.GetString("TELEGRAM_CHANNEL_ID"),
		TelegramAPIBaseURL: strings.TrimRight(v.GetString("TELEGRAM_API_BASE_URL"), "/"),

		SendGridAPIKey: v.GetString("EMAIL_SENDGRID_API_KEY"),
		SendGridAPIURL: v.GetString("SENDGRID_API_URL"),
		EmailSender:    v.GetString("EMAIL_SENDER"),
		EmailRecipient: v.GetString("EMAIL_RECIPIENT"),

		DataFile:   v.GetString("PQRS_DATA_FILE"),
		MirrorFile: v.GetString("PQRS_MIRROR_FILE"),

		SinkTimeout:    v.GetDuration("SINK_TIMEOUT"),
		SweepPause:     v.GetDuration("SWEEP_PAUSE"),
		SweepOnStartup: v.GetBool("SWEEP_ON_STARTUP"),
		DigestCron:     strings.TrimSpace(v.GetString("DIGEST_CRON")),

		MaxRetries:     v.GetInt("MAX_RETRIES"),
		InitialBackoff: v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		DedupTTL: v.GetDuration("DEDUP_TTL"),

		AdminPasswordHash: v.GetString("ADMIN_PASSWORD_HASH"),
		AdminJWTSecret:    v.GetString("ADMIN_JWT_SECRET"),
		AdminTokenTTL:     v.GetDuration("ADMIN_TOKEN_TTL"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// WhatsAppConfigured reports whether outbound WhatsApp calls can be made.
func (c *Config) WhatsAppConfigured() bool {
	return c.WhatsAppAccessToken != "" && c.WhatsAppPhoneNumberID != ""
}

// AdminConfigured reports whether the admin API can issue tokens.
func (c *Config) AdminConfigured() bool {
	return c.AdminPasswordHash != "" && c.AdminJWTSecret != ""
}
