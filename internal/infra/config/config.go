package config

import (
	"fmt"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`

	RedisAddr     string `envconfig:"REDIS_ADDR"` // empty: in-process leases
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	PlanningCronSpec     string        `envconfig:"PLANNING_CRON_SPEC" default:"* * * * *"`
	SchedulerConcurrency int           `envconfig:"SCHEDULER_CONCURRENCY" default:"5"`
	LeaseTTL             time.Duration `envconfig:"LEASE_TTL" default:"10s"`
	StoreRetryMaxElapsed time.Duration `envconfig:"STORE_RETRY_MAX_ELAPSED" default:"45s"`

	ReconcilerShards  int    `envconfig:"RECONCILER_SHARDS" default:"8"`
	ChangeFeedChannel string `envconfig:"CHANGE_FEED_CHANNEL" default:"record_changes"`

	SMTPHost          string        `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort          int           `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername      string        `envconfig:"SMTP_USERNAME"`
	SMTPPassword      string        `envconfig:"SMTP_PASSWORD"`
	MailFrom          string        `envconfig:"MAIL_FROM" default:"notifications@localhost"`
	MailTimeout       time.Duration `envconfig:"MAIL_TIMEOUT" default:"30s"`
	MailRatePerSecond float64       `envconfig:"MAIL_RATE_PER_SECOND" default:"10"`
	MailBurst         int           `envconfig:"MAIL_BURST" default:"10"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	TelegramToken string `envconfig:"TELEGRAM_TOKEN"` // optional: failure alerts
	AlertChatID   int64  `envconfig:"ALERT_CHAT_ID"`
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.SchedulerConcurrency < 1 {
		return fmt.Errorf("SCHEDULER_CONCURRENCY must be positive, got %d", c.SchedulerConcurrency)
	}
	if c.ReconcilerShards < 1 {
		return fmt.Errorf("RECONCILER_SHARDS must be positive, got %d", c.ReconcilerShards)
	}
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("LEASE_TTL must be positive, got %s", c.LeaseTTL)
	}
	if c.TelegramToken != "" && c.AlertChatID == 0 {
		return fmt.Errorf("ALERT_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

// AlertsEnabled reports whether delivery failures are forwarded to Telegram.
func (c *AppConfig) AlertsEnabled() bool {
	return c.TelegramToken != ""
}
