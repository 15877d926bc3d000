package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/notify?sslmode=disable")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ENVIRONMENT", "Production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
	if cfg.SchedulerConcurrency != 5 {
		t.Errorf("SchedulerConcurrency = %d, want 5", cfg.SchedulerConcurrency)
	}
	if cfg.LeaseTTL != 10*time.Second {
		t.Errorf("LeaseTTL = %s, want 10s", cfg.LeaseTTL)
	}
	if cfg.PlanningCronSpec != "* * * * *" {
		t.Errorf("PlanningCronSpec = %q", cfg.PlanningCronSpec)
	}
	if cfg.ChangeFeedChannel != "record_changes" {
		t.Errorf("ChangeFeedChannel = %q", cfg.ChangeFeedChannel)
	}
	if cfg.AlertsEnabled() {
		t.Error("alerts should be disabled without TELEGRAM_TOKEN")
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/notify")
	t.Setenv("SCHEDULER_CONCURRENCY", "12")
	t.Setenv("LEASE_TTL", "30s")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("ALERT_CHAT_ID", "-100123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SchedulerConcurrency != 12 {
		t.Errorf("SchedulerConcurrency = %d, want 12", cfg.SchedulerConcurrency)
	}
	if cfg.LeaseTTL != 30*time.Second {
		t.Errorf("LeaseTTL = %s, want 30s", cfg.LeaseTTL)
	}
	if !cfg.AlertsEnabled() || cfg.AlertChatID != -100123 {
		t.Errorf("alerts: enabled=%v chat=%d", cfg.AlertsEnabled(), cfg.AlertChatID)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"zero concurrency":   {"SCHEDULER_CONCURRENCY": "0"},
		"non-numeric shards": {"RECONCILER_SHARDS": "many"},
		"token without chat": {"TELEGRAM_TOKEN": "token"},
		"negative lease ttl": {"LEASE_TTL": "-1s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/notify")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
