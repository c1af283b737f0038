package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Security: SecurityConfig{
			EncryptionKey: strings.Repeat("e", 32),
			WebhookSecret: strings.Repeat("w", 32),
		},
		Bridge: BridgeConfig{Interval: time.Minute, BatchSize: 100},
		River:  RiverConfig{MaxWorkers: 10, MaxAttempts: 3, TaskTimeout: 5 * time.Minute},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_FailClosedSecrets(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing encryption key", func(c *Config) { c.Security.EncryptionKey = "" }},
		{"short encryption key", func(c *Config) { c.Security.EncryptionKey = "short" }},
		{"missing webhook secret", func(c *Config) { c.Security.WebhookSecret = "" }},
		{"short webhook secret", func(c *Config) { c.Security.WebhookSecret = strings.Repeat("w", 31) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error (fail closed)")
			}
		})
	}
}

func TestValidate_BridgeAndRiver(t *testing.T) {
	cfg := validConfig()
	cfg.Bridge.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject zero bridge interval")
	}

	cfg = validConfig()
	cfg.Bridge.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject zero bridge batch size")
	}

	cfg = validConfig()
	cfg.River.MaxWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject zero river workers")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "creditcore",
	}
	want := "postgres://u:p@db:5432/creditcore?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	cfg.URL = "postgres://explicit"
	if got := cfg.DSN(); got != "postgres://explicit" {
		t.Errorf("DSN() = %q, want explicit URL to win", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SECURITY_ENCRYPTION_KEY", strings.Repeat("e", 32))
	t.Setenv("SECURITY_WEBHOOK_SECRET", strings.Repeat("w", 32))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Bridge.Interval != time.Minute {
		t.Errorf("bridge.interval = %s, want 1m", cfg.Bridge.Interval)
	}
	if cfg.Bridge.BatchSize != 100 {
		t.Errorf("bridge.batch_size = %d, want 100", cfg.Bridge.BatchSize)
	}
	if cfg.River.TaskTimeout != 5*time.Minute {
		t.Errorf("river.task_timeout = %s, want 5m", cfg.River.TaskTimeout)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("breaker.failure_threshold = %d, want 5", cfg.Breaker.FailureThreshold)
	}
	if cfg.Lock.TTL != 5*time.Minute {
		t.Errorf("lock.ttl = %s, want 5m", cfg.Lock.TTL)
	}
	if cfg.WebSocket.IdleTimeout != time.Minute {
		t.Errorf("websocket.idle_timeout = %s, want 60s", cfg.WebSocket.IdleTimeout)
	}
	if cfg.Maintenance.StalePendingTTL != 0 {
		t.Errorf("maintenance.stale_pending_ttl = %s, want disabled (0)", cfg.Maintenance.StalePendingTTL)
	}
	if cfg.Redis.Channel != "websocket:broadcast" {
		t.Errorf("redis.channel = %q", cfg.Redis.Channel)
	}
}

func TestLoad_FailsWithoutSecrets(t *testing.T) {
	t.Setenv("SECURITY_ENCRYPTION_KEY", "")
	t.Setenv("SECURITY_WEBHOOK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("Load() without secrets should fail closed")
	}
}
