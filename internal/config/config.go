// Package config provides configuration management for Credit Core.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	River       RiverConfig       `mapstructure:"river"`
	Bridge      BridgeConfig      `mapstructure:"bridge"`
	Security    SecurityConfig    `mapstructure:"security"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Lock        LockConfig        `mapstructure:"lock"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Strategy    StrategyConfig    `mapstructure:"strategy"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxPayloadBytes int64         `mapstructure:"max_payload_bytes"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// A single pgxpool is shared by the repositories, the queue bridge, and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// RedisConfig contains Redis settings for locks and pub/sub.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Channel is the pub/sub channel carrying application updates.
	Channel string `mapstructure:"channel"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains work queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	MaxAttempts                 int           `mapstructure:"max_attempts"`
	TaskTimeout                 time.Duration `mapstructure:"task_timeout"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// BridgeConfig contains queue bridge settings (pending_jobs → work queue).
type BridgeConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// SecurityConfig contains security-related settings.
// EncryptionKey and WebhookSecret are required at boot and must be at least
// 32 bytes; absence is fatal.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
}

// WorkerConfig contains goroutine pool settings.
type WorkerConfig struct {
	GeneralPoolSize   int `mapstructure:"general_pool_size"`
	BroadcastPoolSize int `mapstructure:"broadcast_pool_size"`
}

// BreakerConfig contains circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	ProviderTimeout  time.Duration `mapstructure:"provider_timeout"`
}

// LockConfig contains distributed lock settings.
type LockConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	AcquireBudget time.Duration `mapstructure:"acquire_budget"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// WebSocketConfig contains real-time fan-out settings.
type WebSocketConfig struct {
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
}

// MaintenanceConfig contains scheduled maintenance settings.
type MaintenanceConfig struct {
	PartitionMonthsAhead int           `mapstructure:"partition_months_ahead"`
	PartitionThreshold   int64         `mapstructure:"partition_threshold"`
	OrphanSweepInterval  time.Duration `mapstructure:"orphan_sweep_interval"`

	// StalePendingTTL enables auto-cancellation of PENDING applications older
	// than the TTL. Zero disables the job.
	StalePendingTTL time.Duration `mapstructure:"stale_pending_ttl"`
}

// StrategyConfig contains country strategy settings.
type StrategyConfig struct {
	// RulesFile optionally overrides the built-in country rule table (YAML).
	RulesFile string `mapstructure:"rules_file"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/credit-core")

	// Environment variable override, no prefix: DATABASE_URL, SERVER_PORT,
	// SECURITY_ENCRYPTION_KEY, and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors. Secrets fail closed:
// a missing or short key refuses to boot rather than degrade.
func (c *Config) Validate() error {
	if len(c.Security.EncryptionKey) < 32 {
		return fmt.Errorf("security.encryption_key must be at least 32 bytes (got %d)", len(c.Security.EncryptionKey))
	}
	if len(c.Security.WebhookSecret) < 32 {
		return fmt.Errorf("security.webhook_secret must be at least 32 bytes (got %d)", len(c.Security.WebhookSecret))
	}
	if c.Bridge.Interval <= 0 {
		return fmt.Errorf("bridge.interval must be positive")
	}
	if c.Bridge.BatchSize <= 0 {
		return fmt.Errorf("bridge.batch_size must be positive")
	}
	if c.River.MaxWorkers <= 0 {
		return fmt.Errorf("river.max_workers must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_payload_bytes", 2*1024*1024)

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "creditcore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "creditcore")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Redis
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "websocket:broadcast")

	// Security: registered empty so environment values bind; Validate
	// rejects them unless set.
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.webhook_secret", "")
	v.SetDefault("security.jwt_signing_key", "")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.max_attempts", 3)
	v.SetDefault("river.task_timeout", "5m")
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Bridge
	v.SetDefault("bridge.interval", "60s")
	v.SetDefault("bridge.batch_size", 100)

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.broadcast_pool_size", 200)

	// Circuit breaker
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", "60s")
	v.SetDefault("breaker.provider_timeout", "30s")

	// Distributed lock
	v.SetDefault("lock.ttl", "5m")
	v.SetDefault("lock.acquire_budget", "2s")
	v.SetDefault("lock.retry_interval", "100ms")

	// WebSocket
	v.SetDefault("websocket.idle_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.send_buffer_size", 32)

	// Maintenance
	v.SetDefault("maintenance.partition_months_ahead", 3)
	v.SetDefault("maintenance.partition_threshold", 1_000_000)
	v.SetDefault("maintenance.orphan_sweep_interval", "5m")
	v.SetDefault("maintenance.stale_pending_ttl", "0")
}
