package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for lotline-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (timeline pub/sub)
	Redis RedisConfig `yaml:"redis"`

	// Classifier endpoint for message mediation
	AI AIConfig `yaml:"ai"`

	// Mediation pipeline tunables
	Mediation MediationConfig `yaml:"mediation"`

	// Notification fan-out tunables
	Notify NotifyConfig `yaml:"notify"`

	// Push delivery transport
	Push PushConfig `yaml:"push"`

	// Timeline backlog tunables
	Timeline TimelineConfig `yaml:"timeline"`

	// Offline sync tunables (field clients)
	Sync SyncConfig `yaml:"sync"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"lotline"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"lotline_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis configuration for live timeline delivery.
// An empty host disables the live stream; backlog reads still work.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AIConfig holds the classification endpoint used by the mediation pipeline.
// Provider selects the client implementation: "anthropic" or "openai"
// (any OpenAI-compatible endpoint).
type AIConfig struct {
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"anthropic"`
	Endpoint string `yaml:"endpoint" env:"AI_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"AI_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
}

// IsConfigured returns true if a classifier endpoint is usable. Without one
// the pipeline still runs: every message gets the fallback interpretation.
func (c *AIConfig) IsConfigured() bool {
	return c.Model != "" && (c.APIKey != "" || c.Endpoint != "")
}

// MediationConfig holds mediation pipeline tunables.
type MediationConfig struct {
	// ConfidenceThreshold gates side-effects and notifications. Extractions
	// below it persist as interpretation only.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"MEDIATION_CONFIDENCE_THRESHOLD" env-default:"0.6"`
	// MaxContextLots bounds how many active lots go into the prompt snapshot.
	MaxContextLots int `yaml:"max_context_lots" env:"MEDIATION_MAX_CONTEXT_LOTS" env-default:"30"`
}

// NotifyConfig holds notification fan-out tunables.
type NotifyConfig struct {
	// BatchSize bounds how many device tokens go into one push batch.
	BatchSize int `yaml:"batch_size" env:"NOTIFY_BATCH_SIZE" env-default:"100"`
	// QueueWorkers is the number of background dispatch workers.
	QueueWorkers int `yaml:"queue_workers" env:"NOTIFY_QUEUE_WORKERS" env-default:"2"`
	// QueueCapacity bounds the dispatch queue; overflow is dropped and logged.
	QueueCapacity int `yaml:"queue_capacity" env:"NOTIFY_QUEUE_CAPACITY" env-default:"256"`
}

// PushConfig holds the push delivery endpoint. Delivery is best-effort,
// at-most-once from this service's perspective.
type PushConfig struct {
	Endpoint string `yaml:"endpoint" env:"PUSH_ENDPOINT" env-default:""`
	APIKey   string `yaml:"-" env:"PUSH_API_KEY"` // Secret - not in YAML
}

// TimelineConfig holds timeline delivery tunables.
type TimelineConfig struct {
	// BacklogLimit is how many recent messages a reconnecting subscriber
	// can fetch.
	BacklogLimit int `yaml:"backlog_limit" env:"TIMELINE_BACKLOG_LIMIT" env-default:"50"`
}

// SyncConfig holds offline queue tunables for field clients.
type SyncConfig struct {
	// QueuePath is the SQLite file backing the local queue.
	QueuePath string `yaml:"queue_path" env:"SYNC_QUEUE_PATH" env-default:"offline-queue.db"`
	// MaxAttempts bounds per-item replay attempts before quarantine.
	MaxAttempts int `yaml:"max_attempts" env:"SYNC_MAX_ATTEMPTS" env-default:"5"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Mediation.ConfidenceThreshold < 0 || c.Mediation.ConfidenceThreshold > 1 {
		return fmt.Errorf("mediation.confidence_threshold must be in [0,1], got %g", c.Mediation.ConfidenceThreshold)
	}
	if c.Mediation.MaxContextLots <= 0 {
		return fmt.Errorf("mediation.max_context_lots must be positive")
	}
	if c.Notify.BatchSize <= 0 {
		return fmt.Errorf("notify.batch_size must be positive")
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync.max_attempts must be positive")
	}
	switch c.AI.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("ai.provider must be anthropic or openai, got %q", c.AI.Provider)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
