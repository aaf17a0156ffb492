package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Mediation: MediationConfig{ConfidenceThreshold: 0.6, MaxContextLots: 30},
		Notify:    NotifyConfig{BatchSize: 100, QueueWorkers: 2, QueueCapacity: 256},
		Sync:      SyncConfig{QueuePath: "offline-queue.db", MaxAttempts: 5},
		AI:        AIConfig{Provider: "anthropic"},
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, validConfig().validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Mediation.ConfidenceThreshold = 1.5 },
			wantErr: "confidence_threshold",
		},
		{
			name:    "threshold negative",
			mutate:  func(c *Config) { c.Mediation.ConfidenceThreshold = -0.1 },
			wantErr: "confidence_threshold",
		},
		{
			name:    "zero context lots",
			mutate:  func(c *Config) { c.Mediation.MaxContextLots = 0 },
			wantErr: "max_context_lots",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Notify.BatchSize = 0 },
			wantErr: "batch_size",
		},
		{
			name:    "zero sync attempts",
			mutate:  func(c *Config) { c.Sync.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.AI.Provider = "bedrock" },
			wantErr: "ai.provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.validate(), tt.wantErr)
		})
	}
}

func TestAIConfig_IsConfigured(t *testing.T) {
	assert.False(t, (&AIConfig{}).IsConfigured())
	assert.False(t, (&AIConfig{Model: "gpt-4o"}).IsConfigured())
	assert.True(t, (&AIConfig{Model: "gpt-4o", APIKey: "sk-test"}).IsConfigured())
	assert.True(t, (&AIConfig{Model: "local", Endpoint: "http://localhost:11434"}).IsConfigured())
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "lotline",
		Password: "secret",
		Database: "lotline_engine",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=lotline password=secret dbname=lotline_engine sslmode=disable",
		cfg.ConnectionString())
}
