package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/config"
)

// NewClassifier builds the configured classifier client. Returns nil (and no
// error) when no classifier is configured; the mediation pipeline treats a
// nil classifier as "always fall back".
func NewClassifier(cfg *config.AIConfig, logger *zap.Logger) (Classifier, error) {
	if !cfg.IsConfigured() {
		return nil, nil
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Model, logger)
	case "openai":
		return NewOpenAIClient(&OpenAIConfig{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}
