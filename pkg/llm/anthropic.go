package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient classifies messages via the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient creates a classifier backed by Anthropic.
func NewAnthropicClient(apiKey, model string, logger *zap.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(apiKey),
		model:     model,
		maxTokens: 1024,
		logger:    logger.Named("llm"),
	}, nil
}

// Classify implements Classifier.
func (c *AnthropicClient) Classify(ctx context.Context, prompt string, systemMessage string) (string, error) {
	c.logger.Debug("classification request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		System:    systemMessage,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		c.logger.Error("classification request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", fmt.Errorf("create messages: %w", err)
	}

	text := ""
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text = *block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in response")
	}

	c.logger.Info("classification request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// Model implements Classifier.
func (c *AnthropicClient) Model() string {
	return c.model
}
