package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPTransport posts message batches as JSON to a push provider endpoint.
type HTTPTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPTransport creates a transport for the given provider endpoint.
// Returns nil if no endpoint is configured; callers treat a nil transport
// as "push disabled".
func NewHTTPTransport(endpoint, apiKey string, logger *zap.Logger) *HTTPTransport {
	if endpoint == "" {
		return nil
	}
	return &HTTPTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger.Named("push"),
	}
}

var _ Transport = (*HTTPTransport)(nil)

// SendBatch implements Transport.
func (t *HTTPTransport) SendBatch(ctx context.Context, messages []Message) (bool, error) {
	if len(messages) == 0 {
		return true, nil
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return false, fmt.Errorf("marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("send push batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.logger.Warn("push provider rejected batch",
			zap.Int("status", resp.StatusCode),
			zap.Int("batch_size", len(messages)))
		return false, fmt.Errorf("push provider returned status %d", resp.StatusCode)
	}

	return true, nil
}
