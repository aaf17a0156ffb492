// Package push defines the fire-and-forget delivery transport for device
// notifications. Delivery is best-effort, at-most-once from this service's
// perspective; the provider may retry internally.
package push

import "context"

// Message is one push notification addressed to a device token.
type Message struct {
	Token   string            `json:"token"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
	Channel string            `json:"channel,omitempty"`
}

// Transport sends one batch of messages. Accepted means the provider took
// the batch, not that every device received it.
type Transport interface {
	SendBatch(ctx context.Context, messages []Message) (accepted bool, err error)
}
