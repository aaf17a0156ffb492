// Package llm provides classifier clients for the mediation pipeline.
package llm

import "context"

// Classifier is the opaque classification collaborator: message text plus
// context in, raw model output out. The mediation pipeline owns parsing and
// must tolerate anything this returns.
// Use this interface for dependency injection to enable mocking in tests.
type Classifier interface {
	// Classify sends the prompt and system message to the model and returns
	// the raw response text.
	Classify(ctx context.Context, prompt string, systemMessage string) (string, error)

	// Model returns the configured model name.
	Model() string
}

// Ensure clients implement Classifier at compile time.
var (
	_ Classifier = (*AnthropicClient)(nil)
	_ Classifier = (*OpenAIClient)(nil)
	_ Classifier = (*MockClassifier)(nil)
)
