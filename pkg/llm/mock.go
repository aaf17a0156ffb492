package llm

import "context"

// MockClassifier is a configurable mock for testing mediation behavior.
// Set ClassifyFunc to control responses in tests.
type MockClassifier struct {
	// ClassifyFunc is called when Classify is invoked.
	// If nil, returns empty string and nil error.
	ClassifyFunc func(ctx context.Context, prompt string, systemMessage string) (string, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// ClassifyCalls counts invocations for verification.
	ClassifyCalls int
}

// NewMockClassifier creates a new mock with sensible defaults.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{ModelName: "mock-model"}
}

// Classify implements Classifier.
func (m *MockClassifier) Classify(ctx context.Context, prompt string, systemMessage string) (string, error) {
	m.ClassifyCalls++
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, prompt, systemMessage)
	}
	return "", nil
}

// Model implements Classifier.
func (m *MockClassifier) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}
