// Package ai wraps the language-model providers used to classify and
// summarize bug reports. Providers are black boxes behind the Provider
// interface; Client adds retries, a circuit breaker, a concurrency limit and
// a rate limit on top of any of them.
package ai

import (
	"context"
	"errors"
)

// ErrNoResponse is returned when a provider answers without any text
var ErrNoResponse = errors.New("empty response from AI provider")

// Response is a single completion from a provider
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Provider is one language-model backend (Anthropic, OpenAI, Gemini)
type Provider interface {
	Name() string
	DefaultModel() string
	Generate(ctx context.Context, model, prompt string, maxTokens int) (*Response, error)
}

// Completer turns a prompt into text. operation names the call in logs.
type Completer interface {
	Complete(ctx context.Context, operation, prompt string, maxTokens int) (string, error)
}

// Embedder turns text into a vector for semantic comparison
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
