// Package llm provides interfaces and implementations for Large Language Model clients.
//
// The recommender uses the LLM for three jobs: extracting structured
// requirements from a query, judging pairwise candidate relevance during
// reranking, and writing the final summary. All three are synchronous
// request/response calls.
package llm

import (
	"context"
)

// GenerateOptions configures the LLM generation request.
type GenerateOptions struct {
	// Model specifies the LLM model to use (e.g., "gemma3:4b").
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation (0.0 = deterministic).
	// Nil leaves the choice to the client, which applies its own default.
	Temperature *float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// Temp returns a pointer to t, for setting GenerateOptions.Temperature inline.
func Temp(t float32) *float32 {
	return &t
}

// LLM defines the interface for Large Language Model clients.
type LLM interface {
	// Generate sends a prompt to the LLM and returns the complete response.
	// It blocks until the full response is received or an error occurs.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}
