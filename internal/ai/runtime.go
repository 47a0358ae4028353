package ai

import "context"

// Runtime is the minimal interface implemented by completion backends
// such as OpenRouter, OpenAI, Gemini and local runtimes (Ollama).
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// StreamRuntime is an optional extension that supports streaming output.
// Implementors invoke onDelta with each partial content chunk, in order.
type StreamRuntime interface {
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderGoogle     = "google"
	ProviderOllama     = "ollama"
	ProviderLocal      = "local"
)

// DefaultModel returns a sensible model for a provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini, ProviderGoogle:
		return "gemini-2.5-flash"
	case ProviderOllama, ProviderLocal:
		return "llama3.1:8b"
	default:
		return "google/gemini-2.5-flash"
	}
}
