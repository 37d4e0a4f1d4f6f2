package llmcore

import "context"

// Provider is the common surface every backing LLM implements: a single-shot
// completion and a streaming variant that reports incremental output through
// a StreamHandler. Concrete providers (Anthropic, OpenAI, Google) each
// adapt their own SDK to this shape.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string) (Message, error)
	ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, model string, h StreamHandler) error
}

// TokenizingProvider is implemented by providers that can report an accurate
// preflight token count via their own count_tokens endpoint, rather than the
// heuristic estimator.
type TokenizingProvider interface {
	Provider
	Tokenizer(cache *TokenCache) Tokenizer
	SupportsTokenization() bool
}
