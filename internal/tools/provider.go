package tools

import (
	"context"

	"boternity/internal/llmcore"
)

// Provider context plumbing lets a tool make its own calls back into the LLM
// (e.g. a summarization or delegation skill) without the registry needing a
// provider field of its own.
type providerKey struct{}

// WithProvider attaches the active LLM provider to the context so tools
// dispatched through the registry can call back into it.
func WithProvider(ctx context.Context, p llmcore.Provider) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, providerKey{}, p)
}

// ProviderFromContext returns the provider attached by WithProvider, or nil.
func ProviderFromContext(ctx context.Context) llmcore.Provider {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(providerKey{}); v != nil {
		if p, ok := v.(llmcore.Provider); ok {
			return p
		}
	}
	return nil
}
