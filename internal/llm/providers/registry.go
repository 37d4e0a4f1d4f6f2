// Package providers builds the llmcore.Provider the agent engine runs
// against: a FallbackChain wired from whichever of the configured backends
// (OpenAI, Anthropic, Google) carry credentials, ordered with the
// configured primary first.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"boternity/internal/config"
	"boternity/internal/errs"
	"boternity/internal/llm/anthropic"
	"boternity/internal/llm/google"
	"boternity/internal/llm/openai"
	"boternity/internal/llmcore"
)

// costTable gives each backend a nominal per-token cost used only to decide
// when a fallback is markedly more expensive than the primary, so
// FallbackChain.OnCostWarning fires for cross-provider failover but never
// for same-provider model differences.
var costTable = map[string]float64{
	"openai":    1.0,
	"anthropic": 1.2,
	"google":    0.6,
}

// classifyingProvider wraps a Provider so every returned error is
// reclassified into an errs.ProviderError, giving FallbackChain's
// rate-limit-retry path something real to key off regardless of which SDK
// produced the failure.
type classifyingProvider struct {
	name string
	llmcore.Provider
}

func (p *classifyingProvider) Chat(ctx context.Context, msgs []llmcore.Message, tools []llmcore.ToolSchema, model string) (llmcore.Message, error) {
	msg, err := p.Provider.Chat(ctx, msgs, tools, model)
	if err != nil {
		return msg, errs.ClassifyProviderError(p.name, err)
	}
	return msg, nil
}

func (p *classifyingProvider) ChatStream(ctx context.Context, msgs []llmcore.Message, tools []llmcore.ToolSchema, model string, h llmcore.StreamHandler) error {
	if err := p.Provider.ChatStream(ctx, msgs, tools, model, h); err != nil {
		return errs.ClassifyProviderError(p.name, err)
	}
	return nil
}

// Build constructs every backend with configured credentials, wraps each in
// a breaker-backed FallbackChain entry with the configured provider given
// priority 0 (tried first), and returns the chain. At least one of
// cfg.LLMClient.{OpenAI,Anthropic,Google}.APIKey must be set; Load already
// enforces this, but Build re-checks since callers may
// construct a Config by hand in tests.
func Build(cfg config.Config, httpClient *http.Client) (*llmcore.FallbackChain, error) {
	chain := llmcore.NewFallbackChain()

	order := providerOrder(cfg.LLMClient.Provider)
	var wired int
	for priority, name := range order {
		client, ok, err := newClient(name, cfg.LLMClient, httpClient)
		if err != nil {
			return nil, fmt.Errorf("providers: building %s: %w", name, err)
		}
		if !ok {
			continue
		}
		health := llmcore.NewProviderHealth(name, uint8(priority), 3, 30*time.Second)
		chain.AddProvider(health, &classifyingProvider{name: name, Provider: client}, costTable[name])
		wired++
	}

	if wired == 0 {
		return nil, fmt.Errorf("providers: no backend has credentials configured")
	}
	return chain, nil
}

// providerOrder puts primary first, then the remaining two backends in a
// fixed fallback order so the chain degrades predictably.
func providerOrder(primary string) []string {
	rest := []string{"openai", "anthropic", "google"}
	order := make([]string, 0, 3)
	order = append(order, primary)
	for _, name := range rest {
		if name != primary {
			order = append(order, name)
		}
	}
	return order
}

func newClient(name string, cfg config.LLMClientConfig, httpClient *http.Client) (llmcore.Provider, bool, error) {
	switch name {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, false, nil
		}
		return openai.New(cfg.OpenAI, httpClient), true, nil
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, false, nil
		}
		return anthropic.New(cfg.Anthropic, httpClient), true, nil
	case "google":
		if cfg.Google.APIKey == "" {
			return nil, false, nil
		}
		c, err := google.New(cfg.Google, httpClient)
		if err != nil {
			return nil, false, err
		}
		return c, true, nil
	default:
		return nil, false, nil
	}
}
