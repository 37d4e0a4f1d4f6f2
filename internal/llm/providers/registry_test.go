package providers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"boternity/internal/config"
)

func TestProviderOrderPutsPrimaryFirst(t *testing.T) {
	require.Equal(t, []string{"anthropic", "openai", "google"}, providerOrder("anthropic"))
	require.Equal(t, []string{"google", "openai", "anthropic"}, providerOrder("google"))
}

func TestBuildRequiresAtLeastOneCredential(t *testing.T) {
	_, err := Build(config.Config{LLMClient: config.LLMClientConfig{Provider: "openai"}}, nil)
	require.Error(t, err)
}

func TestBuildWiresConfiguredBackends(t *testing.T) {
	cfg := config.Config{
		LLMClient: config.LLMClientConfig{
			Provider: "openai",
			OpenAI:   config.OpenAIConfig{APIKey: "k", Model: "gpt-4o-mini"},
		},
	}
	chain, err := Build(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, chain)
}

func TestBuildSkipsBackendsWithoutCredentials(t *testing.T) {
	cfg := config.Config{
		LLMClient: config.LLMClientConfig{
			Provider:  "anthropic",
			Anthropic: config.AnthropicConfig{APIKey: "sk-ant"},
			OpenAI:    config.OpenAIConfig{}, // no key, must be skipped
		},
	}
	chain, err := Build(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, chain)
}
