package llmcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"boternity/internal/errs"
)

type scriptedProvider struct {
	name    string
	replies []Message
	errs    []error
	calls   int
}

func (p *scriptedProvider) Chat(context.Context, []Message, []ToolSchema, string) (Message, error) {
	i := p.calls
	p.calls++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	var reply Message
	switch {
	case i < len(p.replies):
		reply = p.replies[i]
	case len(p.replies) > 0:
		reply = p.replies[len(p.replies)-1]
	}
	return reply, err
}

func (p *scriptedProvider) ChatStream(context.Context, []Message, []ToolSchema, string, StreamHandler) error {
	if len(p.errs) > 0 {
		return p.errs[0]
	}
	return nil
}

func TestFallbackChainUsesPrimaryOnSuccess(t *testing.T) {
	chain := NewFallbackChain()
	primary := &scriptedProvider{name: "primary", replies: []Message{{Content: "ok"}}}
	secondary := &scriptedProvider{name: "secondary", replies: []Message{{Content: "nope"}}}

	chain.AddProvider(NewProviderHealth("primary", 0, 3, time.Minute), primary, 1.0)
	chain.AddProvider(NewProviderHealth("secondary", 1, 3, time.Minute), secondary, 1.0)

	resp, err := chain.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "model")
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, 0, secondary.calls)
}

func TestFallbackChainAdvancesOnNonRetryableError(t *testing.T) {
	chain := NewFallbackChain()
	primary := &scriptedProvider{
		name: "primary",
		errs: []error{&errs.ProviderError{Provider: "primary", Kind: errs.ProviderErrorAuth, Err: errors.New("bad key")}},
	}
	secondary := &scriptedProvider{name: "secondary", replies: []Message{{Content: "fallback ok"}}}

	chain.AddProvider(NewProviderHealth("primary", 0, 3, time.Minute), primary, 1.0)
	chain.AddProvider(NewProviderHealth("secondary", 1, 3, time.Minute), secondary, 1.0)

	resp, err := chain.Chat(context.Background(), nil, nil, "model")
	require.NoError(t, err)
	require.Equal(t, "fallback ok", resp.Content)
}

func TestFallbackChainAllProvidersUnavailable(t *testing.T) {
	chain := NewFallbackChain()
	primary := &scriptedProvider{errs: []error{errors.New("boom")}}
	chain.AddProvider(NewProviderHealth("primary", 0, 3, time.Minute), primary, 1.0)

	_, err := chain.Chat(context.Background(), nil, nil, "model")
	var unavailable *errs.AllProvidersUnavailable
	require.ErrorAs(t, err, &unavailable)
}

func TestFallbackChainSkipsOpenCircuit(t *testing.T) {
	chain := NewFallbackChain()
	failing := &scriptedProvider{errs: []error{errors.New("fail"), errors.New("fail"), errors.New("fail")}}
	healthy := &scriptedProvider{replies: []Message{{Content: "here"}}}

	failingHealth := NewProviderHealth("failing", 0, 2, time.Hour)
	chain.AddProvider(failingHealth, failing, 1.0)
	chain.AddProvider(NewProviderHealth("healthy", 1, 3, time.Hour), healthy, 1.0)

	// Trip the breaker with two consecutive failures via direct attempts.
	_, _ = chain.Chat(context.Background(), nil, nil, "model")
	require.Equal(t, CircuitClosed, failingHealth.State())

	_, err := chain.Chat(context.Background(), nil, nil, "model")
	require.NoError(t, err)
	require.Equal(t, CircuitOpen, failingHealth.State())

	resp, err := chain.Chat(context.Background(), nil, nil, "model")
	require.NoError(t, err)
	require.Equal(t, "here", resp.Content)
}

func TestFallbackChainCostWarning(t *testing.T) {
	chain := NewFallbackChain()
	chain.CostWarningMultiplier = 2.0
	var warned string
	chain.OnCostWarning = func(provider string, cost, primaryCost float64) { warned = provider }

	primary := &scriptedProvider{errs: []error{errors.New("down")}}
	expensive := &scriptedProvider{replies: []Message{{Content: "pricey"}}}

	chain.AddProvider(NewProviderHealth("primary", 0, 5, time.Minute), primary, 1.0)
	chain.AddProvider(NewProviderHealth("expensive", 1, 5, time.Minute), expensive, 10.0)

	resp, err := chain.Chat(context.Background(), nil, nil, "model")
	require.NoError(t, err)
	require.Equal(t, "pricey", resp.Content)
	require.Equal(t, "expensive", warned)
}
