package llmcore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"

	"boternity/internal/errs"
)

// CircuitState mirrors the spec's Closed/Open/HalfOpen breaker states onto
// gobreaker's internal state machine.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ProviderHealth tracks a single provider's circuit breaker and priority
// within a FallbackChain.
type ProviderHealth struct {
	Name     string
	Priority uint8

	breaker *gobreaker.CircuitBreaker[Message]
}

// State reports the provider's current circuit state.
func (h *ProviderHealth) State() CircuitState {
	switch h.breaker.State() {
	case gobreaker.StateOpen:
		return CircuitOpen
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

// NewProviderHealth builds a ProviderHealth whose circuit opens after
// consecutiveFailures in a row and stays open for cooldown before allowing a
// single half-open probe.
func NewProviderHealth(name string, priority uint8, consecutiveFailures uint32, cooldown time.Duration) *ProviderHealth {
	h := &ProviderHealth{Name: name, Priority: priority}
	h.breaker = gobreaker.NewCircuitBreaker[Message](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	})
	return h
}

// chainEntry pairs a provider with its health tracker and per-token cost.
type chainEntry struct {
	health       *ProviderHealth
	provider     Provider
	costPerToken float64
}

// FallbackChain routes completions across a priority-ordered list of
// providers, skipping providers whose circuit is open, retrying a
// rate-limited provider within RateLimitQueueTimeout, and advancing to the
// next provider on any other failure.
// FallbackChain itself implements Provider, so it can be handed to
// AgentEngine in place of a single provider.
type FallbackChain struct {
	entries []*chainEntry

	// RateLimitQueueTimeout bounds how long a rate-limited request waits
	// before the chain gives up on that provider and advances.
	RateLimitQueueTimeout time.Duration
	// CostWarningMultiplier triggers OnCostWarning when a non-primary
	// provider's per-token cost exceeds the primary's by this factor.
	CostWarningMultiplier float64
	// OnCostWarning, if set, is called when a fallback provider more
	// expensive than the primary is used to complete a request.
	OnCostWarning func(provider string, cost, primaryCost float64)
}

// NewFallbackChain builds an empty chain; add providers with AddProvider.
func NewFallbackChain() *FallbackChain {
	return &FallbackChain{
		RateLimitQueueTimeout: 5 * time.Second,
		CostWarningMultiplier: 3.0,
	}
}

// AddProvider appends a provider to the chain at the given health/priority
// and per-token cost. Providers are tried in ascending Priority order.
func (c *FallbackChain) AddProvider(health *ProviderHealth, provider Provider, costPerToken float64) {
	c.entries = append(c.entries, &chainEntry{health: health, provider: provider, costPerToken: costPerToken})
	for i := len(c.entries) - 1; i > 0 && c.entries[i].health.Priority < c.entries[i-1].health.Priority; i-- {
		c.entries[i], c.entries[i-1] = c.entries[i-1], c.entries[i]
	}
}

func classifyErr(err error) errs.ProviderErrorKind {
	var perr *errs.ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return errs.ProviderErrorUnknown
}

// Chat attempts the request against each provider in priority order,
// skipping open circuits, retrying up to twice more within
// RateLimitQueueTimeout on a rate-limit error (see retryRateLimited), and
// advancing to the next provider on any other
// failure. Returns AllProvidersUnavailable if every provider fails.
func (c *FallbackChain) Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string) (Message, error) {
	if len(c.entries) == 0 {
		return Message{}, &errs.AllProvidersUnavailable{}
	}

	var attempted []string
	primaryCost := c.entries[0].costPerToken

	for i, entry := range c.entries {
		if entry.health.State() == CircuitOpen {
			continue
		}
		attempted = append(attempted, entry.health.Name)

		resp, err := entry.health.breaker.Execute(func() (Message, error) {
			return entry.provider.Chat(ctx, msgs, tools, model)
		})

		if err != nil && classifyErr(err) == errs.ProviderErrorRateLimit {
			resp, err = c.retryRateLimited(ctx, entry, msgs, tools, model)
		}

		if err != nil {
			continue
		}

		if i > 0 && primaryCost > 0 && entry.costPerToken > primaryCost*c.CostWarningMultiplier && c.OnCostWarning != nil {
			c.OnCostWarning(entry.health.Name, entry.costPerToken, primaryCost)
		}
		return resp, nil
	}

	return Message{}, &errs.AllProvidersUnavailable{Attempted: attempted}
}

// retryRateLimited re-calls the provider within RateLimitQueueTimeout using an
// exponential backoff policy capped to that window. WithMaxTries(2) counts
// every attempt, so it makes at most two more calls: the first immediately,
// the second after one backoff wait.
func (c *FallbackChain) retryRateLimited(ctx context.Context, entry *chainEntry, msgs []Message, tools []ToolSchema, model string) (Message, error) {
	timeout := c.RateLimitQueueTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = timeout

	return backoff.Retry(ctx, func() (Message, error) {
		resp, err := entry.health.breaker.Execute(func() (Message, error) {
			return entry.provider.Chat(ctx, msgs, tools, model)
		})
		if err != nil && classifyErr(err) == errs.ProviderErrorRateLimit {
			return Message{}, err
		}
		if err != nil {
			return Message{}, backoff.Permanent(err)
		}
		return resp, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(2))
}

// ChatStream picks the first provider with a closed (or half-open) circuit
// and streams from it. Unlike Chat, a mid-stream failure is not retried on
// another provider — reordering partial streamed output across providers
// isn't safe, so the failure surfaces directly to the caller.
func (c *FallbackChain) ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, model string, h StreamHandler) error {
	for _, entry := range c.entries {
		if entry.health.State() == CircuitOpen {
			continue
		}
		_, err := entry.health.breaker.Execute(func() (Message, error) {
			return Message{}, entry.provider.ChatStream(ctx, msgs, tools, model, h)
		})
		return err
	}
	return &errs.AllProvidersUnavailable{}
}
