package reqctx

import "sync/atomic"

// BudgetStatus reports the outcome of adding tokens to a Budget.
type BudgetStatus int

const (
	// BudgetOK means usage remains under the warning threshold.
	BudgetOK BudgetStatus = iota
	// BudgetWarning is returned exactly once, the moment usage crosses 80%.
	BudgetWarning
	// BudgetExhausted means usage is at or over the total budget.
	BudgetExhausted
)

func (s BudgetStatus) String() string {
	switch s {
	case BudgetWarning:
		return "warning"
	case BudgetExhausted:
		return "exhausted"
	default:
		return "ok"
	}
}

// Budget is a lock-free token budget tracker shared across an agent
// hierarchy. Cloning (by copying the struct, since all fields are pointers
// or immutable) produces a shared view of the same counters; construct once
// with NewBudget and pass the value by copy.
type Budget struct {
	total           uint32
	tokensUsed      *atomic.Uint32
	warningEmitted  *atomic.Bool
}

// NewBudget creates a budget with the given total token limit.
func NewBudget(total uint32) Budget {
	return Budget{
		total:          total,
		tokensUsed:     &atomic.Uint32{},
		warningEmitted: &atomic.Bool{},
	}
}

// AddTokens atomically adds tokens and reports the resulting status. The
// warning status is returned at most once per budget lifetime, the instant
// usage crosses the 80% threshold.
func (b Budget) AddTokens(tokens uint32) BudgetStatus {
	newTotal := b.tokensUsed.Add(tokens)
	prev := newTotal - tokens

	if newTotal >= b.total {
		return BudgetExhausted
	}

	threshold := b.total * 80 / 100
	if prev < threshold && newTotal >= threshold && b.warningEmitted.CompareAndSwap(false, true) {
		return BudgetWarning
	}
	return BudgetOK
}

// TokensUsed returns the current number of tokens consumed.
func (b Budget) TokensUsed() uint32 { return b.tokensUsed.Load() }

// Total returns the configured total budget.
func (b Budget) Total() uint32 { return b.total }

// Remaining returns the tokens left before exhaustion, saturating at zero.
func (b Budget) Remaining() uint32 {
	used := b.tokensUsed.Load()
	if used >= b.total {
		return 0
	}
	return b.total - used
}

// Percentage returns the fraction of budget consumed, 0-100+.
func (b Budget) Percentage() float32 {
	if b.total == 0 {
		return 100.0
	}
	return float32(b.tokensUsed.Load()) / float32(b.total) * 100.0
}
