// Package errs defines the sentinel error taxonomy shared across the agent
// execution core. Each variant supports errors.Is/errors.As the way the rest
// of the codebase wraps errors with %w and logs with .Err(err).
package errs

import (
	"fmt"
	"strings"
)

// Cancelled indicates a request context (or an ancestor) was cancelled.
type Cancelled struct {
	RequestID string
}

func (e *Cancelled) Error() string {
	if e.RequestID == "" {
		return "request cancelled"
	}
	return fmt.Sprintf("request %s cancelled", e.RequestID)
}

// BudgetExhausted indicates the token budget for a request tree has been
// fully consumed.
type BudgetExhausted struct {
	TotalBudget uint32
	TokensUsed  uint32
}

func (e *BudgetExhausted) Error() string {
	return fmt.Sprintf("token budget exhausted: %d/%d used", e.TokensUsed, e.TotalBudget)
}

// CycleDetected indicates the same task signature has been attempted more
// than the configured threshold of times within an agent hierarchy.
type CycleDetected struct {
	Description string
}

func (e *CycleDetected) Error() string { return e.Description }

// ProviderErrorKind classifies why a provider call failed, used to decide
// retry and failover behavior.
type ProviderErrorKind int

const (
	ProviderErrorUnknown ProviderErrorKind = iota
	ProviderErrorRateLimit
	ProviderErrorTimeout
	ProviderErrorServer
	ProviderErrorAuth
	ProviderErrorInvalidRequest
)

func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderErrorRateLimit:
		return "rate_limit"
	case ProviderErrorTimeout:
		return "timeout"
	case ProviderErrorServer:
		return "server"
	case ProviderErrorAuth:
		return "auth"
	case ProviderErrorInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Retryable reports whether a provider-client-level retry is warranted for
// this error kind. RateLimit, Timeout and Server errors get one retry at the
// provider-client layer before the fallback chain advances to the next
// provider; Auth and InvalidRequest never do, since retrying won't help.
func (k ProviderErrorKind) Retryable() bool {
	switch k {
	case ProviderErrorRateLimit, ProviderErrorTimeout, ProviderErrorServer:
		return true
	default:
		return false
	}
}

// ProviderError wraps a failure from a specific LLM provider.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ClassifyProviderError wraps err as a ProviderError for provider, inferring
// its Kind from the status code or message text most SDKs surface in the
// error string (none of the three vendored clients expose a typed status
// code uniformly, so this sniffs for the patterns they share). A nil err
// returns nil.
func ClassifyProviderError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	if existing, ok := err.(*ProviderError); ok {
		return existing
	}
	msg := strings.ToLower(err.Error())
	kind := ProviderErrorUnknown
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		kind = ProviderErrorRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "permission denied") || strings.Contains(msg, "forbidden"):
		kind = ProviderErrorAuth
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context deadline") || strings.Contains(msg, "timeout") || strings.Contains(msg, "408"):
		kind = ProviderErrorTimeout
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504") || strings.Contains(msg, "internal server error") || strings.Contains(msg, "bad gateway") || strings.Contains(msg, "service unavailable"):
		kind = ProviderErrorServer
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request") || strings.Contains(msg, "invalid_request"):
		kind = ProviderErrorInvalidRequest
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// AllProvidersUnavailable indicates every provider in a fallback chain
// failed or had an open circuit breaker.
type AllProvidersUnavailable struct {
	Attempted []string
}

func (e *AllProvidersUnavailable) Error() string {
	return fmt.Sprintf("all providers unavailable: tried %v", e.Attempted)
}

// SkillFailureKind classifies why a sandboxed skill invocation failed, so a
// verified or untrusted skill's failure mode is distinguishable in the
// audit trail from a plain dispatch error.
type SkillFailureKind int

const (
	SkillFailureUnknown SkillFailureKind = iota
	// SkillFailureFuelExhausted marks a guest that ran past its instruction
	// budget. The executor has no fuel meter of its own; this kind is
	// assigned only when a guest-reported error message mentions fuel.
	SkillFailureFuelExhausted
	// SkillFailureEpochTimeout marks a guest killed for exceeding its wall
	// clock budget, whether by the runtime's context-driven epoch or by the
	// host's parent timeout on the sandbox subprocess.
	SkillFailureEpochTimeout
	// SkillFailureMemoryLimit marks a guest that tried to grow its linear
	// memory past the tier's configured ceiling.
	SkillFailureMemoryLimit
	// SkillFailureCapabilityDenied marks a guest (or its declared args) that
	// touched a filesystem path outside its manifest's granted permissions.
	SkillFailureCapabilityDenied
	// SkillFailureComponentFault marks a malformed module, a trap inside the
	// guest, or a sandbox protocol response that couldn't be parsed.
	SkillFailureComponentFault
	// SkillFailureSubprocessCrash marks the re-exec'd sandbox subprocess
	// itself failing to start or exiting non-zero for reasons other than
	// the parent's own timeout.
	SkillFailureSubprocessCrash
)

func (k SkillFailureKind) String() string {
	switch k {
	case SkillFailureFuelExhausted:
		return "fuel_exhausted"
	case SkillFailureEpochTimeout:
		return "epoch_timeout"
	case SkillFailureMemoryLimit:
		return "memory_limit"
	case SkillFailureCapabilityDenied:
		return "capability_denied"
	case SkillFailureComponentFault:
		return "component_fault"
	case SkillFailureSubprocessCrash:
		return "subprocess_crash"
	default:
		return "unknown"
	}
}

// SkillFailure wraps a sandboxed skill execution failure.
type SkillFailure struct {
	Skill string
	Kind  SkillFailureKind
	Err   error
}

func (e *SkillFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skill %s failed (%s): %v", e.Skill, e.Kind, e.Err)
	}
	return fmt.Sprintf("skill %s failed (%s)", e.Skill, e.Kind)
}

func (e *SkillFailure) Unwrap() error { return e.Err }

// IntegrityViolation indicates a stored entity's content hash no longer
// matches its recomputed hash.
type IntegrityViolation struct {
	Entity string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation: %s", e.Entity)
}

// ValidationError indicates caller-supplied input failed validation, e.g. an
// embedding whose length doesn't match the configured model dimension.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}
