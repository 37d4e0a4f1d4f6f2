// Package events implements the agent hierarchy's broadcast event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the variant of an AgentEvent.
type Kind int

const (
	KindAgentSpawned Kind = iota
	KindAgentTextDelta
	KindAgentToolUse
	KindAgentCompleted
	KindAgentFailed
	KindBudgetWarning
	KindBudgetExhausted
	KindProviderFailover
	KindCostWarning
	KindCycleDetected
)

func (k Kind) String() string {
	switch k {
	case KindAgentSpawned:
		return "agent_spawned"
	case KindAgentTextDelta:
		return "agent_text_delta"
	case KindAgentToolUse:
		return "agent_tool_use"
	case KindAgentCompleted:
		return "agent_completed"
	case KindAgentFailed:
		return "agent_failed"
	case KindBudgetWarning:
		return "budget_warning"
	case KindBudgetExhausted:
		return "budget_exhausted"
	case KindProviderFailover:
		return "provider_failover"
	case KindCostWarning:
		return "cost_warning"
	case KindCycleDetected:
		return "cycle_detected"
	default:
		return "unknown"
	}
}

// AgentEvent is a tagged-union style event published on the bus. Only the
// fields relevant to Kind are populated; callers switch on Kind.
type AgentEvent struct {
	Kind      Kind
	Timestamp time.Time

	AgentID         uuid.UUID
	ParentID        *uuid.UUID
	TaskDescription string
	Depth           uint8
	Index           int
	Total           int

	Text string

	ToolName string
	ToolArgs string

	Result string
	Err    string

	TokensUsed  uint32
	TotalBudget uint32

	FromProvider string
	ToProvider   string
	Reason       string

	Provider    string
	CostPerCall float64
	Multiplier  float64

	CycleDescription string
}

// AgentSpawned builds a KindAgentSpawned event.
func AgentSpawned(agentID uuid.UUID, parentID *uuid.UUID, task string, depth uint8, index, total int) AgentEvent {
	return AgentEvent{Kind: KindAgentSpawned, AgentID: agentID, ParentID: parentID, TaskDescription: task, Depth: depth, Index: index, Total: total}
}

// AgentTextDelta builds a KindAgentTextDelta event.
func AgentTextDelta(agentID uuid.UUID, text string) AgentEvent {
	return AgentEvent{Kind: KindAgentTextDelta, AgentID: agentID, Text: text}
}

// AgentToolUse builds a KindAgentToolUse event.
func AgentToolUse(agentID uuid.UUID, name, args string) AgentEvent {
	return AgentEvent{Kind: KindAgentToolUse, AgentID: agentID, ToolName: name, ToolArgs: args}
}

// AgentCompleted builds a KindAgentCompleted event.
func AgentCompleted(agentID uuid.UUID, result string) AgentEvent {
	return AgentEvent{Kind: KindAgentCompleted, AgentID: agentID, Result: result}
}

// AgentFailed builds a KindAgentFailed event.
func AgentFailed(agentID uuid.UUID, err string) AgentEvent {
	return AgentEvent{Kind: KindAgentFailed, AgentID: agentID, Err: err}
}

// BudgetWarning builds a KindBudgetWarning event.
func BudgetWarning(agentID uuid.UUID, used, total uint32) AgentEvent {
	return AgentEvent{Kind: KindBudgetWarning, AgentID: agentID, TokensUsed: used, TotalBudget: total}
}

// BudgetExhausted builds a KindBudgetExhausted event.
func BudgetExhausted(agentID uuid.UUID, used, total uint32) AgentEvent {
	return AgentEvent{Kind: KindBudgetExhausted, AgentID: agentID, TokensUsed: used, TotalBudget: total}
}

// ProviderFailover builds a KindProviderFailover event.
func ProviderFailover(from, to, reason string) AgentEvent {
	return AgentEvent{Kind: KindProviderFailover, FromProvider: from, ToProvider: to, Reason: reason}
}

// CostWarning builds a KindCostWarning event.
func CostWarning(provider string, costPerCall, multiplier float64) AgentEvent {
	return AgentEvent{Kind: KindCostWarning, Provider: provider, CostPerCall: costPerCall, Multiplier: multiplier}
}

// CycleDetectedEvent builds a KindCycleDetected event.
func CycleDetectedEvent(agentID uuid.UUID, description string) AgentEvent {
	return AgentEvent{Kind: KindCycleDetected, AgentID: agentID, CycleDescription: description}
}
