// Package llmcore defines the provider-agnostic LLM types and the fallback
// chain that routes completions across providers.
package llmcore

import "encoding/json"

// Message is a single turn in a conversation passed to a provider. Role is
// one of "system", "user", "assistant", or "tool".
type Message struct {
	Role             string
	Content          string
	ToolCalls        []ToolCall
	ToolID           string
	ThoughtSignature string
}

// ToolCall is a single function/tool invocation requested by the model.
type ToolCall struct {
	ID               string
	Name             string
	Args             json.RawMessage
	ThoughtSignature string
}

// ToolSchema describes a tool exposed to the model, in JSON Schema form.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// StreamHandler receives incremental events from a streaming completion.
type StreamHandler interface {
	OnDelta(text string)
	OnToolCall(call ToolCall)
	OnThoughtSummary(summary string)
	OnThoughtSignature(signature string)
}

// Usage reports token accounting for a single completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
