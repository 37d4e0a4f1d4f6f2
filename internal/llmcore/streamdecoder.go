package llmcore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StreamEventKind identifies one event in the provider-agnostic streaming
// protocol every backend normalizes into, modelled on Anthropic's SSE shape.
type StreamEventKind int

const (
	EventMessageStart StreamEventKind = iota
	EventToolUseStart
	EventTextDelta
	EventToolInputDelta
	EventToolUseStop
	EventMessageDelta
	EventMessageStop
	EventKeepalive
	EventError
)

// StopReason is the reason a streamed completion ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// StreamEvent is a single normalized streaming event. Which fields are
// populated depends on Kind; see StreamEventKind's constants.
type StreamEvent struct {
	Kind StreamEventKind

	// EventMessageStart
	ResponseID  string
	InputTokens int

	// EventToolUseStart / EventToolInputDelta / EventToolUseStop
	BlockIndex        int
	ToolCallID        string
	ToolName          string
	ToolInputFragment string

	// EventTextDelta
	TextDelta string

	// EventMessageDelta
	OutputTokens int
	StopReason   StopReason

	// EventError
	Err error
}

// StreamingDecoder accumulates a sequence of StreamEvents into a complete
// Message. Tool input arrives as partial JSON fragments keyed by block
// index; fragments are accumulated per-block and parsed only once that
// block's ToolUseStop arrives, per the streaming protocol's contract.
type StreamingDecoder struct {
	responseID string
	text       strings.Builder
	usage      Usage
	stopReason StopReason

	toolNames     map[int]string
	toolIDs       map[int]string
	toolFragments map[int]*strings.Builder
	toolCalls     []ToolCall
}

// NewStreamingDecoder returns a decoder ready to consume a fresh stream.
func NewStreamingDecoder() *StreamingDecoder {
	return &StreamingDecoder{
		toolNames:     make(map[int]string),
		toolIDs:       make(map[int]string),
		toolFragments: make(map[int]*strings.Builder),
	}
}

// Feed applies one event to the decoder's accumulated state, forwarding
// deltas and completed tool calls to h if non-nil. A Keepalive is a no-op.
// An Error event returns its wrapped error immediately, terminating the
// stream; the caller should not call Feed again afterward.
func (d *StreamingDecoder) Feed(ev StreamEvent, h StreamHandler) error {
	switch ev.Kind {
	case EventMessageStart:
		d.responseID = ev.ResponseID
		d.usage.PromptTokens = ev.InputTokens

	case EventToolUseStart:
		d.toolNames[ev.BlockIndex] = ev.ToolName
		d.toolIDs[ev.BlockIndex] = ev.ToolCallID
		d.toolFragments[ev.BlockIndex] = &strings.Builder{}

	case EventTextDelta:
		d.text.WriteString(ev.TextDelta)
		if h != nil {
			h.OnDelta(ev.TextDelta)
		}

	case EventToolInputDelta:
		b, ok := d.toolFragments[ev.BlockIndex]
		if !ok {
			b = &strings.Builder{}
			d.toolFragments[ev.BlockIndex] = b
		}
		b.WriteString(ev.ToolInputFragment)

	case EventToolUseStop:
		raw := "{}"
		if b, ok := d.toolFragments[ev.BlockIndex]; ok && b.Len() > 0 {
			raw = b.String()
		}
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("tool input for block %d is not valid JSON: %q", ev.BlockIndex, raw)
		}
		call := ToolCall{
			ID:   d.toolIDs[ev.BlockIndex],
			Name: d.toolNames[ev.BlockIndex],
			Args: json.RawMessage(raw),
		}
		d.toolCalls = append(d.toolCalls, call)
		if h != nil {
			h.OnToolCall(call)
		}

	case EventMessageDelta:
		d.usage.CompletionTokens = ev.OutputTokens
		d.usage.TotalTokens = d.usage.PromptTokens + d.usage.CompletionTokens
		d.stopReason = ev.StopReason

	case EventMessageStop, EventKeepalive:
		// no state to update

	case EventError:
		return ev.Err
	}
	return nil
}

// Message returns the assembled completion. Call after the terminal
// EventMessageStop (or after Feed returns a non-nil error to inspect
// whatever was accumulated before the failure).
func (d *StreamingDecoder) Message() Message {
	role := "assistant"
	return Message{Role: role, Content: d.text.String(), ToolCalls: d.toolCalls}
}

// StopReason returns the stop reason reported by the last EventMessageDelta.
func (d *StreamingDecoder) StopReason() StopReason { return d.stopReason }

// Usage returns accumulated prompt/completion token counts.
func (d *StreamingDecoder) Usage() Usage { return d.usage }

// ResponseID returns the response ID reported by EventMessageStart.
func (d *StreamingDecoder) ResponseID() string { return d.responseID }
