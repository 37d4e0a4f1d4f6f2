package tools

import (
	"context"
	"encoding/json"

	"boternity/internal/llmcore"
)

// DispatchEvent captures a single tool dispatch invocation and result, used
// for audit logging skill calls.
type DispatchEvent struct {
	Name    string
	Args    json.RawMessage
	Payload []byte
	Err     error
}

type recordingRegistry struct {
	base Registry
	on   func(DispatchEvent)
}

// NewRecordingRegistry wraps base and calls on after every Dispatch,
// independent of whether the dispatched tool itself errored.
func NewRecordingRegistry(base Registry, on func(DispatchEvent)) Registry {
	if base == nil {
		base = NewRegistry()
	}
	return &recordingRegistry{base: base, on: on}
}

func (r *recordingRegistry) Register(t Tool)               { r.base.Register(t) }
func (r *recordingRegistry) Schemas() []llmcore.ToolSchema { return r.base.Schemas() }

func (r *recordingRegistry) Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error) {
	payload, err := r.base.Dispatch(ctx, name, raw)
	if r.on != nil {
		r.on(DispatchEvent{Name: name, Args: raw, Payload: payload, Err: err})
	}
	return payload, err
}

type filteredRegistry struct {
	base  Registry
	allow map[string]bool
}

// NewFilteredRegistry wraps base so only tools named in allow are advertised
// or dispatchable. Registering a tool still registers it on base; names
// outside allow are simply never surfaced or reachable through this view.
func NewFilteredRegistry(base Registry, allow []string) Registry {
	set := make(map[string]bool, len(allow))
	for _, name := range allow {
		set[name] = true
	}
	return &filteredRegistry{base: base, allow: set}
}

func (r *filteredRegistry) Register(t Tool) { r.base.Register(t) }

func (r *filteredRegistry) Schemas() []llmcore.ToolSchema {
	all := r.base.Schemas()
	out := make([]llmcore.ToolSchema, 0, len(all))
	for _, s := range all {
		if r.allow[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

func (r *filteredRegistry) Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error) {
	if !r.allow[name] {
		return []byte(`{"ok":false,"error":"tool not found"}`), nil
	}
	return r.base.Dispatch(ctx, name, raw)
}
