package tools

import (
	"context"
	"encoding/json"
	"sync"

	"boternity/internal/llmcore"
)

// Tool is a skill the agent can invoke. Name and JSONSchema are used to
// advertise the skill to the model; Call executes it. Implementations are
// responsible for declaring their own trust tier when registered with the
// sandbox executor — Tool itself is tier-agnostic.
type Tool interface {
	Name() string
	JSONSchema() map[string]any
	Call(ctx context.Context, raw json.RawMessage) (any, error)
}

// Registry keeps track of tools and dispatches calls by name.
type Registry interface {
	Schemas() []llmcore.ToolSchema
	Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error)
	Register(t Tool)
}

type defaultRegistry struct {
	mu     sync.RWMutex
	byName map[string]Tool
}

// NewRegistry returns a basic in-memory registry safe for concurrent use.
func NewRegistry() Registry {
	return &defaultRegistry{byName: make(map[string]Tool)}
}

func (r *defaultRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[t.Name()] = t
}

func (r *defaultRegistry) Schemas() []llmcore.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llmcore.ToolSchema, 0, len(r.byName))
	for name, t := range r.byName {
		schema := t.JSONSchema()
		out = append(out, llmcore.ToolSchema{
			Name:        name,
			Description: strFrom(schema["description"]),
			Parameters:  mapFrom(schema["parameters"]),
		})
	}
	return out
}

func (r *defaultRegistry) Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error) {
	r.mu.RLock()
	t := r.byName[name]
	r.mu.RUnlock()
	if t == nil {
		return []byte(`{"ok":false,"error":"tool not found"}`), nil
	}
	val, err := t.Call(ctx, raw)
	if err != nil {
		b, _ := json.Marshal(map[string]any{"ok": false, "error": err.Error()})
		return b, nil
	}
	b, _ := json.Marshal(val)
	return b, nil
}

func strFrom(v any) string         { s, _ := v.(string); return s }
func mapFrom(v any) map[string]any { m, _ := v.(map[string]any); return m }
