// Package skillexec exposes the sandbox's trust-tiered executor as a single
// tool so the model can invoke any registered skill (native or WASM) by
// name, the way the upstream code-eval tool let it pick a language runtime.
// Unlike that tool there is no container to shell out to: every skill here
// already went through the executor's RegisterNative or RegisterWasmSkill
// ahead of time, so this tool is pure dispatch plus tier reporting.
package skillexec

import (
	"context"
	"encoding/json"
	"fmt"

	"boternity/internal/sandbox"
)

// Tool dispatches "run_skill" calls to a TrustTieredExecutor.
type Tool struct {
	exec *sandbox.TrustTieredExecutor
}

// New wraps exec as a callable tool.
func New(exec *sandbox.TrustTieredExecutor) *Tool {
	return &Tool{exec: exec}
}

func (t *Tool) Name() string { return "run_skill" }

func (t *Tool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "Run a previously registered skill by name inside its configured trust tier (local native, verified WASM, or untrusted WASM) and return its result.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"skill": map[string]any{"type": "string", "description": "Registered skill name."},
				"args":  map[string]any{"type": "object", "description": "Arguments passed to the skill as its input payload."},
			},
			"required": []string{"skill"},
		},
	}
}

type callArgs struct {
	Skill string          `json:"skill"`
	Args  json.RawMessage `json:"args"`
}

// result wraps sandbox.Response with the tier the skill ran at, so callers
// can tell a native result from a WASM one without a second lookup.
type result struct {
	sandbox.Response
	Tier string `json:"tier,omitempty"`
}

func (t *Tool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args callArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("parse run_skill arguments: %w", err)
	}
	if args.Skill == "" {
		return result{Response: sandbox.Response{OK: false, Error: "missing skill name"}}, nil
	}
	if len(args.Args) == 0 {
		args.Args = json.RawMessage("{}")
	}

	tier, ok := t.exec.Tier(args.Skill)
	if !ok {
		return result{Response: sandbox.Response{OK: false, Error: fmt.Sprintf("unknown skill: %q", args.Skill)}}, nil
	}

	resp, err := t.exec.Execute(ctx, sandbox.Request{Skill: args.Skill, Args: args.Args})
	if err != nil {
		return result{Response: sandbox.Response{OK: false, Error: err.Error()}, Tier: tier.String()}, nil
	}
	return result{Response: resp, Tier: tier.String()}, nil
}
