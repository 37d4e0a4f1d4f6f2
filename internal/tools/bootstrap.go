package tools

import (
	"context"

	"boternity/internal/sandbox"
)

// Builtins configures which built-in skills NewBuiltinRegistry wires up.
type Builtins struct {
	AllowedRoots  []string
	MaxReadBytes  int
	MaxWriteBytes int
	MaxPatchBytes int64
	MaxParallel   int
	OnDispatch    func(DispatchEvent)
}

// BuiltinFactory breaks the import cycle between tools and its filetool and
// multitool subpackages: both subpackages import tools for the Registry and
// SubtoolSink types, so tools itself cannot import them back. Callers wire
// NewBuiltinRegistry by passing the subpackage constructors in.
type BuiltinFactory struct {
	// NewFileTools returns the filesystem skills to register, or nil to skip
	// them (e.g. a deployment that only runs WASM skills).
	NewFileTools func(allowedRoots []string, maxRead, maxWrite int, maxPatch int64) []Tool
	// NewParallelTool wraps a Registry view in the multi_tool_use_parallel
	// dispatcher.
	NewParallelTool func(reg Registry, maxParallel int) Tool
	// NewRunSkillTool wraps exec as the run_skill tool.
	NewRunSkillTool func(exec *sandbox.TrustTieredExecutor) Tool
}

// NewBuiltinRegistry assembles a Registry from cfg and factory, optionally
// wrapping it in an audit-recording decorator when cfg.OnDispatch is set.
func NewBuiltinRegistry(ctx context.Context, cfg Builtins, factory BuiltinFactory, exec *sandbox.TrustTieredExecutor) Registry {
	reg := NewRegistry()

	if factory.NewFileTools != nil {
		for _, t := range factory.NewFileTools(cfg.AllowedRoots, cfg.MaxReadBytes, cfg.MaxWriteBytes, cfg.MaxPatchBytes) {
			reg.Register(t)
		}
	}
	if factory.NewRunSkillTool != nil && exec != nil {
		reg.Register(factory.NewRunSkillTool(exec))
	}
	if factory.NewParallelTool != nil {
		reg.Register(factory.NewParallelTool(reg, cfg.MaxParallel))
	}

	if cfg.OnDispatch != nil {
		return NewRecordingRegistry(reg, cfg.OnDispatch)
	}
	return reg
}
