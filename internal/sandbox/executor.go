package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"boternity/internal/errs"
)

// Tier classifies how much a skill is trusted. Local skills run natively,
// in-process, with no sandbox at all; Verified and Untrusted both run
// inside a WASM guest loaded by a re-exec'd subprocess, differing only in
// resource limits, filesystem permissions, and SIMD enablement (Untrusted
// disables it).
type Tier int

const (
	TierLocal Tier = iota
	TierVerified
	TierUntrusted
)

func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierVerified:
		return "verified"
	default:
		return "untrusted"
	}
}

// ResourceLimits bounds what a single WASM skill invocation may consume.
// MaxFuel is carried for parity with the manifest format and surfaced on
// Response, but wazero has no instruction-metering primitive analogous to
// wasmtime's consume_fuel, so it isn't enforced; MaxDuration (via an epoch
// timer driven off the context deadline, plus a parent-side timeout on the
// sandbox subprocess) and MaxMemoryBytes are the limits actually applied.
type ResourceLimits struct {
	MaxMemoryBytes uint64
	MaxFuel        uint64
	MaxDuration    time.Duration
}

// DefaultLimits returns the baseline resource envelope for a trust tier, per
// the manifest's declared defaults. TierLocal's limits are advisory only;
// native skills are not wasm-bounded.
func DefaultLimits(tier Tier) ResourceLimits {
	switch tier {
	case TierVerified:
		return ResourceLimits{MaxMemoryBytes: 64 << 20, MaxFuel: 1_000_000, MaxDuration: 30 * time.Second}
	case TierUntrusted:
		return ResourceLimits{MaxMemoryBytes: 16 << 20, MaxFuel: 500_000, MaxDuration: 10 * time.Second}
	default:
		return ResourceLimits{MaxDuration: 30 * time.Second}
	}
}

// memoryPages converts a byte budget into wazero's 64KiB page unit, rounding
// up so the guest never gets fewer pages than requested.
func memoryPages(maxBytes uint64) uint32 {
	const pageSize = 65536
	if maxBytes == 0 {
		return 0
	}
	pages := (maxBytes + pageSize - 1) / pageSize
	return uint32(pages)
}

// Request is the JSON protocol handed to a skill: the skill name (used for
// logging, not dispatch — the executor already knows which module/native
// func it's invoking) and its arguments.
type Request struct {
	Skill string          `json:"skill"`
	Args  json.RawMessage `json:"args"`
}

// Response is the JSON protocol a skill returns: OK/Result/Error are the
// guest-level outcome, exactly what a native func or a WASM guest's own
// stdout carries; FuelConsumed, MemoryPeakBytes, and WallDurationMS are
// the resource-metering record the sandbox subprocess reports back for
// WASM invocations (always zero for native skills, which aren't metered).
type Response struct {
	OK              bool            `json:"ok"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	FuelConsumed    uint64          `json:"fuel_consumed,omitempty"`
	MemoryPeakBytes uint64          `json:"memory_peak_bytes,omitempty"`
	WallDurationMS  int64           `json:"wall_duration_ms,omitempty"`
}

// NativeFunc implements a TierLocal skill without going through WASM.
type NativeFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

type registeredSkill struct {
	tier        Tier
	limits      ResourceLimits
	native      NativeFunc
	wasmPath    string
	permissions Permissions
}

// TrustTieredExecutor dispatches skill invocations according to the trust
// tier each skill was registered at: native funcs run directly in-process;
// everything else is handed to a freshly re-exec'd subprocess per call, so
// a guest's memory, file descriptors, and any host-side capability it
// might otherwise inherit can never survive past that one invocation.
type TrustTieredExecutor struct {
	mu     sync.RWMutex
	skills map[string]*registeredSkill
}

// NewTrustTieredExecutor builds an executor. It holds no wazero runtime of
// its own — those live only inside the sandbox subprocess, one per guest
// invocation — so construction here is just bookkeeping.
func NewTrustTieredExecutor(ctx context.Context) (*TrustTieredExecutor, error) {
	return &TrustTieredExecutor{skills: make(map[string]*registeredSkill)}, nil
}

// Close is a no-op; the executor owns no long-lived runtime to release.
// Kept so callers that previously deferred exec.Close don't need to change.
func (e *TrustTieredExecutor) Close(ctx context.Context) error {
	return nil
}

// RegisterNative wires a TierLocal skill backed by in-process Go code.
func (e *TrustTieredExecutor) RegisterNative(name string, fn NativeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.skills[name] = &registeredSkill{tier: TierLocal, limits: DefaultLimits(TierLocal), native: fn}
}

// RegisterWasmSkill validates wasmPath compiles (or is a recognized stub
// marker) and registers manifest.Permissions as the capability set the
// sandbox subprocess will grant that guest at call time. Validation
// happens eagerly, on a throwaway runtime closed immediately after, so a
// malformed module is rejected at registration rather than on first
// (possibly user-triggered) call; the actual compiled module used at
// execution time is always a fresh one built inside the subprocess, never
// this validation copy. manifest.Limits, when zero, falls back to the
// tier's default envelope.
func (e *TrustTieredExecutor) RegisterWasmSkill(ctx context.Context, wasmPath string, manifest SkillManifest) error {
	if manifest.Tier == TierLocal {
		return fmt.Errorf("wasm skills may not register at TierLocal: %s", manifest.Name)
	}
	limits := manifest.Limits
	if limits == (ResourceLimits{}) {
		limits = DefaultLimits(manifest.Tier)
	}

	raw, err := os.ReadFile(wasmPath)
	if err != nil {
		return fmt.Errorf("read wasm skill %q: %w", manifest.Name, err)
	}
	if _, isStub := parseStub(raw); !isStub {
		rt, err := newWazeroRuntime(ctx, manifest.Tier, limits)
		if err != nil {
			return fmt.Errorf("start validation runtime for %q: %w", manifest.Name, err)
		}
		compiled, err := rt.CompileModule(ctx, raw)
		if err != nil {
			rt.Close(ctx)
			return fmt.Errorf("compile skill %q: %w", manifest.Name, err)
		}
		compiled.Close(ctx)
		rt.Close(ctx)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.skills[manifest.Name] = &registeredSkill{tier: manifest.Tier, limits: limits, wasmPath: wasmPath, permissions: manifest.Permissions}
	return nil
}

// Tier reports the trust tier a registered skill runs at.
func (e *TrustTieredExecutor) Tier(name string) (Tier, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.skills[name]
	if !ok {
		return 0, false
	}
	return s.tier, true
}

// Execute dispatches req to the registered skill, enforcing its tier's wall
// clock limit and, for WASM guests, routing through the sandbox subprocess
// boundary. A WASM failure is returned as an *errs.SkillFailure so callers
// can classify it distinctly from a native dispatch error.
func (e *TrustTieredExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	e.mu.RLock()
	skill, ok := e.skills[req.Skill]
	e.mu.RUnlock()
	if !ok {
		return Response{}, fmt.Errorf("unknown skill: %q", req.Skill)
	}

	runCtx := ctx
	if skill.limits.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, skill.limits.MaxDuration)
		defer cancel()
	}

	if skill.native != nil {
		result, err := skill.native(runCtx, req.Args)
		if err != nil {
			return Response{OK: false, Error: err.Error()}, nil
		}
		return Response{OK: true, Result: result}, nil
	}

	return e.executeWasm(runCtx, req, skill)
}

// executeWasm re-execs the current binary with ChildSentinel and hands it
// a SandboxRequest over stdin. A wasm guest never runs inside this
// process: the child self-restricts, mounts only the manifest's allowed
// directories, and is the only place a compiled module is ever
// instantiated.
func (e *TrustTieredExecutor) executeWasm(ctx context.Context, req Request, skill *registeredSkill) (Response, error) {
	if err := checkCapabilities(req.Args, skill.permissions); err != nil {
		return Response{}, &errs.SkillFailure{Skill: req.Skill, Kind: errs.SkillFailureCapabilityDenied, Err: err}
	}

	exe, err := os.Executable()
	if err != nil {
		return Response{}, &errs.SkillFailure{Skill: req.Skill, Kind: errs.SkillFailureSubprocessCrash, Err: fmt.Errorf("resolve own executable: %w", err)}
	}

	sreq := SandboxRequest{
		WasmPath:       skill.wasmPath,
		Input:          req.Args,
		TrustTier:      skill.tier,
		ResourceLimits: skill.limits,
		Permissions:    skill.permissions,
	}
	payload, err := json.Marshal(sreq)
	if err != nil {
		return Response{}, &errs.SkillFailure{Skill: req.Skill, Kind: errs.SkillFailureComponentFault, Err: fmt.Errorf("marshal sandbox request: %w", err)}
	}

	cmd := exec.CommandContext(ctx, exe, ChildSentinel)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = []string{}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		if ctx.Err() != nil {
			return Response{}, &errs.SkillFailure{Skill: req.Skill, Kind: errs.SkillFailureEpochTimeout, Err: ctx.Err()}
		}
		return Response{}, &errs.SkillFailure{
			Skill: req.Skill,
			Kind:  errs.SkillFailureSubprocessCrash,
			Err:   fmt.Errorf("sandbox subprocess: %w (stderr: %s)", runErr, strings.TrimSpace(stderr.String())),
		}
	}

	var sresp SandboxResponse
	if err := json.Unmarshal(stdout.Bytes(), &sresp); err != nil {
		return Response{}, &errs.SkillFailure{Skill: req.Skill, Kind: errs.SkillFailureComponentFault, Err: fmt.Errorf("parse sandbox response: %w", err)}
	}

	resp := Response{
		OK:              sresp.Success,
		Result:          sresp.Output,
		Error:           sresp.Error,
		FuelConsumed:    sresp.FuelConsumed,
		MemoryPeakBytes: sresp.MemoryPeakBytes,
		WallDurationMS:  sresp.WallDurationMS,
	}
	if !sresp.Success && sresp.Error != "" {
		return resp, &errs.SkillFailure{Skill: req.Skill, Kind: classifyGuestFailure(sresp.Error), Err: fmt.Errorf("%s", sresp.Error)}
	}
	return resp, nil
}

// classifyGuestFailure maps a sandbox subprocess's reported error string
// onto the skill failure taxonomy, the same string-matching idiom used by
// errs.ClassifyProviderError for LLM provider errors: the subprocess
// protocol only carries a message, not a structured kind, so the host
// recovers one on a best-effort basis.
func classifyGuestFailure(msg string) errs.SkillFailureKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "duration limit") || strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "context canceled"):
		return errs.SkillFailureEpochTimeout
	case strings.Contains(lower, "memory") && (strings.Contains(lower, "grow") || strings.Contains(lower, "limit") || strings.Contains(lower, "out of")):
		return errs.SkillFailureMemoryLimit
	case strings.Contains(lower, "fuel"):
		return errs.SkillFailureFuelExhausted
	case strings.Contains(lower, "permission") || strings.Contains(lower, "capability") || strings.Contains(lower, "not permitted"):
		return errs.SkillFailureCapabilityDenied
	case strings.Contains(lower, "invalid json") || strings.Contains(lower, "compile") || strings.Contains(lower, "instantiate"):
		return errs.SkillFailureComponentFault
	default:
		return errs.SkillFailureComponentFault
	}
}

// checkCapabilities walks args' top-level string values and rejects any
// path-shaped one that doesn't resolve under skill's granted read or write
// roots, using the same sanitize logic filetool applies to its own
// workdir-scoped paths. This is the host-side half of the FS capability
// gate; the subprocess's wazero FSConfig mount is the other half, applied
// inside the guest itself.
func checkCapabilities(args json.RawMessage, perms Permissions) error {
	if len(args) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(args, &fields); err != nil {
		// Not an object (array/scalar args); nothing to walk.
		return nil
	}
	roots := make([]string, 0, len(perms.FSReadPaths)+len(perms.FSWritePaths))
	roots = append(roots, perms.FSReadPaths...)
	roots = append(roots, perms.FSWritePaths...)

	for key, v := range fields {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if _, _, err := SanitizeAgainstRoots(roots, s); err != nil {
			return fmt.Errorf("argument %q: %w", key, err)
		}
	}
	return nil
}
