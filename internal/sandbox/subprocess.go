package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ChildSentinel is the argv[1] value that tells main to run this same
// binary as a sandboxed WASM guest runner instead of the CLI. executeWasm
// re-execs os.Executable() with exactly this argument; every other
// inherited bit of parent state (environment, open file descriptors)
// beyond stdin/stdout/stderr is dropped, so a guest cannot reach anything
// the host process holds.
const ChildSentinel = "--wasm-sandbox-exec"

// SandboxRequest is the JSON document the host writes to the re-exec'd
// child's stdin: everything the child needs to run exactly one guest
// invocation with no other shared state.
type SandboxRequest struct {
	WasmPath       string          `json:"wasm_path"`
	Input          json.RawMessage `json:"input"`
	TrustTier      Tier            `json:"trust_tier"`
	ResourceLimits ResourceLimits  `json:"resource_limits"`
	Permissions    Permissions     `json:"permissions"`
}

// SandboxResponse is the JSON document the child writes to stdout before
// exiting, whatever happened. The host treats a non-zero exit status as a
// subprocess crash and a response that doesn't parse as this type as a
// component fault, rather than as a guest-level failure.
type SandboxResponse struct {
	Success         bool            `json:"success"`
	Output          json.RawMessage `json:"output,omitempty"`
	Error           string          `json:"error,omitempty"`
	FuelConsumed    uint64          `json:"fuel_consumed,omitempty"`
	MemoryPeakBytes uint64          `json:"memory_peak_bytes,omitempty"`
	WallDurationMS  int64           `json:"wall_duration_ms,omitempty"`
}

// RunChild is the sandbox subprocess's entire body: read a SandboxRequest
// from stdin, apply best-effort self-restriction, load and run the guest,
// and write exactly one SandboxResponse to stdout. main calls this when
// os.Args[1] == ChildSentinel and exits with whatever status it returns,
// never falling back into normal CLI startup.
func RunChild(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return writeCrash(stdout, stderr, fmt.Errorf("read sandbox request: %w", err))
	}
	var req SandboxRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return writeCrash(stdout, stderr, fmt.Errorf("parse sandbox request: %w", err))
	}

	applySelfRestriction(req.ResourceLimits)

	wasmBytes, err := os.ReadFile(req.WasmPath)
	if err != nil {
		return writeResponse(stdout, SandboxResponse{Error: fmt.Sprintf("read wasm path: %v", err)})
	}

	if body, ok := parseStub(wasmBytes); ok {
		output, err := json.Marshal(body)
		if err != nil {
			return writeResponse(stdout, SandboxResponse{Error: fmt.Sprintf("marshal stub body: %v", err)})
		}
		return writeResponse(stdout, SandboxResponse{Success: true, Output: output})
	}

	childCtx := ctx
	if req.ResourceLimits.MaxDuration > 0 {
		var cancel context.CancelFunc
		childCtx, cancel = context.WithTimeout(ctx, req.ResourceLimits.MaxDuration)
		defer cancel()
	}

	rt, err := newWazeroRuntime(childCtx, req.TrustTier, req.ResourceLimits)
	if err != nil {
		return writeResponse(stdout, SandboxResponse{Error: fmt.Sprintf("start runtime: %v", err)})
	}
	defer rt.Close(childCtx)

	compiled, err := rt.CompileModule(childCtx, wasmBytes)
	if err != nil {
		return writeResponse(stdout, SandboxResponse{Error: fmt.Sprintf("compile module: %v", err)})
	}
	defer compiled.Close(childCtx)

	fsConfig := wazero.NewFSConfig()
	for _, p := range req.Permissions.FSReadPaths {
		fsConfig = fsConfig.WithReadOnlyDirMount(p, p)
	}
	for _, p := range req.Permissions.FSWritePaths {
		fsConfig = fsConfig.WithDirMount(p, p)
	}

	var guestStdout, guestStderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(req.Input)).
		WithStdout(&guestStdout).
		WithStderr(&guestStderr).
		WithStartFunctions("_start").
		WithFSConfig(fsConfig)

	start := time.Now()
	mod, err := rt.InstantiateModule(childCtx, compiled, modCfg)
	wall := time.Since(start)
	if err != nil {
		if childCtx.Err() != nil {
			return writeResponse(stdout, SandboxResponse{Error: "guest exceeded its duration limit", WallDurationMS: wall.Milliseconds()})
		}
		return writeResponse(stdout, SandboxResponse{Error: fmt.Sprintf("instantiate guest: %v", err), WallDurationMS: wall.Milliseconds()})
	}
	defer mod.Close(childCtx)

	// wazero's linear memory only grows over a module's lifetime, so its
	// size at exit is a lower-bound proxy for peak usage; wazero exposes no
	// true high-water-mark counter.
	peak := uint64(0)
	if mem := mod.Memory(); mem != nil {
		peak = uint64(mem.Size())
	}

	var guestResp Response
	if err := json.Unmarshal(guestStdout.Bytes(), &guestResp); err != nil {
		return writeResponse(stdout, SandboxResponse{
			Error:           fmt.Sprintf("guest returned invalid JSON: %v (stderr: %s)", err, guestStderr.String()),
			MemoryPeakBytes: peak,
			WallDurationMS:  wall.Milliseconds(),
		})
	}
	return writeResponse(stdout, SandboxResponse{
		Success:         guestResp.OK,
		Output:          guestResp.Result,
		Error:           guestResp.Error,
		MemoryPeakBytes: peak,
		WallDurationMS:  wall.Milliseconds(),
	})
}

func writeResponse(w io.Writer, resp SandboxResponse) error {
	enc := json.NewEncoder(w)
	return enc.Encode(resp)
}

func writeCrash(stdout, stderr io.Writer, err error) error {
	fmt.Fprintln(stderr, err)
	_ = writeResponse(stdout, SandboxResponse{Error: err.Error()})
	return err
}

// newWazeroRuntime builds a single-use wazero runtime configured for tier:
// the untrusted tier clears SIMD from its core feature set, and both tiers
// get the memory ceiling from limits and WithCloseOnContextDone so an
// expired ctx interrupts a running guest rather than blocking forever.
func newWazeroRuntime(ctx context.Context, tier Tier, limits ResourceLimits) (wazero.Runtime, error) {
	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(memoryPages(limits.MaxMemoryBytes)).
		WithCloseOnContextDone(true)
	if tier == TierUntrusted {
		cfg = cfg.WithCoreFeatures(api.CoreFeaturesV2 &^ api.CoreFeatureSIMD)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}
