//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"syscall"
)

// applySelfRestriction caps the child's own address space before it loads
// wazero, the closest best-effort substitute available without cgo for
// the Landlock LSM restriction the subprocess applies on the reference
// platform. It is additive defense-in-depth on top of wazero's memory
// limit and FS mounts, not a substitute for either: a failed rlimit call
// is logged to stderr and otherwise ignored, since the guest is still
// bounded by the runtime's own configured ceiling.
func applySelfRestriction(limits ResourceLimits) {
	if limits.MaxMemoryBytes == 0 {
		return
	}
	// Leave headroom over the wasm memory ceiling for the host Go runtime
	// itself (GC heap, goroutine stacks) inside this child process.
	cur := limits.MaxMemoryBytes + (64 << 20)
	rlimit := syscall.Rlimit{Cur: cur, Max: cur}
	if err := syscall.Setrlimit(syscall.RLIMIT_AS, &rlimit); err != nil {
		fmt.Fprintf(os.Stderr, "sandbox: rlimit RLIMIT_AS not applied: %v\n", err)
	}
}
