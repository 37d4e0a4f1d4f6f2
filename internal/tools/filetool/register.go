package filetool

import (
	"context"
	"encoding/json"

	"boternity/internal/sandbox"
	"boternity/internal/tools"
)

// Register attaches the read/write/patch skills to reg and, if exec is
// non-nil, also registers each as a TierLocal native skill so callers that
// dispatch through the sandbox executor (rather than the tool registry
// directly) see the same trust accounting.
func Register(reg tools.Registry, exec *sandbox.TrustTieredExecutor, allowedRoots []string, maxReadBytes, maxWriteBytes int, maxPatchBytes int64) {
	read := NewReadTool(allowedRoots, maxReadBytes)
	write := NewWriteTool(allowedRoots, maxWriteBytes)
	patch := NewPatchTool(allowedRoots, maxPatchBytes)

	reg.Register(read)
	reg.Register(write)
	reg.Register(patch)

	if exec == nil {
		return
	}
	exec.RegisterNative(read.Name(), nativeAdapter(read))
	exec.RegisterNative(write.Name(), nativeAdapter(write))
	exec.RegisterNative(patch.Name(), nativeAdapter(patch))
}

func nativeAdapter(t tools.Tool) sandbox.NativeFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		val, err := t.Call(ctx, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(val)
	}
}
