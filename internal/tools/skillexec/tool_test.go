package skillexec

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"boternity/internal/sandbox"
)

func TestRunSkillDispatchesNative(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, err := sandbox.NewTrustTieredExecutor(ctx)
	require.NoError(t, err)
	defer exec.Close(ctx)

	exec.RegisterNative("echo", func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return args, nil
	})

	tool := New(exec)
	respAny, err := tool.Call(ctx, json.RawMessage(`{"skill":"echo","args":{"x":1}}`))
	require.NoError(t, err)

	resp := respAny.(result)
	require.True(t, resp.OK)
	require.Equal(t, "local", resp.Tier)
	require.JSONEq(t, `{"x":1}`, string(resp.Result))
}

func TestRunSkillUnknownSkill(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, err := sandbox.NewTrustTieredExecutor(ctx)
	require.NoError(t, err)
	defer exec.Close(ctx)

	tool := New(exec)
	respAny, err := tool.Call(ctx, json.RawMessage(`{"skill":"missing"}`))
	require.NoError(t, err)

	resp := respAny.(result)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "unknown skill")
}

func TestRunSkillMissingName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, err := sandbox.NewTrustTieredExecutor(ctx)
	require.NoError(t, err)
	defer exec.Close(ctx)

	tool := New(exec)
	respAny, err := tool.Call(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)

	resp := respAny.(result)
	require.False(t, resp.OK)
}
