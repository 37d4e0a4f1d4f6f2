package sandbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrustTieredExecutorNativeRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, err := NewTrustTieredExecutor(ctx)
	require.NoError(t, err)
	defer exec.Close(ctx)

	exec.RegisterNative("double", func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"n": in.N * 2})
	})

	tier, ok := exec.Tier("double")
	require.True(t, ok)
	require.Equal(t, TierLocal, tier)

	resp, err := exec.Execute(ctx, Request{Skill: "double", Args: json.RawMessage(`{"n":21}`)})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.JSONEq(t, `{"n":42}`, string(resp.Result))
}

func TestTrustTieredExecutorUnknownSkill(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, err := NewTrustTieredExecutor(ctx)
	require.NoError(t, err)
	defer exec.Close(ctx)

	_, err = exec.Execute(ctx, Request{Skill: "nope"})
	require.Error(t, err)
}

func TestTrustTieredExecutorNativeErrorBecomesResponse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, err := NewTrustTieredExecutor(ctx)
	require.NoError(t, err)
	defer exec.Close(ctx)

	exec.RegisterNative("boom", func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, errBoom
	})

	resp, err := exec.Execute(ctx, Request{Skill: "boom"})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, errBoom.Error(), resp.Error)
}

func TestDefaultLimitsVaryByTier(t *testing.T) {
	t.Parallel()

	untrusted := DefaultLimits(TierUntrusted)
	verified := DefaultLimits(TierVerified)
	local := DefaultLimits(TierLocal)

	require.Less(t, untrusted.MaxDuration, verified.MaxDuration)
	require.Less(t, untrusted.MaxMemoryBytes, verified.MaxMemoryBytes)
	require.Zero(t, local.MaxMemoryBytes)
	require.Equal(t, uint64(500_000), untrusted.MaxFuel)
	require.Equal(t, uint64(1_000_000), verified.MaxFuel)
}

func TestRegisterWasmSkillRejectsLocalTier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, err := NewTrustTieredExecutor(ctx)
	require.NoError(t, err)
	defer exec.Close(ctx)

	err = exec.RegisterWasmSkill(ctx, "nonexistent.wasm", SkillManifest{Name: "bad", Tier: TierLocal})
	require.Error(t, err)
}

var errBoom = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestTier_String(t *testing.T) {
	t.Parallel()
	require.Equal(t, "local", TierLocal.String())
	require.Equal(t, "verified", TierVerified.String())
	require.Equal(t, "untrusted", TierUntrusted.String())
}

func TestMemoryPagesRoundsUp(t *testing.T) {
	t.Parallel()
	require.Equal(t, uint32(0), memoryPages(0))
	require.Equal(t, uint32(1), memoryPages(1))
	require.Equal(t, uint32(1), memoryPages(65536))
	require.Equal(t, uint32(2), memoryPages(65537))
}

func TestExecuteRespectsDurationLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, err := NewTrustTieredExecutor(ctx)
	require.NoError(t, err)
	defer exec.Close(ctx)

	exec.RegisterNative("slow", func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		select {
		case <-time.After(time.Second):
			return json.RawMessage(`{}`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	tight := ResourceLimits{MaxDuration: 10 * time.Millisecond}
	exec.mu.Lock()
	exec.skills["slow"].limits = tight
	exec.mu.Unlock()

	resp, err := exec.Execute(ctx, Request{Skill: "slow"})
	require.NoError(t, err)
	require.False(t, resp.OK)
}
