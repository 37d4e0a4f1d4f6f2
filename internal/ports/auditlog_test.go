package ports

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"boternity/internal/sandbox"
)

func TestMemSkillAuditLogRecordAndFilter(t *testing.T) {
	log := NewMemSkillAuditLog()
	ctx := context.Background()
	bot := uuid.New()
	other := uuid.New()

	require.NoError(t, log.Record(ctx, SkillAuditRecord{
		BotID:       bot,
		SkillName:   "read_file",
		TrustTier:   sandbox.TierLocal,
		InputDigest: DigestInput([]byte(`{"path":"a.txt"}`)),
		OK:          true,
	}))
	require.NoError(t, log.Record(ctx, SkillAuditRecord{
		BotID:     other,
		SkillName: "run_skill",
		TrustTier: sandbox.TierUntrusted,
		OK:        false,
		Error:     "resource limit exceeded",
	}))

	got, err := log.ForBot(ctx, bot, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "read_file", got[0].SkillName)
	require.False(t, got[0].RecordedAt.IsZero())
}

func TestDigestInputDeterministic(t *testing.T) {
	a := DigestInput([]byte("same"))
	b := DigestInput([]byte("same"))
	c := DigestInput([]byte("different"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
