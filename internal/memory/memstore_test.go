package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"boternity/internal/errs"
)

func TestMemStoreAddAndSearch(t *testing.T) {
	store := NewMemStore()
	bot := uuid.New()

	err := store.Add(context.Background(), VectorMemoryEntry{
		BotID:          bot,
		Fact:           "prefers dark mode",
		Category:       CategoryPreference,
		EmbeddingModel: "bge-small-en-v1.5",
		Vector:         unitVector(384, 0),
	})
	require.NoError(t, err)

	err = store.Add(context.Background(), VectorMemoryEntry{
		BotID:          bot,
		Fact:           "works in Go",
		Category:       CategoryFact,
		EmbeddingModel: "bge-small-en-v1.5",
		Vector:         unitVector(384, 1),
	})
	require.NoError(t, err)

	results, err := store.Search(context.Background(), bot, unitVector(384, 0), 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "prefers dark mode", results[0].Entry.Fact)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestMemStoreRejectsDimensionMismatch(t *testing.T) {
	store := NewMemStore()
	err := store.Add(context.Background(), VectorMemoryEntry{
		BotID:          uuid.New(),
		EmbeddingModel: "bge-small-en-v1.5",
		Vector:         make([]float32, 10),
	})
	require.Error(t, err)
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestMemStoreCheckDuplicate(t *testing.T) {
	store := NewMemStore()
	bot := uuid.New()
	require.NoError(t, store.Add(context.Background(), VectorMemoryEntry{
		BotID:          bot,
		Fact:           "likes tea",
		EmbeddingModel: "bge-small-en-v1.5",
		Vector:         unitVector(384, 0),
	}))

	dup, err := store.CheckDuplicate(context.Background(), bot, unitVector(384, 0), 0.99)
	require.NoError(t, err)
	require.NotNil(t, dup)
	require.Equal(t, "likes tea", dup.Fact)

	none, err := store.CheckDuplicate(context.Background(), bot, unitVector(384, 1), 0.99)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestMemStoreGetAllForReembeddingAndUpdate(t *testing.T) {
	store := NewMemStore()
	bot := uuid.New()
	entry := VectorMemoryEntry{
		ID:             uuid.New(),
		BotID:          bot,
		Fact:           "old model fact",
		EmbeddingModel: "nomic-embed-text",
		Vector:         unitVector(768, 0),
	}
	require.NoError(t, store.Add(context.Background(), entry))

	stale, err := store.GetAllForReembedding(context.Background(), bot, "bge-small-en-v1.5")
	require.NoError(t, err)
	require.Len(t, stale, 1)

	stale[0].EmbeddingModel = "bge-small-en-v1.5"
	stale[0].Vector = unitVector(384, 0)
	require.NoError(t, store.UpdateEmbedding(context.Background(), stale[0], "nomic-embed-text"))

	none, err := store.GetAllForReembedding(context.Background(), bot, "bge-small-en-v1.5")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestMemStoreDelete(t *testing.T) {
	store := NewMemStore()
	bot := uuid.New()
	entry := VectorMemoryEntry{
		ID:             uuid.New(),
		BotID:          bot,
		Fact:           "to be deleted",
		EmbeddingModel: "bge-small-en-v1.5",
		Vector:         unitVector(384, 0),
	}
	require.NoError(t, store.Add(context.Background(), entry))
	require.NoError(t, store.Delete(context.Background(), entry.ID))

	results, err := store.Search(context.Background(), bot, unitVector(384, 0), 5, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

// unitVector returns a dim-length vector with a 1 at index hot and zeros
// elsewhere, so cosine similarity between two such vectors is exactly 1 when
// hot matches and 0 when it doesn't.
func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}
