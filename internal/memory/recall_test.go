package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps known strings onto fixed unit vectors so tests can
// assert on recall/dedup behaviour without a real embedding endpoint.
type fakeEmbedder struct {
	model string
	dim   int
	byKey map[string][]float32
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{model: "bge-small-en-v1.5", dim: 384, byKey: make(map[string][]float32)}
}

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	if v, ok := f.byKey[text]; ok {
		return v
	}
	// Deterministic pseudo-embedding: hash the text into a single hot index.
	h := 0
	for _, r := range text {
		h = (h*31 + int(r)) % f.dim
	}
	if h < 0 {
		h += f.dim
	}
	v := unitVector(f.dim, h)
	f.byKey[text] = v
	return v
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorFor(t)
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return f.model }
func (f *fakeEmbedder) Dimension() int    { return f.dim }

func TestServiceRememberAndRecall(t *testing.T) {
	bot := uuid.New()
	store := NewMemStore()
	emb := newFakeEmbedder()
	svc := NewService(bot, store, emb)

	_, err := svc.Remember(context.Background(), "the user prefers dark mode", CategoryPreference, 3, uuid.New())
	require.NoError(t, err)

	out, err := svc.Recall(context.Background(), "the user prefers dark mode")
	require.NoError(t, err)
	require.True(t, strings.Contains(out, "dark mode"))
}

func TestServiceRememberDeduplicates(t *testing.T) {
	bot := uuid.New()
	store := NewMemStore()
	emb := newFakeEmbedder()
	svc := NewService(bot, store, emb)

	first, err := svc.Remember(context.Background(), "likes espresso", CategoryPreference, 2, uuid.New())
	require.NoError(t, err)

	second, err := svc.Remember(context.Background(), "likes espresso", CategoryPreference, 2, uuid.New())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	all, err := store.GetAllForReembedding(context.Background(), bot, "some-other-model")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestServiceRecallEmptyQuery(t *testing.T) {
	svc := NewService(uuid.New(), NewMemStore(), newFakeEmbedder())
	out, err := svc.Recall(context.Background(), "   ")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestServiceReembedMigratesStaleEntries(t *testing.T) {
	bot := uuid.New()
	store := NewMemStore()
	oldEmbedder := &fakeEmbedder{model: "nomic-embed-text", dim: 768, byKey: make(map[string][]float32)}
	require.NoError(t, store.Add(context.Background(), VectorMemoryEntry{
		ID:             uuid.New(),
		BotID:          bot,
		Fact:           "stale fact",
		EmbeddingModel: oldEmbedder.model,
		Vector:         oldEmbedder.vectorFor("stale fact"),
	}))

	newEmbedder := newFakeEmbedder()
	svc := NewService(bot, store, newEmbedder)

	migrated, err := svc.Reembed(context.Background(), bot)
	require.NoError(t, err)
	require.Equal(t, 1, migrated)

	stale, err := store.GetAllForReembedding(context.Background(), bot, newEmbedder.model)
	require.NoError(t, err)
	require.Empty(t, stale)
}
