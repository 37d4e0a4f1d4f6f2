package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"boternity/internal/errs"
)

// memStore is an in-process Store for local runs and tests, grounded on the
// same cosine-similarity scan as the pack's Qdrant-less fallback.
type memStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]VectorMemoryEntry
}

// NewMemStore returns a Store with no external dependency, scanning all
// entries per botID on every search. Fine for a handful of bots; not meant
// to stand in for Qdrant at scale.
func NewMemStore() Store {
	return &memStore{entries: make(map[uuid.UUID]VectorMemoryEntry)}
}

func (m *memStore) Add(_ context.Context, entry VectorMemoryEntry) error {
	if expected, ok := DimensionFor(entry.EmbeddingModel); ok && len(entry.Vector) != expected {
		return &errs.ValidationError{Field: "vector", Message: "vector length does not match embedding model dimension"}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	cp := make([]float32, len(entry.Vector))
	copy(cp, entry.Vector)
	entry.Vector = cp
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	return nil
}

func (m *memStore) Search(_ context.Context, botID uuid.UUID, query []float32, limit int, minSimilarity float64) ([]RankedMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	qnorm := l2norm(query)
	var ranked []RankedMemory
	for _, e := range m.entries {
		if e.BotID != botID {
			continue
		}
		score := cosineSimilarity(query, e.Vector, qnorm)
		if score < minSimilarity {
			continue
		}
		ranked = append(ranked, RankedMemory{Entry: e, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (m *memStore) CheckDuplicate(ctx context.Context, botID uuid.UUID, vector []float32, threshold float64) (*VectorMemoryEntry, error) {
	ranked, err := m.Search(ctx, botID, vector, 1, threshold)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}
	return &ranked[0].Entry, nil
}

func (m *memStore) GetAllForReembedding(_ context.Context, botID uuid.UUID, currentModel string) ([]VectorMemoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stale []VectorMemoryEntry
	for _, e := range m.entries {
		if e.BotID == botID && e.EmbeddingModel != currentModel {
			stale = append(stale, e)
		}
	}
	return stale, nil
}

func (m *memStore) UpdateEmbedding(_ context.Context, stale VectorMemoryEntry, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[stale.ID]; !ok {
		return &errs.ValidationError{Field: "id", Message: "unknown entry id"}
	}
	m.entries[stale.ID] = stale
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *memStore) Close() error { return nil }

func l2norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosineSimilarity(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = l2norm(a)
	}
	bnorm := l2norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}
