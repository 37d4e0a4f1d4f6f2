package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultDuplicateThreshold is the cosine similarity above which Remember
// treats a candidate fact as already present rather than writing a new
// entry.
const DefaultDuplicateThreshold = 0.92

// DefaultRecallLimit bounds how many facts Recall folds into a turn's system
// prompt.
const DefaultRecallLimit = 5

// DefaultMinSimilarity is the relevance floor a fact must clear to be worth
// surfacing to the engine.
const DefaultMinSimilarity = 0.6

// Service implements agent.MemoryRecall against a Store and Embedder for a
// single bot.
type Service struct {
	BotID         uuid.UUID
	Store         Store
	Embedder      Embedder
	RecallLimit   int
	MinSimilarity float64
	DedupeAt      float64
}

// NewService wires a Store and Embedder into a per-bot recall/remember
// surface using the default thresholds.
func NewService(botID uuid.UUID, store Store, embedder Embedder) *Service {
	return &Service{
		BotID:         botID,
		Store:         store,
		Embedder:      embedder,
		RecallLimit:   DefaultRecallLimit,
		MinSimilarity: DefaultMinSimilarity,
		DedupeAt:      DefaultDuplicateThreshold,
	}
}

// Recall satisfies agent.MemoryRecall: embeds query, searches this bot's
// facts, and renders the hits as a bullet list for the system prompt.
func (s *Service) Recall(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}
	vecs, err := s.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embed recall query: %w", err)
	}
	if len(vecs) == 0 {
		return "", nil
	}
	limit := s.RecallLimit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}
	ranked, err := s.Store.Search(ctx, s.BotID, vecs[0], limit, s.MinSimilarity)
	if err != nil {
		return "", fmt.Errorf("search memory: %w", err)
	}
	if len(ranked) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, r := range ranked {
		fmt.Fprintf(&b, "- (%s) %s\n", r.Entry.Category, r.Entry.Fact)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Remember embeds and stores a new fact unless a near-duplicate already
// exists for this bot, per §4.8's check_duplicate contract.
func (s *Service) Remember(ctx context.Context, fact string, category Category, importance int, sessionID uuid.UUID) (*VectorMemoryEntry, error) {
	vecs, err := s.Embedder.Embed(ctx, []string{fact})
	if err != nil {
		return nil, fmt.Errorf("embed fact: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}
	vector := vecs[0]

	dedupeAt := s.DedupeAt
	if dedupeAt <= 0 {
		dedupeAt = DefaultDuplicateThreshold
	}
	if existing, err := s.Store.CheckDuplicate(ctx, s.BotID, vector, dedupeAt); err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	entry := VectorMemoryEntry{
		ID:             uuid.New(),
		BotID:          s.BotID,
		Fact:           fact,
		Category:       category,
		Importance:     importance,
		SessionID:      sessionID,
		CreatedAt:      time.Now(),
		EmbeddingModel: s.Embedder.ModelName(),
		Vector:         vector,
	}
	if err := s.Store.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("add memory: %w", err)
	}
	return &entry, nil
}

// Reembed migrates every entry of botID whose embedding model differs from
// the Service's current Embedder, per the §4.8 re-embed migration.
func (s *Service) Reembed(ctx context.Context, botID uuid.UUID) (int, error) {
	stale, err := s.Store.GetAllForReembedding(ctx, botID, s.Embedder.ModelName())
	if err != nil {
		return 0, fmt.Errorf("list stale entries: %w", err)
	}
	migrated := 0
	for _, entry := range stale {
		vecs, err := s.Embedder.Embed(ctx, []string{entry.Fact})
		if err != nil {
			return migrated, fmt.Errorf("re-embed %s: %w", entry.ID, err)
		}
		if len(vecs) == 0 {
			continue
		}
		previousModel := entry.EmbeddingModel
		entry.Vector = vecs[0]
		entry.EmbeddingModel = s.Embedder.ModelName()
		if err := s.Store.UpdateEmbedding(ctx, entry, previousModel); err != nil {
			return migrated, fmt.Errorf("update embedding for %s: %w", entry.ID, err)
		}
		migrated++
	}
	return migrated, nil
}
