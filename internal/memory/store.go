package memory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"boternity/internal/errs"
)

// knownDimensions pins the vector width of embedding models this system has
// shipped a profile for. A model absent here is accepted on trust: its
// dimension is whatever the first vector Add sees declares.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"bge-small-en-v1.5":      384,
	"bge-base-en-v1.5":       768,
	"nomic-embed-text":       768,
}

// DimensionFor returns the pinned vector width for model, if known.
func DimensionFor(model string) (int, bool) {
	d, ok := knownDimensions[model]
	return d, ok
}

// Store is the per-bot vector table behind VectorMemoryEntry: add, search,
// dedupe, and the re-embedding migration.
type Store interface {
	Add(ctx context.Context, entry VectorMemoryEntry) error
	Search(ctx context.Context, botID uuid.UUID, query []float32, limit int, minSimilarity float64) ([]RankedMemory, error)
	CheckDuplicate(ctx context.Context, botID uuid.UUID, vector []float32, threshold float64) (*VectorMemoryEntry, error)
	GetAllForReembedding(ctx context.Context, botID uuid.UUID, currentModel string) ([]VectorMemoryEntry, error)
	// UpdateEmbedding writes stale to the collection for its (already
	// updated) EmbeddingModel and removes it from stale's previous
	// collection, identified by previousModel.
	UpdateEmbedding(ctx context.Context, stale VectorMemoryEntry, previousModel string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}

const (
	payloadFact           = "fact"
	payloadCategory       = "category"
	payloadImportance     = "importance"
	payloadBotID          = "bot_id"
	payloadSessionID      = "session_id"
	payloadCreatedAt      = "created_at"
	payloadLastAccessedAt = "last_accessed_at"
	payloadAccessCount    = "access_count"
	payloadModel          = "embedding_model"
)

// qdrantStore keeps one collection per (bot_id, embedding_model) pair, named
// bot_<uuid>_<model>, so a dimension mismatch is rejected by Qdrant itself in
// addition to the explicit check in Add.
type qdrantStore struct {
	client *qdrant.Client
	metric string

	mu      chan struct{} // 1-buffered mutex guarding ensured
	ensured map[string]bool
}

// NewQdrantClient dials Qdrant's gRPC API (default port 6334) from a
// qdrant://host:port?api_key=... DSN. Shared by NewQdrantStore and callers
// that need a client for the cross-bot SharedPool, which lives in its own
// collection on the same cluster.
func NewQdrantClient(dsn string) (*qdrant.Client, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse Qdrant DSN: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in Qdrant DSN: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	return qdrant.NewClient(cfg)
}

// NewQdrantStore dials Qdrant's gRPC API. metric selects the distance
// function new collections are created with: cosine (default), l2/euclidean,
// ip/dot, or manhattan.
func NewQdrantStore(dsn string, metric string) (Store, error) {
	client, err := NewQdrantClient(dsn)
	if err != nil {
		return nil, fmt.Errorf("create Qdrant client: %w", err)
	}
	return &qdrantStore{
		client:  client,
		metric:  strings.ToLower(strings.TrimSpace(metric)),
		mu:      make(chan struct{}, 1),
		ensured: make(map[string]bool),
	}, nil
}

func collectionName(botID uuid.UUID, model string) string {
	safe := strings.NewReplacer("/", "_", " ", "_", ":", "_").Replace(model)
	return fmt.Sprintf("bot_%s_%s", botID.String(), safe)
}

func (s *qdrantStore) lock()   { s.mu <- struct{}{} }
func (s *qdrantStore) unlock() { <-s.mu }

func (s *qdrantStore) ensureCollection(ctx context.Context, name string, dim int) error {
	s.lock()
	defer s.unlock()
	if s.ensured[name] {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		s.ensured[name] = true
		return nil
	}
	if dim <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	var distance qdrant.Distance
	switch s.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	s.ensured[name] = true
	return nil
}

func entryPayload(e VectorMemoryEntry) map[string]any {
	p := map[string]any{
		payloadFact:        e.Fact,
		payloadCategory:    string(e.Category),
		payloadImportance:  int64(e.Importance),
		payloadBotID:       e.BotID.String(),
		payloadCreatedAt:   e.CreatedAt.Format(time.RFC3339Nano),
		payloadAccessCount: int64(e.AccessCount),
		payloadModel:       e.EmbeddingModel,
	}
	if e.SessionID != uuid.Nil {
		p[payloadSessionID] = e.SessionID.String()
	}
	if e.LastAccessedAt != nil {
		p[payloadLastAccessedAt] = e.LastAccessedAt.Format(time.RFC3339Nano)
	}
	return p
}

func entryFromPayload(id uuid.UUID, vector []float32, payload map[string]*qdrant.Value) VectorMemoryEntry {
	e := VectorMemoryEntry{ID: id, Vector: vector}
	if v, ok := payload[payloadFact]; ok {
		e.Fact = v.GetStringValue()
	}
	if v, ok := payload[payloadCategory]; ok {
		e.Category = Category(v.GetStringValue())
	}
	if v, ok := payload[payloadImportance]; ok {
		e.Importance = int(v.GetIntegerValue())
	}
	if v, ok := payload[payloadBotID]; ok {
		e.BotID, _ = uuid.Parse(v.GetStringValue())
	}
	if v, ok := payload[payloadSessionID]; ok {
		e.SessionID, _ = uuid.Parse(v.GetStringValue())
	}
	if v, ok := payload[payloadCreatedAt]; ok {
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, v.GetStringValue())
	}
	if v, ok := payload[payloadLastAccessedAt]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
		if err == nil {
			e.LastAccessedAt = &t
		}
	}
	if v, ok := payload[payloadAccessCount]; ok {
		e.AccessCount = int(v.GetIntegerValue())
	}
	if v, ok := payload[payloadModel]; ok {
		e.EmbeddingModel = v.GetStringValue()
	}
	return e
}

func (s *qdrantStore) Add(ctx context.Context, entry VectorMemoryEntry) error {
	if expected, ok := DimensionFor(entry.EmbeddingModel); ok && len(entry.Vector) != expected {
		return &errs.ValidationError{Field: "vector", Message: fmt.Sprintf("vector has %d dims, model %q requires %d", len(entry.Vector), entry.EmbeddingModel, expected)}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	name := collectionName(entry.BotID, entry.EmbeddingModel)
	if err := s.ensureCollection(ctx, name, len(entry.Vector)); err != nil {
		return err
	}
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(entry.ID.String()),
		Vectors: qdrant.NewVectorsDense(entry.Vector),
		Payload: qdrant.NewValueMap(entryPayload(entry)),
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: name, Points: []*qdrant.PointStruct{point}})
	return err
}

// searchCollections enumerates every collection belonging to botID across
// all embedding models it has ever been written under.
func (s *qdrantStore) searchCollections(ctx context.Context, botID uuid.UUID) ([]string, error) {
	all, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	prefix := fmt.Sprintf("bot_%s_", botID.String())
	var names []string
	for _, name := range all {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *qdrantStore) Search(ctx context.Context, botID uuid.UUID, query []float32, limit int, minSimilarity float64) ([]RankedMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	names, err := s.searchCollections(ctx, botID)
	if err != nil {
		return nil, err
	}
	lim := uint64(limit)
	var results []RankedMemory
	for _, name := range names {
		hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: name,
			Query:          qdrant.NewQueryDense(query),
			Limit:          &lim,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", name, err)
		}
		for _, hit := range hits {
			score := float64(hit.Score)
			if score < minSimilarity {
				continue
			}
			id, _ := uuid.Parse(hit.Id.GetUuid())
			entry := entryFromPayload(id, denseVector(hit.Vectors), hit.Payload)
			results = append(results, RankedMemory{Entry: entry, Score: score})
		}
	}
	sortRankedDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func denseVector(v *qdrant.VectorsOutput) []float32 {
	if v == nil {
		return nil
	}
	if dense := v.GetVector(); dense != nil {
		return dense.GetData()
	}
	return nil
}

func sortRankedDesc(rs []RankedMemory) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].Score > rs[j-1].Score; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}

func (s *qdrantStore) CheckDuplicate(ctx context.Context, botID uuid.UUID, vector []float32, threshold float64) (*VectorMemoryEntry, error) {
	ranked, err := s.Search(ctx, botID, vector, 1, threshold)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}
	return &ranked[0].Entry, nil
}

func (s *qdrantStore) GetAllForReembedding(ctx context.Context, botID uuid.UUID, currentModel string) ([]VectorMemoryEntry, error) {
	names, err := s.searchCollections(ctx, botID)
	if err != nil {
		return nil, err
	}
	currentName := collectionName(botID, currentModel)
	var stale []VectorMemoryEntry
	for _, name := range names {
		if name == currentName {
			continue
		}
		limit := uint32(1000)
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll %s: %w", name, err)
		}
		for _, p := range points {
			id, _ := uuid.Parse(p.Id.GetUuid())
			stale = append(stale, entryFromPayload(id, denseVector(p.Vectors), p.Payload))
		}
	}
	return stale, nil
}

func (s *qdrantStore) UpdateEmbedding(ctx context.Context, stale VectorMemoryEntry, previousModel string) error {
	if err := s.Add(ctx, stale); err != nil {
		return fmt.Errorf("write re-embedded entry: %w", err)
	}
	oldName := collectionName(stale.BotID, previousModel)
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: oldName,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(stale.ID.String())),
	})
	if err != nil {
		return fmt.Errorf("delete stale point from %s: %w", oldName, err)
	}
	return nil
}

func (s *qdrantStore) Delete(ctx context.Context, id uuid.UUID) error {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	pointID := qdrant.NewIDUUID(id.String())
	for _, name := range names {
		if !strings.HasPrefix(name, "bot_") {
			continue
		}
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points:         qdrant.NewPointsSelector(pointID),
		})
		if err != nil {
			return fmt.Errorf("delete from %s: %w", name, err)
		}
	}
	return nil
}

func (s *qdrantStore) Close() error {
	return s.client.Close()
}
