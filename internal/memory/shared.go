package memory

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const sharedCollection = "shared_memory_pool"

const (
	sharedPayloadAuthor = "author_bot_id"
	sharedPayloadTrust  = "trust_level"
)

// IntegrityEvent reports a shared-memory row whose recomputed write_hash
// didn't match the one it was stored with. The row is skipped, never
// returned to a caller.
type IntegrityEvent struct {
	MemoryID uuid.UUID
	AuthorID uuid.UUID
}

// IntegritySink receives IntegrityEvents as they're detected.
type IntegritySink func(IntegrityEvent)

// writeHash canonically encodes (fact, category, author) and hashes it with
// SHA-256, matching the pool's original Rust implementation.
func writeHash(fact string, category Category, authorBotID uuid.UUID) [32]byte {
	canon := fmt.Sprintf("%s\x00%s\x00%s", fact, category, authorBotID.String())
	return sha256.Sum256([]byte(canon))
}

// SharedPool is the cross-bot memory pool of §4.9: a single table indexed by
// author, trust-filtered on read, integrity-checked against write_hash.
type SharedPool interface {
	Add(ctx context.Context, entry SharedMemoryEntry) error
	Search(ctx context.Context, reader uuid.UUID, trustedAuthors []uuid.UUID, query []float32, limit int) ([]RankedShared, error)
	Share(ctx context.Context, memoryID uuid.UUID, newLevel TrustLevel) error
	Revoke(ctx context.Context, caller, memoryID uuid.UUID) error
}

type qdrantSharedPool struct {
	client  *qdrant.Client
	metric  string
	onLeak  IntegritySink
	ensured bool
}

// NewSharedPool wraps an existing Qdrant client (shared with Store; the pool
// lives in its own collection, not one of the per-bot ones) with the pool's
// trust-filtering and hash-verification semantics. onIntegrityViolation may
// be nil.
func NewSharedPool(client *qdrant.Client, metric string, onIntegrityViolation IntegritySink) SharedPool {
	return &qdrantSharedPool{client: client, metric: metric, onLeak: onIntegrityViolation}
}

func (p *qdrantSharedPool) ensureCollection(ctx context.Context, dim int) error {
	if p.ensured {
		return nil
	}
	exists, err := p.client.CollectionExists(ctx, sharedCollection)
	if err != nil {
		return fmt.Errorf("check shared pool collection: %w", err)
	}
	if exists {
		p.ensured = true
		return nil
	}
	distance := qdrant.Distance_Cosine
	switch p.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	}
	if err := p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: sharedCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: distance,
		}),
	}); err != nil {
		return fmt.Errorf("create shared pool collection: %w", err)
	}
	p.ensured = true
	return nil
}

func (p *qdrantSharedPool) Add(ctx context.Context, entry SharedMemoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.WriteHash = writeHash(entry.Fact, entry.Category, entry.AuthorBotID)
	if err := p.ensureCollection(ctx, len(entry.Vector)); err != nil {
		return err
	}
	payload := entryPayload(entry.VectorMemoryEntry)
	payload[sharedPayloadAuthor] = entry.AuthorBotID.String()
	payload[sharedPayloadTrust] = string(entry.TrustLevel)
	payload["write_hash"] = fmt.Sprintf("%x", entry.WriteHash)
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(entry.ID.String()),
		Vectors: qdrant.NewVectorsDense(entry.Vector),
		Payload: qdrant.NewValueMap(payload),
	}
	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: sharedCollection, Points: []*qdrant.PointStruct{point}})
	return err
}

// Search returns rows visible to reader: Public rows from anyone, Trusted
// rows whose author is in trustedAuthors, never Private rows. Every
// candidate is re-hashed against its stored write_hash; a mismatch drops the
// row silently and fires onLeak instead of returning corrupted data.
func (p *qdrantSharedPool) Search(ctx context.Context, reader uuid.UUID, trustedAuthors []uuid.UUID, query []float32, limit int) ([]RankedShared, error) {
	if limit <= 0 {
		limit = 10
	}
	trusted := make(map[uuid.UUID]bool, len(trustedAuthors))
	for _, id := range trustedAuthors {
		trusted[id] = true
	}
	lim := uint64(limit * 4) // over-fetch since trust filtering happens client-side
	hits, err := p.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: sharedCollection,
		Query:          qdrant.NewQueryDense(query),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query shared pool: %w", err)
	}
	var out []RankedShared
	for _, hit := range hits {
		id, _ := uuid.Parse(hit.Id.GetUuid())
		entry := sharedFromPayload(id, denseVector(hit.Vectors), hit.Payload)
		switch entry.TrustLevel {
		case TrustPublic:
		case TrustTrusted:
			if !trusted[entry.AuthorBotID] {
				continue
			}
		default: // Private, or anything unrecognized: never leaves the pool
			continue
		}
		if writeHash(entry.Fact, entry.Category, entry.AuthorBotID) != entry.WriteHash {
			if p.onLeak != nil {
				p.onLeak(IntegrityEvent{MemoryID: entry.ID, AuthorID: entry.AuthorBotID})
			}
			continue
		}
		out = append(out, RankedShared{Entry: entry, Score: float64(hit.Score)})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func sharedFromPayload(id uuid.UUID, vector []float32, payload map[string]*qdrant.Value) SharedMemoryEntry {
	base := entryFromPayload(id, vector, payload)
	s := SharedMemoryEntry{VectorMemoryEntry: base}
	if v, ok := payload[sharedPayloadAuthor]; ok {
		s.AuthorBotID, _ = uuid.Parse(v.GetStringValue())
	}
	if v, ok := payload[sharedPayloadTrust]; ok {
		s.TrustLevel = TrustLevel(v.GetStringValue())
	}
	if v, ok := payload["write_hash"]; ok {
		fmt.Sscanf(v.GetStringValue(), "%x", &s.WriteHash)
	}
	return s
}

func (p *qdrantSharedPool) setPointsPayload(ctx context.Context, memoryID uuid.UUID, fields map[string]any) error {
	_, err := p.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: sharedCollection,
		Payload:        qdrant.NewValueMap(fields),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDUUID(memoryID.String())),
	})
	return err
}

func (p *qdrantSharedPool) Share(ctx context.Context, memoryID uuid.UUID, newLevel TrustLevel) error {
	return p.setPointsPayload(ctx, memoryID, map[string]any{sharedPayloadTrust: string(newLevel)})
}

func (p *qdrantSharedPool) Revoke(ctx context.Context, caller, memoryID uuid.UUID) error {
	points, err := p.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: sharedCollection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(memoryID.String())},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return fmt.Errorf("look up shared memory: %w", err)
	}
	if len(points) == 0 {
		return fmt.Errorf("memory %s not found", memoryID)
	}
	author, _ := uuid.Parse(points[0].Payload[sharedPayloadAuthor].GetStringValue())
	if author != caller {
		return fmt.Errorf("only the author may revoke memory %s", memoryID)
	}
	_, err = p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: sharedCollection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(memoryID.String())),
	})
	return err
}
