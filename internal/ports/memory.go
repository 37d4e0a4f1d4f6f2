// Package ports collects the external-interface contracts the agent core
// depends on: persistence and audit. Each port ships a minimal in-memory
// implementation for tests and local runs. ChatRepository and SkillAuditLog
// also have Postgres-backed implementations in this package; there is no
// durable MemoryRepository here.
package ports

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"boternity/internal/errs"
	"boternity/internal/memory"
)

// MemoryEntry is a single extracted fact awaiting or past vectorization,
// keyed by (BotID, ID). This is the CRUD-and-queue layer behind the vector
// index in internal/memory: a MemoryEntry gets embedded and mirrored into a
// memory.VectorMemoryEntry once extraction succeeds, but the two are
// tracked independently so a failed or pending extraction never blocks
// conversation flow.
type MemoryEntry struct {
	ID              uuid.UUID
	BotID           uuid.UUID
	SessionID       uuid.UUID
	Fact            string
	Category        memory.Category
	Importance      int
	SourceMessageID *uuid.UUID
	SupersededBy    *uuid.UUID
	CreatedAt       time.Time
	IsManual        bool
}

// PendingExtraction tracks a session whose memory extraction hasn't
// completed yet, with backoff bookkeeping for the retry worker.
type PendingExtraction struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	BotID         uuid.UUID
	AttemptCount  int
	LastAttemptAt *time.Time
	NextAttemptAt time.Time
	ErrorMessage  string
	CreatedAt     time.Time
}

// MemoryRepository is CRUD over extracted memory entries and the
// pending-extraction queue, keyed by (bot_id, memory_id).
type MemoryRepository interface {
	SaveMemory(ctx context.Context, entry MemoryEntry) error
	GetMemories(ctx context.Context, botID uuid.UUID, limit int) ([]MemoryEntry, error)
	GetMemoriesBySession(ctx context.Context, sessionID uuid.UUID) ([]MemoryEntry, error)
	DeleteMemory(ctx context.Context, memoryID uuid.UUID) error
	DeleteAllMemories(ctx context.Context, botID uuid.UUID) (int, error)

	SavePendingExtraction(ctx context.Context, pending PendingExtraction) error
	GetPendingExtractions(ctx context.Context, botID uuid.UUID) ([]PendingExtraction, error)
	UpdatePendingExtraction(ctx context.Context, pending PendingExtraction) error
	DeletePendingExtraction(ctx context.Context, id uuid.UUID) error
}

type memMemoryRepository struct {
	mu       sync.RWMutex
	memories map[uuid.UUID]MemoryEntry
	pending  map[uuid.UUID]PendingExtraction
}

// NewMemMemoryRepository returns a process-local MemoryRepository with no
// external dependency, for tests and single-process local runs.
func NewMemMemoryRepository() MemoryRepository {
	return &memMemoryRepository{
		memories: make(map[uuid.UUID]MemoryEntry),
		pending:  make(map[uuid.UUID]PendingExtraction),
	}
}

func (r *memMemoryRepository) SaveMemory(_ context.Context, entry MemoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memories[entry.ID] = entry
	return nil
}

func (r *memMemoryRepository) GetMemories(_ context.Context, botID uuid.UUID, limit int) ([]MemoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemoryEntry, 0, len(r.memories))
	for _, m := range r.memories {
		if m.BotID == botID {
			out = append(out, m)
		}
	}
	sortMemoriesByCreatedDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memMemoryRepository) GetMemoriesBySession(_ context.Context, sessionID uuid.UUID) ([]MemoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []MemoryEntry
	for _, m := range r.memories {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sortMemoriesByCreatedDesc(out)
	return out, nil
}

func (r *memMemoryRepository) DeleteMemory(_ context.Context, memoryID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memories[memoryID]; !ok {
		return &errs.ValidationError{Field: "memory_id", Message: "unknown memory entry"}
	}
	delete(r.memories, memoryID)
	return nil
}

func (r *memMemoryRepository) DeleteAllMemories(_ context.Context, botID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for id, m := range r.memories {
		if m.BotID == botID {
			delete(r.memories, id)
			n++
		}
	}
	return n, nil
}

func (r *memMemoryRepository) SavePendingExtraction(_ context.Context, pending PendingExtraction) error {
	if pending.ID == uuid.Nil {
		pending.ID = uuid.New()
	}
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[pending.ID] = pending
	return nil
}

func (r *memMemoryRepository) GetPendingExtractions(_ context.Context, botID uuid.UUID) ([]PendingExtraction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []PendingExtraction
	for _, p := range r.pending {
		if p.BotID == botID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memMemoryRepository) UpdatePendingExtraction(_ context.Context, pending PendingExtraction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[pending.ID]; !ok {
		return &errs.ValidationError{Field: "id", Message: "unknown pending extraction"}
	}
	r.pending[pending.ID] = pending
	return nil
}

func (r *memMemoryRepository) DeletePendingExtraction(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	return nil
}

func sortMemoriesByCreatedDesc(m []MemoryEntry) {
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j].CreatedAt.After(m[j-1].CreatedAt); j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}
