// Package memory implements vector-indexed long-term memory and the
// cross-bot shared memory pool: per-bot semantic recall over extracted
// facts, plus an opt-in pool bots can publish memories into for other bots
// to read, gated by trust level.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies an extracted memory for retrieval prioritization.
type Category string

const (
	CategoryPreference Category = "preference"
	CategoryFact       Category = "fact"
	CategoryDecision   Category = "decision"
	CategoryContext    Category = "context"
	CategoryCorrection Category = "correction"
)

// TrustLevel gates whether a shared memory is visible to other bots.
type TrustLevel string

const (
	TrustPrivate TrustLevel = "private"
	TrustTrusted TrustLevel = "trusted"
	TrustPublic  TrustLevel = "public"
)

// VectorMemoryEntry is a single fact extracted from a conversation, bot-
// scoped and embedded for semantic search. Importance ranges 1 (low) to 5
// (critical); vector length must equal the dimension of EmbeddingModel.
type VectorMemoryEntry struct {
	ID             uuid.UUID
	BotID          uuid.UUID
	Fact           string
	Category       Category
	Importance     int
	SessionID      uuid.UUID
	CreatedAt      time.Time
	LastAccessedAt *time.Time
	AccessCount    int
	EmbeddingModel string
	Vector         []float32
}

// SharedMemoryEntry is a VectorMemoryEntry published into the cross-bot
// pool, tagged with its author and trust level and bound to a content
// integrity hash.
type SharedMemoryEntry struct {
	VectorMemoryEntry
	AuthorBotID uuid.UUID
	TrustLevel  TrustLevel
	WriteHash   [32]byte
}

// RankedMemory is a search hit: the stored entry plus its similarity score.
type RankedMemory struct {
	Entry VectorMemoryEntry
	Score float64
}

// RankedShared is a shared-pool search hit.
type RankedShared struct {
	Entry SharedMemoryEntry
	Score float64
}
