package ports

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/google/uuid"

	"boternity/internal/sandbox"
)

// SkillAuditRecord is one append-only entry recording a sandboxed skill
// invocation: who ran what, under which trust tier, with what outcome.
type SkillAuditRecord struct {
	BotID       uuid.UUID
	SkillName   string
	TrustTier   sandbox.Tier
	InputDigest [32]byte
	OK          bool
	Error       string
	FuelUsed    uint64
	Duration    time.Duration
	RecordedAt  time.Time
}

// DigestInput hashes a skill call's raw argument bytes for InputDigest,
// so the audit trail records what was asked for without retaining
// arbitrary caller-supplied payloads verbatim.
func DigestInput(args []byte) [32]byte {
	return sha256.Sum256(args)
}

// SkillAuditLog is an append-only record of
// (bot_id, skill_name, trust_tier, input_digest, outcome, fuel, duration).
type SkillAuditLog interface {
	Record(ctx context.Context, rec SkillAuditRecord) error
	ForBot(ctx context.Context, botID uuid.UUID, limit int) ([]SkillAuditRecord, error)
}

type memSkillAuditLog struct {
	mu      sync.Mutex
	records []SkillAuditRecord
}

// NewMemSkillAuditLog returns a process-local, append-only SkillAuditLog
// held in memory, for tests and single-process local runs.
func NewMemSkillAuditLog() SkillAuditLog {
	return &memSkillAuditLog{}
}

func (l *memSkillAuditLog) Record(_ context.Context, rec SkillAuditRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *memSkillAuditLog) ForBot(_ context.Context, botID uuid.UUID, limit int) ([]SkillAuditRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []SkillAuditRecord
	for _, r := range l.records {
		if r.BotID == botID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
