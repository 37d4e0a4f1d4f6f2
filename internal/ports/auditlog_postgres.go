package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"boternity/internal/sandbox"
)

// pgSkillAuditLog is a Postgres-backed SkillAuditLog, used once a DSN is
// configured so the audit trail survives process restarts and can be
// queried outside the agent process.
type pgSkillAuditLog struct {
	pool *pgxpool.Pool
}

// NewPostgresSkillAuditLog returns a SkillAuditLog backed by pool. Call Init
// once at startup to create the schema.
func NewPostgresSkillAuditLog(pool *pgxpool.Pool) SkillAuditLog {
	return &pgSkillAuditLog{pool: pool}
}

// Init creates the skill_audit_log table if it doesn't exist.
func (l *pgSkillAuditLog) Init(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS skill_audit_log (
    id BIGSERIAL PRIMARY KEY,
    bot_id UUID NOT NULL,
    skill_name TEXT NOT NULL,
    trust_tier SMALLINT NOT NULL,
    input_digest BYTEA NOT NULL,
    ok BOOLEAN NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    fuel_used BIGINT NOT NULL DEFAULT 0,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS skill_audit_log_bot_recorded_idx ON skill_audit_log(bot_id, recorded_at DESC);
`)
	return err
}

func (l *pgSkillAuditLog) Record(ctx context.Context, rec SkillAuditRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := l.pool.Exec(ctx, `
INSERT INTO skill_audit_log (bot_id, skill_name, trust_tier, input_digest, ok, error, fuel_used, duration_ms, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.BotID, rec.SkillName, int16(rec.TrustTier), rec.InputDigest[:], rec.OK, rec.Error,
		int64(rec.FuelUsed), rec.Duration.Milliseconds(), rec.RecordedAt)
	return err
}

func (l *pgSkillAuditLog) ForBot(ctx context.Context, botID uuid.UUID, limit int) ([]SkillAuditRecord, error) {
	query := `
SELECT bot_id, skill_name, trust_tier, input_digest, ok, error, fuel_used, duration_ms, recorded_at
FROM skill_audit_log
WHERE bot_id = $1
ORDER BY recorded_at DESC`
	args := []any{botID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SkillAuditRecord, 0)
	for rows.Next() {
		var rec SkillAuditRecord
		var tier int16
		var digest []byte
		var durationMS int64
		var fuel int64
		if err := rows.Scan(&rec.BotID, &rec.SkillName, &tier, &digest, &rec.OK, &rec.Error, &fuel, &durationMS, &rec.RecordedAt); err != nil {
			return nil, err
		}
		rec.TrustTier = sandbox.Tier(tier)
		copy(rec.InputDigest[:], digest)
		rec.FuelUsed = uint64(fuel)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}
