package ports

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgChatRepository is a Postgres-backed ChatRepository, used in place of
// memChatRepository once a DSN is configured so sessions and message
// history survive process restarts.
type pgChatRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresChatRepository returns a ChatRepository backed by pool. Call
// Init once at startup to create the schema.
func NewPostgresChatRepository(pool *pgxpool.Pool) ChatRepository {
	return &pgChatRepository{pool: pool}
}

// Init creates the chat_sessions/chat_messages tables if they don't exist.
func (s *pgChatRepository) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS chat_sessions (
    id UUID PRIMARY KEY,
    bot_id UUID NOT NULL,
    name TEXT NOT NULL,
    user_id BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_message_preview TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    summarized_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS chat_messages_session_created_idx ON chat_messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS chat_sessions_user_updated_idx ON chat_sessions(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS chat_sessions_bot_idx ON chat_sessions(bot_id);
`)
	return err
}

func (s *pgChatRepository) scanSession(row pgx.Row) (ChatSession, error) {
	var cs ChatSession
	var owner sql.NullInt64
	if err := row.Scan(&cs.ID, &cs.BotID, &cs.Name, &owner, &cs.CreatedAt, &cs.UpdatedAt, &cs.LastMessagePreview, &cs.Model, &cs.Summary, &cs.SummarizedCount); err != nil {
		return ChatSession{}, err
	}
	if owner.Valid {
		v := owner.Int64
		cs.UserID = &v
	}
	return cs, nil
}

const sessionColumns = "id, bot_id, name, user_id, created_at, updated_at, last_message_preview, model, summary, summarized_count"

func (s *pgChatRepository) EnsureSession(ctx context.Context, userID *int64, id, name string) (ChatSession, error) {
	if strings.TrimSpace(id) == "" {
		return ChatSession{}, errors.New("id required")
	}
	if strings.TrimSpace(name) == "" {
		name = "New Chat"
	}
	var uid any
	if userID != nil {
		uid = *userID
	}
	row := s.pool.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO chat_sessions (id, bot_id, user_id, name)
  VALUES ($1, $2, $3, $4)
  ON CONFLICT (id) DO NOTHING
  RETURNING `+sessionColumns+`
)
SELECT `+sessionColumns+` FROM ins
UNION ALL
SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1
LIMIT 1`, id, uuid.Nil, uid, name)
	cs, err := s.scanSession(row)
	if err != nil {
		return ChatSession{}, err
	}
	if !hasAccess(userID, cs.UserID) {
		return ChatSession{}, ErrForbidden
	}
	return cs, nil
}

func (s *pgChatRepository) ListSessions(ctx context.Context, userID *int64) ([]ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions`
	var args []any
	if userID != nil {
		query += ` WHERE user_id = $1`
		args = append(args, *userID)
	}
	query += ` ORDER BY updated_at DESC, created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ChatSession, 0)
	for rows.Next() {
		cs, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *pgChatRepository) lookupSessionOwner(ctx context.Context, id string) (*int64, error) {
	row := s.pool.QueryRow(ctx, `SELECT user_id FROM chat_sessions WHERE id = $1`, id)
	var owner sql.NullInt64
	if err := row.Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !owner.Valid {
		return nil, nil
	}
	v := owner.Int64
	return &v, nil
}

func (s *pgChatRepository) GetSession(ctx context.Context, userID *int64, id string) (ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1`
	args := []any{id}
	if userID != nil {
		query += ` AND user_id = $2`
		args = append(args, *userID)
	}
	row := s.pool.QueryRow(ctx, query, args...)
	cs, err := s.scanSession(row)
	if err == nil {
		return cs, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ChatSession{}, err
	}
	if userID == nil {
		return ChatSession{}, ErrNotFound
	}
	owner, ownerErr := s.lookupSessionOwner(ctx, id)
	if ownerErr != nil {
		return ChatSession{}, ownerErr
	}
	if !hasAccess(userID, owner) {
		return ChatSession{}, ErrForbidden
	}
	return ChatSession{}, ErrNotFound
}

func (s *pgChatRepository) CreateSession(ctx context.Context, userID *int64, name string) (ChatSession, error) {
	if strings.TrimSpace(name) == "" {
		name = "New Chat"
	}
	var uid any
	if userID != nil {
		uid = *userID
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO chat_sessions (id, bot_id, user_id, name)
VALUES ($1, $2, $3, $4)
RETURNING `+sessionColumns, uuid.New(), uuid.Nil, uid, name)
	return s.scanSession(row)
}

func (s *pgChatRepository) RenameSession(ctx context.Context, userID *int64, id, name string) (ChatSession, error) {
	if strings.TrimSpace(name) == "" {
		return ChatSession{}, errors.New("name required")
	}
	query := `UPDATE chat_sessions SET name = $2, updated_at = NOW() WHERE id = $1`
	args := []any{id, name}
	if userID != nil {
		query += ` AND user_id = $3`
		args = append(args, *userID)
	}
	query += ` RETURNING ` + sessionColumns
	row := s.pool.QueryRow(ctx, query, args...)
	cs, err := s.scanSession(row)
	if err == nil {
		return cs, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ChatSession{}, err
	}
	return ChatSession{}, ErrNotFound
}

func (s *pgChatRepository) DeleteSession(ctx context.Context, userID *int64, id string) error {
	query := `DELETE FROM chat_sessions WHERE id = $1`
	args := []any{id}
	if userID != nil {
		query += ` AND user_id = $2`
		args = append(args, *userID)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgChatRepository) ListMessages(ctx context.Context, userID *int64, sessionID string, limit int) ([]ChatMessage, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	query := `SELECT id, session_id, role, content, created_at FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC`
	if limit > 0 {
		query = `SELECT id, session_id, role, content, created_at FROM (SELECT id, session_id, role, content, created_at FROM chat_messages WHERE session_id = $1 ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit) + `) AS tail ORDER BY created_at ASC`
	}
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ChatMessage, 0)
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgChatRepository) AppendMessages(ctx context.Context, userID *int64, sessionID string, messages []ChatMessage, preview, model string) error {
	if len(messages) == 0 {
		return nil
	}
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range messages {
		if messages[i].ID == "" {
			messages[i].ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, NOW())`,
			messages[i].ID, sessionID, messages[i].Role, messages[i].Content); err != nil {
			return err
		}
	}

	setModel := ""
	args := []any{preview, sessionID}
	if strings.TrimSpace(model) != "" {
		setModel = ", model = $3"
		args = append(args, model)
	}
	if _, err := tx.Exec(ctx, `UPDATE chat_sessions SET last_message_preview = $1, updated_at = NOW()`+setModel+` WHERE id = $2`, args...); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *pgChatRepository) UpdateSummary(ctx context.Context, userID *int64, sessionID string, summary string, summarizedCount int) error {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `UPDATE chat_sessions SET summary = $1, summarized_count = $2, updated_at = NOW() WHERE id = $3`,
		summary, summarizedCount, sessionID)
	return err
}
