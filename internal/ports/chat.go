package ports

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested session or message doesn't exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden indicates the caller doesn't own the session it asked for.
var ErrForbidden = errors.New("forbidden")

// ChatSession is one conversation thread with a bot.
type ChatSession struct {
	ID                 string
	BotID              uuid.UUID
	UserID             *int64
	Name               string
	Model              string
	Summary            string
	SummarizedCount    int
	LastMessagePreview string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ChatMessage is a single turn within a ChatSession.
type ChatMessage struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// ChatRepository is session and message CRUD; the engine only cares about
// saving a message and retrieving the tail.
type ChatRepository interface {
	EnsureSession(ctx context.Context, userID *int64, id, name string) (ChatSession, error)
	ListSessions(ctx context.Context, userID *int64) ([]ChatSession, error)
	GetSession(ctx context.Context, userID *int64, id string) (ChatSession, error)
	CreateSession(ctx context.Context, userID *int64, name string) (ChatSession, error)
	RenameSession(ctx context.Context, userID *int64, id, name string) (ChatSession, error)
	DeleteSession(ctx context.Context, userID *int64, id string) error

	ListMessages(ctx context.Context, userID *int64, sessionID string, limit int) ([]ChatMessage, error)
	AppendMessages(ctx context.Context, userID *int64, sessionID string, messages []ChatMessage, preview, model string) error
	UpdateSummary(ctx context.Context, userID *int64, sessionID string, summary string, summarizedCount int) error
}

type memChatRepository struct {
	mu       sync.RWMutex
	sessions map[string]ChatSession
	messages map[string][]ChatMessage
}

// NewMemChatRepository returns a process-local ChatRepository with no
// external dependency, for tests and single-process local runs.
func NewMemChatRepository() ChatRepository {
	return &memChatRepository{
		sessions: make(map[string]ChatSession),
		messages: make(map[string][]ChatMessage),
	}
}

func hasAccess(userID *int64, ownerID *int64) bool {
	if ownerID == nil || userID == nil {
		return true
	}
	return *userID == *ownerID
}

func copyUserID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func (s *memChatRepository) EnsureSession(_ context.Context, userID *int64, id, name string) (ChatSession, error) {
	if strings.TrimSpace(id) == "" {
		return ChatSession{}, errors.New("id required")
	}
	if strings.TrimSpace(name) == "" {
		name = "New Chat"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		if !hasAccess(userID, sess.UserID) {
			return ChatSession{}, ErrForbidden
		}
		return sess, nil
	}
	now := time.Now().UTC()
	sess := ChatSession{ID: id, Name: name, UserID: copyUserID(userID), CreatedAt: now, UpdatedAt: now}
	s.sessions[id] = sess
	s.messages[id] = nil
	return sess, nil
}

func (s *memChatRepository) ListSessions(_ context.Context, userID *int64) ([]ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if !hasAccess(userID, sess.UserID) {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *memChatRepository) GetSession(_ context.Context, userID *int64, id string) (ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ChatSession{}, ErrNotFound
	}
	if !hasAccess(userID, sess.UserID) {
		return ChatSession{}, ErrForbidden
	}
	return sess, nil
}

func (s *memChatRepository) CreateSession(_ context.Context, userID *int64, name string) (ChatSession, error) {
	if strings.TrimSpace(name) == "" {
		name = "New Chat"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	now := time.Now().UTC()
	sess := ChatSession{ID: id, Name: name, UserID: copyUserID(userID), CreatedAt: now, UpdatedAt: now}
	s.sessions[id] = sess
	s.messages[id] = nil
	return sess, nil
}

func (s *memChatRepository) RenameSession(_ context.Context, userID *int64, id, name string) (ChatSession, error) {
	if strings.TrimSpace(name) == "" {
		return ChatSession{}, errors.New("name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ChatSession{}, ErrNotFound
	}
	if !hasAccess(userID, sess.UserID) {
		return ChatSession{}, ErrForbidden
	}
	sess.Name = name
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return sess, nil
}

func (s *memChatRepository) DeleteSession(_ context.Context, userID *int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if !hasAccess(userID, sess.UserID) {
		return ErrForbidden
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *memChatRepository) ListMessages(_ context.Context, userID *int64, sessionID string, limit int) ([]ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if !hasAccess(userID, sess.UserID) {
		return nil, ErrForbidden
	}
	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memChatRepository) AppendMessages(_ context.Context, userID *int64, sessionID string, messages []ChatMessage, preview, model string) error {
	if len(messages) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if !hasAccess(userID, sess.UserID) {
		return ErrForbidden
	}
	for i := range messages {
		if messages[i].ID == "" {
			messages[i].ID = uuid.NewString()
		}
		if messages[i].SessionID == "" {
			messages[i].SessionID = sessionID
		}
		if messages[i].CreatedAt.IsZero() {
			messages[i].CreatedAt = time.Now().UTC()
		}
	}
	s.messages[sessionID] = append(s.messages[sessionID], messages...)
	sess.UpdatedAt = time.Now().UTC()
	sess.LastMessagePreview = preview
	if strings.TrimSpace(model) != "" {
		sess.Model = model
	}
	s.sessions[sessionID] = sess
	return nil
}

func (s *memChatRepository) UpdateSummary(_ context.Context, userID *int64, sessionID string, summary string, summarizedCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if !hasAccess(userID, sess.UserID) {
		return ErrForbidden
	}
	sess.Summary = summary
	sess.SummarizedCount = summarizedCount
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = sess
	return nil
}
