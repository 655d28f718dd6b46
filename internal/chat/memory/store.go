package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheetchat/sheetchat/internal/chat"
)

// SessionStore keeps sessions in process memory. Concurrent updates to the
// same session are last-write-wins.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]chat.Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionStore) Create(ctx context.Context, in chat.CreateSessionInput) (chat.Session, error) {
	if err := ctx.Err(); err != nil {
		return chat.Session{}, err
	}
	if strings.TrimSpace(in.FileID) == "" {
		return chat.Session{}, fmt.Errorf("file id is required")
	}
	selected := in.SelectedTables
	if selected == nil {
		selected = []string{}
	}
	session := chat.Session{
		ID:             uuid.NewString(),
		FileID:         in.FileID,
		Messages:       []chat.Message{},
		SelectedTables: append([]string{}, selected...),
		CreatedAt:      s.now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return cloneSession(session), nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (chat.Session, error) {
	if err := ctx.Err(); err != nil {
		return chat.Session{}, err
	}
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return chat.Session{}, chat.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) Update(ctx context.Context, sessionID string, update chat.SessionUpdate) (chat.Session, error) {
	if err := ctx.Err(); err != nil {
		return chat.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, chat.ErrNotFound
	}
	if update.Messages != nil {
		session.Messages = cloneMessages(update.Messages)
	}
	if update.SelectedTables != nil {
		session.SelectedTables = append([]string{}, update.SelectedTables...)
	}
	s.sessions[sessionID] = session
	return cloneSession(session), nil
}

func (s *SessionStore) ListByFile(ctx context.Context, fileID string) ([]chat.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]chat.Session, 0)
	for _, session := range s.sessions {
		if session.FileID == fileID {
			out = append(out, cloneSession(session))
		}
	}
	s.mu.RUnlock()
	chat.SortByCreated(out)
	return out, nil
}

func cloneSession(session chat.Session) chat.Session {
	session.Messages = cloneMessages(session.Messages)
	session.SelectedTables = append([]string{}, session.SelectedTables...)
	return session
}

func cloneMessages(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	for i, msg := range messages {
		msg.ChartData = cloneRaw(msg.ChartData)
		msg.TableData = cloneRaw(msg.TableData)
		out[i] = msg
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
