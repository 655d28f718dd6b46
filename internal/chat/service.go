package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sheetchat/sheetchat/internal/analysis"
	"github.com/sheetchat/sheetchat/internal/catalog"
	"github.com/sheetchat/sheetchat/internal/observability"
)

// HistoryWindow is the number of prior messages forwarded to the model.
const HistoryWindow = 5

type FileLookup interface {
	GetFile(ctx context.Context, fileID string) (catalog.ExcelFile, error)
}

// Analyzer never fails; upstream problems are folded into the result.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) analysis.Result
}

type Exchange struct {
	UserMessage      Message `json:"userMessage"`
	AssistantMessage Message `json:"assistantMessage"`
}

type Service struct {
	sessions SessionStore
	files    FileLookup
	analyzer Analyzer
	logger   *slog.Logger
	window   int
	now      func() time.Time
	newID    func() string
}

type ServiceOption func(*Service)

func WithHistoryWindow(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(sessions SessionStore, files FileLookup, analyzer Analyzer, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		sessions: sessions,
		files:    files,
		analyzer: analyzer,
		logger:   logger,
		window:   HistoryWindow,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (Session, error) {
	session, err := s.sessions.Create(ctx, in)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	observability.ObserveSessionCreated()
	return session, nil
}

// PostMessage appends a user message and the analyzed assistant reply to the
// session. The store is written once, after the analyzer returns.
func (s *Service) PostMessage(ctx context.Context, sessionID, userText string, selectedTableKeys []string) (Exchange, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Exchange{}, fmt.Errorf("load session: %w", err)
	}
	file, err := s.files.GetFile(ctx, session.FileID)
	if err != nil {
		return Exchange{}, fmt.Errorf("load file %s: %w", session.FileID, err)
	}

	tables := file.Tables.Select(selectedTableKeys)
	usedKeys := tables.Keys()

	userAt := s.now().UTC()
	userMessage := Message{
		ID:        s.newID(),
		Content:   userText,
		Sender:    SenderUser,
		Timestamp: FormatTimestamp(userAt),
	}

	result := s.analyzer.Analyze(ctx, analysis.Request{
		Query:   userText,
		Tables:  tables,
		History: historyWindow(session.Messages, s.window),
	})
	outputType := result.OutputType
	if !outputType.Valid() {
		outputType = analysis.OutputText
	}

	assistantAt := s.now().UTC()
	if assistantAt.Before(userAt) {
		assistantAt = userAt
	}
	assistantMessage := Message{
		ID:         s.newID(),
		Content:    result.Content,
		Sender:     SenderAssistant,
		Timestamp:  FormatTimestamp(assistantAt),
		OutputType: outputType,
		ChartData:  result.ChartData,
		TableData:  result.TableData,
	}

	messages := make([]Message, 0, len(session.Messages)+2)
	messages = append(messages, session.Messages...)
	messages = append(messages, userMessage, assistantMessage)
	if _, err := s.sessions.Update(ctx, sessionID, SessionUpdate{
		Messages:       messages,
		SelectedTables: usedKeys,
	}); err != nil {
		return Exchange{}, fmt.Errorf("save session: %w", err)
	}
	observability.ObserveMessagePair()

	if s.logger != nil {
		s.logger.InfoContext(ctx, "chat message processed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("session_id", sessionID),
			slog.String("file_id", session.FileID),
			slog.Int("tables", len(usedKeys)),
			slog.String("output_type", string(outputType)),
			slog.Int("messages", len(messages)),
		)
	}
	return Exchange{UserMessage: userMessage, AssistantMessage: assistantMessage}, nil
}

func historyWindow(messages []Message, n int) []analysis.Turn {
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	turns := make([]analysis.Turn, 0, len(messages))
	for _, msg := range messages {
		role := analysis.RoleAssistant
		if msg.Sender == SenderUser {
			role = analysis.RoleUser
		}
		turns = append(turns, analysis.Turn{Role: role, Content: msg.Content})
	}
	return turns
}

// SortByCreated orders sessions oldest first, breaking ties by id.
func SortByCreated(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
