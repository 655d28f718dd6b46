package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sheetchat/sheetchat/internal/analysis"
)

var ErrNotFound = errors.New("chat: session not found")

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type Message struct {
	ID         string              `json:"id"`
	Content    string              `json:"content"`
	Sender     Sender              `json:"sender"`
	Timestamp  string              `json:"timestamp"`
	OutputType analysis.OutputType `json:"outputType,omitempty"`
	ChartData  json.RawMessage     `json:"chartData,omitempty"`
	TableData  json.RawMessage     `json:"tableData,omitempty"`
}

type Session struct {
	ID             string    `json:"id"`
	FileID         string    `json:"fileId"`
	Messages       []Message `json:"messages"`
	SelectedTables []string  `json:"selectedTables"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SessionUpdate replaces the non-nil fields wholesale.
type SessionUpdate struct {
	Messages       []Message
	SelectedTables []string
}

type CreateSessionInput struct {
	FileID         string
	SelectedTables []string
}

// SessionStore owns session records. Implementations return copies; callers
// change a session only through Update.
type SessionStore interface {
	Create(ctx context.Context, in CreateSessionInput) (Session, error)
	Get(ctx context.Context, sessionID string) (Session, error)
	Update(ctx context.Context, sessionID string, update SessionUpdate) (Session, error)
	ListByFile(ctx context.Context, fileID string) ([]Session, error)
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
