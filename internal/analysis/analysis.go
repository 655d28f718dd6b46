package analysis

import (
	"context"
	"encoding/json"

	"github.com/sheetchat/sheetchat/internal/catalog"
)

type OutputType string

const (
	OutputText  OutputType = "text"
	OutputChart OutputType = "chart"
	OutputTable OutputType = "table"
)

func (o OutputType) Valid() bool {
	switch o {
	case OutputText, OutputChart, OutputTable:
		return true
	default:
		return false
	}
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior exchange entry forwarded to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Query   string
	Tables  catalog.TablesData
	History []Turn
}

// Result is the normalized assistant reply. ChartData and TableData are
// passed through as the model produced them.
type Result struct {
	Content    string
	OutputType OutputType
	ChartData  json.RawMessage
	TableData  json.RawMessage
}

// Completion is a single chat-completions call.
type Completion struct {
	Messages    []Turn
	Temperature float64
	MaxTokens   int
	JSONObject  bool
}

// ChatModel returns the raw content of the first completion choice.
type ChatModel interface {
	Complete(ctx context.Context, req Completion) (string, error)
}
