package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sheetchat/sheetchat/internal/catalog"
	"github.com/sheetchat/sheetchat/internal/observability"
)

const (
	MinSuggestions = 3
	MaxSuggestions = 5
)

var staticSuggestions = []string{
	"Compare performance metrics across different lines",
	"Analyze trends in the data over time",
	"Identify patterns or anomalies in the dataset",
	"Calculate key performance indicators",
	"Generate a summary report of the main findings",
}

// StaticSuggestions returns a fresh copy of the generic fallback questions.
func StaticSuggestions() []string {
	return append([]string(nil), staticSuggestions...)
}

type SuggesterConfig struct {
	Temperature float64
	MaxTokens   int
}

type Suggester struct {
	model  ChatModel
	cfg    SuggesterConfig
	logger *slog.Logger
}

func NewSuggester(model ChatModel, cfg SuggesterConfig, logger *slog.Logger) *Suggester {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Suggester{model: model, cfg: cfg, logger: logger}
}

// Suggest returns between three and five questions about tables. It never
// fails; upstream problems yield StaticSuggestions.
func (s *Suggester) Suggest(ctx context.Context, tables catalog.TablesData) []string {
	suggestions, err := s.suggest(ctx, tables)
	if err != nil {
		s.logger.WarnContext(ctx, "suggestion fallback",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Int("tables", len(tables)),
			slog.String("error", err.Error()),
		)
		observability.ObserveSuggestions(observability.AnalysisResultFallback)
		return StaticSuggestions()
	}
	observability.ObserveSuggestions(observability.AnalysisResultOK)
	return suggestions
}

func (s *Suggester) suggest(ctx context.Context, tables catalog.TablesData) ([]string, error) {
	if s.model == nil {
		return nil, fmt.Errorf("no chat model configured")
	}
	prompt, err := suggestionPrompt(tables)
	if err != nil {
		return nil, err
	}
	content, err := s.model.Complete(ctx, Completion{
		Messages:    []Turn{{Role: RoleUser, Content: prompt}},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		JSONObject:  true,
	})
	if err != nil {
		return nil, err
	}
	suggestions, err := parseSuggestions(content)
	if err != nil {
		return nil, err
	}
	if len(suggestions) < MinSuggestions {
		return nil, fmt.Errorf("model returned %d usable suggestions", len(suggestions))
	}
	if len(suggestions) > MaxSuggestions {
		suggestions = suggestions[:MaxSuggestions]
	}
	return suggestions, nil
}

func suggestionPrompt(tables catalog.TablesData) (string, error) {
	if tables == nil {
		tables = catalog.TablesData{}
	}
	contextJSON, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal table context: %w", err)
	}
	return `Based on this data, suggest 3-5 interesting questions or analysis ideas that would provide valuable insights. Return as JSON array of strings.

Data:
` + string(contextJSON) + `

Format: ["Question 1", "Question 2", "Question 3"]`, nil
}

// parseSuggestions accepts a JSON array, or an object whose values are
// strings or arrays of strings, in document order. Blank and non-string
// items are dropped.
func parseSuggestions(content string) ([]string, error) {
	body := []byte(stripCodeFence(content))
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, fmt.Errorf("suggestions must be a JSON array or object")
	}

	var values []json.RawMessage
	switch delim {
	case '[':
		if err := json.Unmarshal(body, &values); err != nil {
			return nil, fmt.Errorf("decode suggestions: %w", err)
		}
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("decode suggestions: %w", err)
			}
			var value json.RawMessage
			if err := dec.Decode(&value); err != nil {
				return nil, fmt.Errorf("decode suggestions: %w", err)
			}
			var nested []json.RawMessage
			if err := json.Unmarshal(value, &nested); err == nil {
				values = append(values, nested...)
				continue
			}
			values = append(values, value)
		}
	default:
		return nil, fmt.Errorf("suggestions must be a JSON array or object")
	}

	out := make([]string, 0, len(values))
	for _, raw := range values {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}
