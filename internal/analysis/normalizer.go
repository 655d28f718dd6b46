package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sheetchat/sheetchat/internal/catalog"
	"github.com/sheetchat/sheetchat/internal/observability"
)

const (
	FallbackContent = "I'm sorry, but I encountered an error while analyzing your data. Please check your API configuration and try again."
	EmptyContent    = "I apologize, but I couldn't generate a proper response. Please try rephrasing your question."
)

const DefaultHistoryWindow = 5

type NormalizerConfig struct {
	Temperature   float64
	MaxTokens     int
	HistoryWindow int
}

// Normalizer asks the model to analyze the selected tables and coerces its
// reply into a Result. It never returns an error: any upstream failure
// becomes the fixed fallback reply.
type Normalizer struct {
	model  ChatModel
	cfg    NormalizerConfig
	logger *slog.Logger
}

func NewNormalizer(model ChatModel, cfg NormalizerConfig, logger *slog.Logger) *Normalizer {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Normalizer{model: model, cfg: cfg, logger: logger}
}

func Fallback() Result {
	return Result{Content: FallbackContent, OutputType: OutputText}
}

func (n *Normalizer) Analyze(ctx context.Context, req Request) Result {
	start := time.Now()
	result, err := n.analyze(ctx, req)
	if err != nil {
		n.logger.WarnContext(ctx, "analysis fallback",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Int("tables", len(req.Tables)),
			slog.String("error", err.Error()),
		)
		result = Fallback()
		observability.ObserveAnalysis(observability.AnalysisResultFallback, string(result.OutputType), time.Since(start))
		return result
	}
	observability.ObserveAnalysis(observability.AnalysisResultOK, string(result.OutputType), time.Since(start))
	return result
}

func (n *Normalizer) analyze(ctx context.Context, req Request) (Result, error) {
	if n.model == nil {
		return Result{}, fmt.Errorf("no chat model configured")
	}
	messages, err := n.buildMessages(req)
	if err != nil {
		return Result{}, err
	}
	content, err := n.model.Complete(ctx, Completion{
		Messages:    messages,
		Temperature: n.cfg.Temperature,
		MaxTokens:   n.cfg.MaxTokens,
		JSONObject:  true,
	})
	if err != nil {
		return Result{}, err
	}
	return parseReply(content)
}

func (n *Normalizer) buildMessages(req Request) ([]Turn, error) {
	system, err := SystemPrompt(req.Tables)
	if err != nil {
		return nil, err
	}
	history := req.History
	if len(history) > n.cfg.HistoryWindow {
		history = history[len(history)-n.cfg.HistoryWindow:]
	}
	messages := make([]Turn, 0, len(history)+2)
	messages = append(messages, Turn{Role: RoleSystem, Content: system})
	for _, turn := range history {
		role := RoleAssistant
		if turn.Role == RoleUser {
			role = RoleUser
		}
		messages = append(messages, Turn{Role: role, Content: turn.Content})
	}
	messages = append(messages, Turn{Role: RoleUser, Content: req.Query})
	return messages, nil
}

// parseReply fails only on malformed JSON. A well-formed reply with missing
// fields is filled with defaults.
func parseReply(content string) (Result, error) {
	body := stripCodeFence(content)
	if body == "" {
		body = "{}"
	}
	if !json.Valid([]byte(body)) {
		return Result{}, fmt.Errorf("model reply is not valid JSON")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		fields = map[string]json.RawMessage{}
	}

	result := Result{Content: EmptyContent, OutputType: OutputText}

	var text string
	if err := json.Unmarshal(fields["content"], &text); err == nil && strings.TrimSpace(text) != "" {
		result.Content = text
	}
	var outputType string
	if err := json.Unmarshal(fields["outputType"], &outputType); err == nil && OutputType(outputType).Valid() {
		result.OutputType = OutputType(outputType)
	}
	result.ChartData = present(fields["chartData"])
	result.TableData = present(fields["tableData"])
	return result, nil
}

func present(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}

// SystemPrompt embeds the serialized tables and the reply contract.
func SystemPrompt(tables catalog.TablesData) (string, error) {
	if tables == nil {
		tables = catalog.TablesData{}
	}
	contextJSON, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal table context: %w", err)
	}
	return `You are an expert data analyst specializing in Excel data analysis. You help users understand their data through insights, visualizations, and calculations.

Context Data:
` + string(contextJSON) + `

Instructions:
1. Analyze the provided data tables to answer user questions
2. Provide clear, actionable insights
3. When appropriate, suggest visualizations (charts) or create summary tables
4. Always base your analysis on the actual data provided
5. Be specific and cite actual numbers from the data
6. Format your response as JSON with the following structure:
{
  "content": "Your analysis text (can include markdown formatting)",
  "outputType": "text|chart|table",
  "chartData": { // Only if outputType is "chart"
    "type": "bar|line|pie|scatter",
    "data": {
      "labels": ["Label1", "Label2"],
      "datasets": [{
        "label": "Dataset Name",
        "data": [1, 2, 3],
        "backgroundColor": ["#color1", "#color2"]
      }]
    },
    "options": {}
  },
  "tableData": { // Only if outputType is "table"
    "headers": ["Column1", "Column2"],
    "rows": [{"Column1": "Value1", "Column2": "Value2"}]
  }
}`, nil
}
