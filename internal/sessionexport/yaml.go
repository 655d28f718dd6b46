package sessionexport

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/sheetchat/sheetchat/internal/chat"
)

type yamlSession struct {
	ID             string        `yaml:"id"`
	FileID         string        `yaml:"fileId"`
	CreatedAt      string        `yaml:"createdAt"`
	SelectedTables []string      `yaml:"selectedTables"`
	Messages       []yamlMessage `yaml:"messages"`
}

type yamlMessage struct {
	ID         string `yaml:"id"`
	Sender     string `yaml:"sender"`
	Timestamp  string `yaml:"timestamp"`
	Content    string `yaml:"content"`
	OutputType string `yaml:"outputType,omitempty"`
	ChartData  any    `yaml:"chartData,omitempty"`
	TableData  any    `yaml:"tableData,omitempty"`
}

type yamlExporter struct{}

func (yamlExporter) Export(w io.Writer, session chat.Session) error {
	doc := yamlSession{
		ID:             session.ID,
		FileID:         session.FileID,
		CreatedAt:      chat.FormatTimestamp(session.CreatedAt),
		SelectedTables: session.SelectedTables,
		Messages:       make([]yamlMessage, 0, len(session.Messages)),
	}
	for _, msg := range session.Messages {
		doc.Messages = append(doc.Messages, yamlMessage{
			ID:         msg.ID,
			Sender:     string(msg.Sender),
			Timestamp:  msg.Timestamp,
			Content:    msg.Content,
			OutputType: string(msg.OutputType),
			ChartData:  decodeOpaque(msg.ChartData),
			TableData:  decodeOpaque(msg.TableData),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode session: %w", err)
	}
	return enc.Close()
}

// decodeOpaque turns raw chart or table JSON into plain values so the YAML
// encoder emits structure instead of bytes. Undecodable input is kept as text.
func decodeOpaque(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}
