// Package sessionexport renders a chat session as a downloadable transcript.
package sessionexport

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sheetchat/sheetchat/internal/chat"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

// ParseFormat defaults to json. "markdown" and "yml" are accepted aliases.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "jsonl":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (supported: json, jsonl, yaml, md, html)", raw)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSONL:
		return "application/x-ndjson"
	case FormatYAML:
		return "application/yaml"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

func (f Format) Filename(sessionID string) string {
	return fmt.Sprintf("session_%s.%s", sessionID, f)
}

type Exporter interface {
	Export(w io.Writer, session chat.Session) error
}

func NewExporter(format Format) (Exporter, error) {
	switch format {
	case FormatJSON:
		return jsonExporter{}, nil
	case FormatJSONL:
		return jsonlExporter{}, nil
	case FormatYAML:
		return yamlExporter{}, nil
	case FormatMarkdown:
		return markdownExporter{}, nil
	case FormatHTML:
		return htmlExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func Write(w io.Writer, format Format, session chat.Session) error {
	exporter, err := NewExporter(format)
	if err != nil {
		return err
	}
	return exporter.Export(w, session)
}

type jsonExporter struct{}

func (jsonExporter) Export(w io.Writer, session chat.Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(session); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return nil
}

// jsonlExporter writes one message per line.
type jsonlExporter struct{}

func (jsonlExporter) Export(w io.Writer, session chat.Session) error {
	enc := json.NewEncoder(w)
	for _, msg := range session.Messages {
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("encode message %s: %w", msg.ID, err)
		}
	}
	return nil
}
