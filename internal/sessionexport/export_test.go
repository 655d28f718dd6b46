package sessionexport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sheetchat/sheetchat/internal/analysis"
	"github.com/sheetchat/sheetchat/internal/chat"
)

func sampleSession() chat.Session {
	return chat.Session{
		ID:             "s-1",
		FileID:         "mock-file-1",
		SelectedTables: []string{"monthlyRidership"},
		CreatedAt:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Messages: []chat.Message{
			{ID: "m-1", Content: "Show ridership by month", Sender: chat.SenderUser, Timestamp: "2024-03-01T09:00:01.000Z"},
			{
				ID:         "m-2",
				Content:    "Ridership peaked in March.",
				Sender:     chat.SenderAssistant,
				Timestamp:  "2024-03-01T09:00:02.000Z",
				OutputType: analysis.OutputChart,
				ChartData:  json.RawMessage(`{"type":"bar","data":{"labels":["Jan","Feb"],"datasets":[{"label":"Passengers","data":[2450000,2380000]}]}}`),
			},
			{ID: "m-3", Content: "List incidents", Sender: chat.SenderUser, Timestamp: "2024-03-01T09:00:03.000Z"},
			{
				ID:         "m-4",
				Content:    "Here they are.",
				Sender:     chat.SenderAssistant,
				Timestamp:  "2024-03-01T09:00:04.000Z",
				OutputType: analysis.OutputTable,
				TableData:  json.RawMessage(`{"headers":["Type","Count"],"rows":[{"Type":"Signal | delay","Count":3}]}`),
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatJSON, "JSONL": FormatJSONL, "yml": FormatYAML, "markdown": FormatMarkdown, " html ": FormatHTML}
	for raw, want := range cases {
		got, err := ParseFormat(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseFormat("pdf")
	require.Error(t, err)
	assert.Equal(t, "session_s-1.md", FormatMarkdown.Filename("s-1"))
}

func TestJSONExportRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleSession()))

	var decoded chat.Session
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "mock-file-1", decoded.FileID)
	require.Len(t, decoded.Messages, 4)
	assert.JSONEq(t, string(sampleSession().Messages[1].ChartData), string(decoded.Messages[1].ChartData))
}

func TestJSONLExportWritesOneMessagePerLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSONL, sampleSession()))

	scanner := bufio.NewScanner(&buf)
	var ids []string
	for scanner.Scan() {
		var msg chat.Message
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg))
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"m-1", "m-2", "m-3", "m-4"}, ids)
}

func TestYAMLExportDecodesPayloads(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, sampleSession()))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2024-03-01T09:00:00.000Z", doc["createdAt"])

	messages, ok := doc["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)
	chart := messages[1].(map[string]any)["chartData"].(map[string]any)
	assert.Equal(t, "bar", chart["type"])
	_, hasChart := messages[0].(map[string]any)["chartData"]
	assert.False(t, hasChart)
}

func TestMarkdownExportRendersChartAndTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatMarkdown, sampleSession()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Chat session s-1\n"))
	assert.Contains(t, out, "**Tables:** monthlyRidership")
	assert.Contains(t, out, "### User (2024-03-01T09:00:01.000Z)")
	assert.Contains(t, out, "*Bar chart*")
	assert.Contains(t, out, "| Label | Passengers |")
	assert.Contains(t, out, "| Jan | 2450000 |")
	assert.Contains(t, out, `| Signal \| delay | 3 |`)
}

func TestMarkdownExportDegradesMalformedPayload(t *testing.T) {
	session := sampleSession()
	session.Messages[1].ChartData = json.RawMessage(`{"type":"radar"}`)

	out := renderMarkdown(session)
	assert.Contains(t, out, "Ridership peaked in March.")
	assert.NotContains(t, out, "chart*")
}

func TestHTMLExportDropsRawHTML(t *testing.T) {
	session := sampleSession()
	session.Messages[0].Content = "<script>alert(1)</script> hello"

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatHTML, session))
	out := buf.String()

	assert.Contains(t, out, "<title>Chat session s-1</title>")
	assert.Contains(t, out, "<table>")
	assert.NotContains(t, out, "<script>")
}
