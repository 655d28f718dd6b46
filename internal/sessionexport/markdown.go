package sessionexport

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sheetchat/sheetchat/internal/analysis"
	"github.com/sheetchat/sheetchat/internal/chat"
	"github.com/sheetchat/sheetchat/internal/tableexport"
)

type markdownExporter struct{}

func (markdownExporter) Export(w io.Writer, session chat.Session) error {
	_, err := io.WriteString(w, renderMarkdown(session))
	return err
}

func renderMarkdown(session chat.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Chat session %s\n\n", session.ID)
	fmt.Fprintf(&b, "**File:** %s  \n", session.FileID)
	fmt.Fprintf(&b, "**Created:** %s  \n", chat.FormatTimestamp(session.CreatedAt))
	if len(session.SelectedTables) > 0 {
		fmt.Fprintf(&b, "**Tables:** %s  \n", strings.Join(session.SelectedTables, ", "))
	}
	fmt.Fprintf(&b, "**Messages:** %d\n\n", len(session.Messages))

	for _, msg := range session.Messages {
		b.WriteString("---\n\n")
		fmt.Fprintf(&b, "### %s (%s)\n\n", senderTitle(msg.Sender), msg.Timestamp)
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteString("\n\n")
		if msg.Sender != chat.SenderAssistant {
			continue
		}
		payload := analysis.DecodePayload(msg.OutputType, msg.ChartData, msg.TableData)
		switch payload.Kind {
		case analysis.OutputChart:
			writeChart(&b, *payload.Chart)
		case analysis.OutputTable:
			writeTable(&b, *payload.Table)
		}
	}
	return b.String()
}

func senderTitle(sender chat.Sender) string {
	if sender == chat.SenderUser {
		return "User"
	}
	return "Assistant"
}

// writeChart lays a chart out as a table: one row per label, one column per
// dataset.
func writeChart(b *strings.Builder, chart analysis.ChartSpec) {
	fmt.Fprintf(b, "*%s chart*\n\n", strings.ToUpper(string(chart.Type[:1]))+string(chart.Type[1:]))

	headers := []string{"Label"}
	for i, ds := range chart.Datasets {
		label := strings.TrimSpace(ds.Label)
		if label == "" {
			label = "Series " + strconv.Itoa(i+1)
		}
		headers = append(headers, label)
	}
	rows := make([][]string, 0, len(chart.Labels))
	for i, label := range chart.Labels {
		row := []string{label}
		for _, ds := range chart.Datasets {
			cell := ""
			if i < len(ds.Data) {
				cell = strconv.FormatFloat(ds.Data[i], 'f', -1, 64)
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	writeGrid(b, headers, rows)
}

func writeTable(b *strings.Builder, table analysis.TableSpec) {
	rows := make([][]string, 0, len(table.Rows))
	for _, source := range table.Rows {
		row := make([]string, 0, len(table.Headers))
		for _, header := range table.Headers {
			row = append(row, tableexport.FormatCell(source[header]))
		}
		rows = append(rows, row)
	}
	writeGrid(b, table.Headers, rows)
}

func writeGrid(b *strings.Builder, headers []string, rows [][]string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(escapeCells(headers), " | "))
	b.WriteString(" |\n|")
	b.WriteString(strings.Repeat(" --- |", len(headers)))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString("| ")
		b.WriteString(strings.Join(escapeCells(row), " | "))
		b.WriteString(" |\n")
	}
	b.WriteString("\n")
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		cell = strings.ReplaceAll(cell, "|", `\|`)
		out[i] = strings.ReplaceAll(cell, "\n", " ")
	}
	return out
}
