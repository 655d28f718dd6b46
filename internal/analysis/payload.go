package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PieColors is applied to pie datasets whose colors are missing or do not
// cover every slice.
var PieColors = []string{"#FF6B35", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F", "#FF8C94", "#A8E6CF"}

type ChartType string

const (
	ChartBar     ChartType = "bar"
	ChartLine    ChartType = "line"
	ChartPie     ChartType = "pie"
	ChartScatter ChartType = "scatter"
)

func (c ChartType) Valid() bool {
	switch c {
	case ChartBar, ChartLine, ChartPie, ChartScatter:
		return true
	default:
		return false
	}
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor,omitempty"`
}

type ChartSpec struct {
	Type     ChartType       `json:"type"`
	Labels   []string        `json:"labels"`
	Datasets []Dataset       `json:"datasets"`
	Options  json.RawMessage `json:"options,omitempty"`
}

type TableSpec struct {
	Headers []string         `json:"headers"`
	Rows    []map[string]any `json:"rows"`
}

// Payload is the renderable form of an assistant reply. Exactly one of Chart
// and Table is set when Kind is chart or table.
type Payload struct {
	Kind  OutputType
	Chart *ChartSpec
	Table *TableSpec
}

// DecodePayload validates opaque chart or table data for rendering. Anything
// malformed degrades to a text payload.
func DecodePayload(outputType OutputType, chartData, tableData json.RawMessage) Payload {
	switch outputType {
	case OutputChart:
		chart, err := decodeChart(chartData)
		if err != nil {
			return Payload{Kind: OutputText}
		}
		return Payload{Kind: OutputChart, Chart: &chart}
	case OutputTable:
		table, err := decodeTable(tableData)
		if err != nil {
			return Payload{Kind: OutputText}
		}
		return Payload{Kind: OutputTable, Table: &table}
	default:
		return Payload{Kind: OutputText}
	}
}

func decodeChart(raw json.RawMessage) (ChartSpec, error) {
	if len(present(raw)) == 0 {
		return ChartSpec{}, fmt.Errorf("chart data is missing")
	}
	var wire struct {
		Type string `json:"type"`
		Data struct {
			Labels   []any `json:"labels"`
			Datasets []struct {
				Label           any             `json:"label"`
				Data            []any           `json:"data"`
				BackgroundColor json.RawMessage `json:"backgroundColor"`
			} `json:"datasets"`
		} `json:"data"`
		Options json.RawMessage `json:"options"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ChartSpec{}, fmt.Errorf("decode chart data: %w", err)
	}

	chartType := ChartType(strings.ToLower(strings.TrimSpace(wire.Type)))
	if chartType == "" {
		chartType = ChartBar
	}
	if !chartType.Valid() {
		return ChartSpec{}, fmt.Errorf("unknown chart type %q", wire.Type)
	}
	if len(wire.Data.Datasets) == 0 {
		return ChartSpec{}, fmt.Errorf("chart has no datasets")
	}

	chart := ChartSpec{
		Type:    chartType,
		Labels:  make([]string, 0, len(wire.Data.Labels)),
		Options: present(wire.Options),
	}
	for _, label := range wire.Data.Labels {
		chart.Labels = append(chart.Labels, scalarString(label))
	}
	for i, ds := range wire.Data.Datasets {
		values := make([]float64, 0, len(ds.Data))
		for _, v := range ds.Data {
			f, ok := toFloat(v)
			if !ok {
				return ChartSpec{}, fmt.Errorf("dataset %d has non-numeric value %v", i, v)
			}
			values = append(values, f)
		}
		dataset := Dataset{
			Label:           scalarString(ds.Label),
			Data:            values,
			BackgroundColor: decodeColors(ds.BackgroundColor),
		}
		if chartType == ChartPie && len(dataset.BackgroundColor) != len(values) {
			dataset.BackgroundColor = pieColors(len(values))
		}
		chart.Datasets = append(chart.Datasets, dataset)
	}
	return chart, nil
}

func decodeTable(raw json.RawMessage) (TableSpec, error) {
	if len(present(raw)) == 0 {
		return TableSpec{}, fmt.Errorf("table data is missing")
	}
	var table TableSpec
	if err := json.Unmarshal(raw, &table); err != nil {
		return TableSpec{}, fmt.Errorf("decode table data: %w", err)
	}
	if len(table.Headers) == 0 {
		return TableSpec{}, fmt.Errorf("table has no headers")
	}
	if table.Rows == nil {
		table.Rows = []map[string]any{}
	}
	return table, nil
}

func decodeColors(raw json.RawMessage) []string {
	if len(present(raw)) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

func pieColors(n int) []string {
	colors := make([]string, n)
	for i := range colors {
		colors[i] = PieColors[i%len(PieColors)]
	}
	return colors
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func scalarString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
