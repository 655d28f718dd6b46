package profile

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/sheetchat/sheetchat/internal/catalog"
)

type DataType string

const (
	TypeNumber  DataType = "number"
	TypeString  DataType = "string"
	TypeBoolean DataType = "boolean"
	TypeEmpty   DataType = "empty"
	TypeMixed   DataType = "mixed"
)

type NumericSummary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
}

type ColumnProfile struct {
	Name     string          `json:"name"`
	DataType DataType        `json:"dataType"`
	NonEmpty int             `json:"nonEmpty"`
	Distinct int             `json:"distinct"`
	Numeric  *NumericSummary `json:"numeric,omitempty"`
}

type TableProfile struct {
	Key         string          `json:"key"`
	Title       string          `json:"title"`
	RowCount    int             `json:"rowCount"`
	ColumnCount int             `json:"columnCount"`
	Columns     []ColumnProfile `json:"columns"`
}

// Table profiles every header column of table. Row keys outside the headers
// are ignored.
func Table(key string, table catalog.Table) (TableProfile, error) {
	out := TableProfile{
		Key:         key,
		Title:       table.Title,
		RowCount:    len(table.Rows),
		ColumnCount: len(table.Headers),
		Columns:     make([]ColumnProfile, 0, len(table.Headers)),
	}
	for _, header := range table.Headers {
		column, err := profileColumn(header, table.Rows)
		if err != nil {
			return TableProfile{}, fmt.Errorf("profile column %q: %w", header, err)
		}
		out.Columns = append(out.Columns, column)
	}
	return out, nil
}

func profileColumn(name string, rows []map[string]any) (ColumnProfile, error) {
	column := ColumnProfile{Name: name}
	seen := make(map[string]struct{})
	kinds := make(map[DataType]int)
	numbers := make(stats.Float64Data, 0, len(rows))

	for _, row := range rows {
		value := row[name]
		if catalog.IsEmptyCell(value) {
			continue
		}
		column.NonEmpty++
		seen[fmt.Sprint(value)] = struct{}{}
		if _, ok := value.(bool); ok {
			kinds[TypeBoolean]++
			continue
		}
		if f, ok := catalog.NumericValue(value); ok {
			kinds[TypeNumber]++
			numbers = append(numbers, f)
			continue
		}
		kinds[TypeString]++
	}
	column.Distinct = len(seen)

	switch len(kinds) {
	case 0:
		column.DataType = TypeEmpty
	case 1:
		for kind := range kinds {
			column.DataType = kind
		}
	default:
		column.DataType = TypeMixed
	}

	if column.DataType == TypeNumber {
		summary, err := summarize(numbers)
		if err != nil {
			return ColumnProfile{}, err
		}
		column.Numeric = &summary
	}
	return column, nil
}

func summarize(data stats.Float64Data) (NumericSummary, error) {
	min, err := stats.Min(data)
	if err != nil {
		return NumericSummary{}, err
	}
	max, err := stats.Max(data)
	if err != nil {
		return NumericSummary{}, err
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return NumericSummary{}, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return NumericSummary{}, err
	}
	stdDev, err := stats.StandardDeviation(data)
	if err != nil {
		return NumericSummary{}, err
	}
	return NumericSummary{Min: min, Max: max, Mean: mean, Median: median, StdDev: stdDev}, nil
}
