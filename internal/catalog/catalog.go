package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

// FileRepository holds uploaded workbooks and the tables extracted from them.
// Files are immutable once created.
type FileRepository interface {
	CreateFile(ctx context.Context, in CreateFileInput) (ExcelFile, error)
	GetFile(ctx context.Context, fileID string) (ExcelFile, error)
	ListFiles(ctx context.Context) ([]ExcelFile, error)
}

type Table struct {
	Title   string           `json:"title"`
	Headers []string         `json:"headers"`
	Rows    []map[string]any `json:"rows"`
}

type TablesData map[string]Table

type ExcelFile struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	OriginalName string     `json:"originalName"`
	UploadedAt   time.Time  `json:"uploadedAt"`
	Tables       TablesData `json:"tables"`
}

type CreateFileInput struct {
	Filename     string
	OriginalName string
	Tables       TablesData
}

// UnmarshalJSON rejects tables that omit title, headers or rows. Row keys
// outside headers are tolerated.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title   *string          `json:"title"`
		Headers []string         `json:"headers"`
		Rows    []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Title == nil {
		return fmt.Errorf("table title is required")
	}
	if raw.Headers == nil {
		return fmt.Errorf("table headers are required")
	}
	if raw.Rows == nil {
		return fmt.Errorf("table rows are required")
	}
	t.Title = *raw.Title
	t.Headers = raw.Headers
	t.Rows = raw.Rows
	return nil
}

// Keys returns the table keys in ascending order.
func (d TablesData) Keys() []string {
	keys := make([]string, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Select returns the subset of d named by keys. Unknown keys are dropped.
func (d TablesData) Select(keys []string) TablesData {
	selected := make(TablesData, len(keys))
	for _, key := range keys {
		if table, ok := d[key]; ok {
			selected[key] = table
		}
	}
	return selected
}

// NumericValue reports whether a cell holds a number, either as a JSON or Go
// numeric type or as a plain numeric string.
func NumericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// IsEmptyCell reports whether a cell is absent, null or a blank string.
func IsEmptyCell(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}
