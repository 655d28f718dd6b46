package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sheetchat/sheetchat/internal/catalog"
)

var ErrReadOnly = errors.New("query: only a single SELECT or WITH statement is allowed")

type Request struct {
	SQL      string
	RowLimit int
	Tables   catalog.TablesData
}

type Result struct {
	Columns       []string
	Rows          [][]any
	ScannedTables int
	ScannedRows   int
	Duration      time.Duration
}

// Engine runs SQL against a set of tables, each exposed under its table key.
type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// ValidateReadOnly accepts one statement starting with SELECT or WITH.
// Trailing semicolons are ignored.
func ValidateReadOnly(sqlText string) error {
	trimmed := StripTrailingSemicolons(sqlText)
	if trimmed == "" {
		return fmt.Errorf("sql is required")
	}
	if strings.Contains(trimmed, ";") {
		return ErrReadOnly
	}
	fields := strings.Fields(trimmed)
	switch strings.ToUpper(strings.TrimLeft(fields[0], "(")) {
	case "SELECT", "WITH":
		return nil
	default:
		return ErrReadOnly
	}
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
