package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sheetchat/sheetchat/internal/config"
	"github.com/sheetchat/sheetchat/internal/query"
)

type queryRequest struct {
	SQL      string   `json:"sql"`
	Tables   []string `json:"tables"`
	RowLimit int      `json:"rowLimit"`
}

type queryResponse struct {
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query engine is not configured", nil)
		return
	}

	var request queryRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", nil)
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", nil)
		return
	}
	if err := query.ValidateReadOnly(request.SQL); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", nil)
		return
	}
	if request.RowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "rowLimit must be >= 0", nil)
		return
	}

	file, ok := loadFile(deps, w, r)
	if !ok {
		return
	}
	tables := file.Tables
	if len(request.Tables) > 0 {
		tables = tables.Select(request.Tables)
	}
	if len(tables) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLES_REQUIRED", "no known tables selected", nil)
		return
	}

	rowLimit := request.RowLimit
	if rowLimit == 0 {
		rowLimit = cfg.Query.DefaultRowLimit
	}
	result, err := deps.QueryEngine.Execute(r.Context(), query.Request{
		SQL:      request.SQL,
		RowLimit: rowLimit,
		Tables:   tables,
	})
	if err != nil {
		if errors.Is(err, query.ErrReadOnly) {
			writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", nil)
			return
		}
		deps.logger().WarnContext(r.Context(), "query execution failed",
			slog.String("file_id", file.ID),
			slog.String("error", err.Error()),
		)
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", nil)
		return
	}

	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns: result.Columns,
		Rows:    rows,
		Stats: map[string]any{
			"duration_ms":    result.Duration.Milliseconds(),
			"scanned_tables": result.ScannedTables,
			"scanned_rows":   result.ScannedRows,
		},
	})
}
