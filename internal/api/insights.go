package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sheetchat/sheetchat/internal/analysis"
	"github.com/sheetchat/sheetchat/internal/catalog"
)

var errInvalidTables = errors.New("tables must be a JSON object")

type suggestionsRequest struct {
	Tables json.RawMessage `json:"tables"`
}

// handleSuggestions answers with the static list and a 500 when the body does
// not carry a tables object, so clients always have questions to show.
func handleSuggestions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request suggestionsRequest
	var tables catalog.TablesData
	err := decodeJSON(r, &request)
	if err == nil {
		tables, err = decodeTables(request.Tables)
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INVALID_TABLES", "Failed to generate suggestions", map[string]any{
			"suggestions": analysis.StaticSuggestions(),
		})
		return
	}

	if deps.Suggester == nil {
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": analysis.StaticSuggestions()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": deps.Suggester.Suggest(r.Context(), tables)})
}

func decodeTables(raw json.RawMessage) (catalog.TablesData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errInvalidTables
	}
	var tables catalog.TablesData
	if err := json.Unmarshal(trimmed, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}
