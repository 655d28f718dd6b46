package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sheetchat/sheetchat/internal/catalog"
	"github.com/sheetchat/sheetchat/internal/chat"
	"github.com/sheetchat/sheetchat/internal/observability"
	"github.com/sheetchat/sheetchat/internal/sessionexport"
)

type createSessionRequest struct {
	FileID         string            `json:"fileId"`
	Messages       []json.RawMessage `json:"messages"`
	SelectedTables []string          `json:"selectedTables"`
}

type postMessageRequest struct {
	Message        *string         `json:"message"`
	SelectedTables json.RawMessage `json:"selectedTables"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat service is not configured", nil)
		return
	}

	var request createSessionRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SESSION", "Invalid session data", nil)
		return
	}
	// Sessions start empty; messages are only ever added by posting them.
	if strings.TrimSpace(request.FileID) == "" || len(request.Messages) > 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SESSION", "Invalid session data", nil)
		return
	}
	selected := request.SelectedTables
	if selected == nil {
		selected = []string{}
	}

	session, err := deps.Chat.CreateSession(r.Context(), chat.CreateSessionInput{
		FileID:         strings.TrimSpace(request.FileID),
		SelectedTables: selected,
	})
	if err != nil {
		logFailure(r.Context(), deps, "create session failed", err, slog.String("file_id", request.FileID))
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CREATE_FAILED", "Failed to create session", nil)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := loadSession(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func loadSession(deps Dependencies, w http.ResponseWriter, r *http.Request) (chat.Session, bool) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", nil)
		return chat.Session{}, false
	}
	sessionID := strings.TrimSpace(r.PathValue("id"))
	session, err := deps.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
			return chat.Session{}, false
		}
		logFailure(r.Context(), deps, "get session failed", err, slog.String("session_id", sessionID))
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_FETCH_FAILED", "Failed to fetch session", nil)
		return chat.Session{}, false
	}
	return session, true
}

func handlePostMessage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat service is not configured", nil)
		return
	}

	var request postMessageRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MESSAGE", "Invalid message data", nil)
		return
	}
	if request.Message == nil || strings.TrimSpace(*request.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MESSAGE", "Invalid message data", nil)
		return
	}
	keys, err := selectedTableKeys(request.SelectedTables)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MESSAGE", "Invalid message data", nil)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("id"))
	exchange, err := deps.Chat.PostMessage(r.Context(), sessionID, *request.Message, keys)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotFound):
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
		case errors.Is(err, catalog.ErrNotFound):
			writeError(r.Context(), w, http.StatusNotFound, "FILE_NOT_FOUND", "Associated file not found", nil)
		default:
			logFailure(r.Context(), deps, "post message failed", err, slog.String("session_id", sessionID))
			writeError(r.Context(), w, http.StatusInternalServerError, "MESSAGE_FAILED", "Failed to process message", nil)
		}
		return
	}
	writeJSON(w, http.StatusOK, exchange)
}

// selectedTableKeys accepts either the selected tables themselves, keyed by
// table key, or a plain list of keys.
func selectedTableKeys(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var keys []string
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return nil, fmt.Errorf("decode selected table keys: %w", err)
		}
		return keys, nil
	}
	var tables catalog.TablesData
	if err := json.Unmarshal(trimmed, &tables); err != nil {
		return nil, fmt.Errorf("decode selected tables: %w", err)
	}
	return tables.Keys(), nil
}

func handleSessionExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	format, err := sessionexport.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", map[string]any{"supported": []string{"json", "jsonl", "yaml", "md", "html"}})
		return
	}
	session, ok := loadSession(deps, w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := sessionexport.Write(&buf, format, session); err != nil {
		logFailure(r.Context(), deps, "export session failed", err, slog.String("session_id", session.ID), slog.String("format", string(format)))
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to export session", nil)
		return
	}
	observability.ObserveExport("session", string(format))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", attachment(format.Filename(session.ID)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
