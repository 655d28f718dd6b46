package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sheetchat/sheetchat/internal/catalog"
	"github.com/sheetchat/sheetchat/internal/chat"
	"github.com/sheetchat/sheetchat/internal/config"
	"github.com/sheetchat/sheetchat/internal/observability"
	"github.com/sheetchat/sheetchat/internal/query"
	"github.com/sheetchat/sheetchat/internal/storage"
)

type ChatService interface {
	CreateSession(ctx context.Context, in chat.CreateSessionInput) (chat.Session, error)
	PostMessage(ctx context.Context, sessionID, userText string, selectedTableKeys []string) (chat.Exchange, error)
}

type Suggester interface {
	Suggest(ctx context.Context, tables catalog.TablesData) []string
}

type UploadArchive interface {
	Save(ctx context.Context, fileID, originalName string, data []byte) (storage.ObjectInfo, error)
	Open(ctx context.Context, fileID, originalName string) (io.ReadCloser, storage.ObjectInfo, error)
}

type Dependencies struct {
	Logger      *slog.Logger
	Files       catalog.FileRepository
	Sessions    chat.SessionStore
	Chat        ChatService
	Suggester   Suggester
	QueryEngine query.Engine
	Archive     UploadArchive
	Now         func() time.Time
}

func (d Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return d.Logger
}

func (d Dependencies) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": cfg.Service.Name})
	})
	mux.Handle("GET /api/metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/files", func(w http.ResponseWriter, r *http.Request) {
		handleListFiles(deps, w, r)
	})
	mux.HandleFunc("POST /api/files/upload", func(w http.ResponseWriter, r *http.Request) {
		handleUploadFile(cfg, deps, w, r)
	})
	mux.HandleFunc("GET /api/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetFile(deps, w, r)
	})
	mux.HandleFunc("GET /api/files/{id}/original", func(w http.ResponseWriter, r *http.Request) {
		handleDownloadOriginal(deps, w, r)
	})
	mux.HandleFunc("GET /api/files/{id}/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleListFileSessions(deps, w, r)
	})
	mux.HandleFunc("GET /api/files/{id}/tables/{table}/profile", func(w http.ResponseWriter, r *http.Request) {
		handleTableProfile(deps, w, r)
	})
	mux.HandleFunc("GET /api/files/{id}/tables/{table}/export", func(w http.ResponseWriter, r *http.Request) {
		handleTableExport(deps, w, r)
	})
	mux.HandleFunc("POST /api/files/{id}/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(cfg, deps, w, r)
	})

	mux.HandleFunc("POST /api/chat/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleCreateSession(deps, w, r)
	})
	mux.HandleFunc("GET /api/chat/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetSession(deps, w, r)
	})
	mux.HandleFunc("POST /api/chat/sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		handlePostMessage(deps, w, r)
	})
	mux.HandleFunc("GET /api/chat/sessions/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		handleSessionExport(deps, w, r)
	})

	mux.HandleFunc("POST /api/insights/suggestions", func(w http.ResponseWriter, r *http.Request) {
		handleSuggestions(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.RecoverMiddleware(deps.Logger))
	return chain(mux, middlewares...)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends the generic error body. Keys in extra are added at the top
// level of the body.
func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	body := map[string]any{
		"message":    message,
		"error_code": code,
		"trace_id":   observability.TraceIDFromContext(ctx),
	}
	for key, value := range extra {
		body[key] = value
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

func logFailure(ctx context.Context, deps Dependencies, msg string, err error, attrs ...slog.Attr) {
	args := []any{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("error", err.Error()),
	}
	for _, attr := range attrs {
		args = append(args, attr)
	}
	deps.logger().ErrorContext(ctx, msg, args...)
}
