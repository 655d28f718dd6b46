package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sheetchat/sheetchat/internal/catalog"
	"github.com/sheetchat/sheetchat/internal/chat"
	"github.com/sheetchat/sheetchat/internal/config"
	"github.com/sheetchat/sheetchat/internal/observability"
	"github.com/sheetchat/sheetchat/internal/profile"
	"github.com/sheetchat/sheetchat/internal/storage"
	"github.com/sheetchat/sheetchat/internal/tableexport"
)

// multipartOverhead is the allowance for form boundaries and part headers on
// top of the file size limit.
const multipartOverhead = 1 << 20

func handleListFiles(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Files == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FILES_NOT_CONFIGURED", "file store is not configured", nil)
		return
	}
	files, err := deps.Files.ListFiles(r.Context())
	if err != nil {
		logFailure(r.Context(), deps, "list files failed", err)
		writeError(r.Context(), w, http.StatusInternalServerError, "FILES_FETCH_FAILED", "Failed to fetch files", nil)
		return
	}
	if files == nil {
		files = []catalog.ExcelFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

func handleGetFile(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	file, ok := loadFile(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// loadFile resolves the {id} path value and writes the error response itself
// when the file cannot be returned.
func loadFile(deps Dependencies, w http.ResponseWriter, r *http.Request) (catalog.ExcelFile, bool) {
	if deps.Files == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FILES_NOT_CONFIGURED", "file store is not configured", nil)
		return catalog.ExcelFile{}, false
	}
	fileID := strings.TrimSpace(r.PathValue("id"))
	file, err := deps.Files.GetFile(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "FILE_NOT_FOUND", "File not found", nil)
			return catalog.ExcelFile{}, false
		}
		logFailure(r.Context(), deps, "get file failed", err, slog.String("file_id", fileID))
		writeError(r.Context(), w, http.StatusInternalServerError, "FILE_FETCH_FAILED", "Failed to fetch file", nil)
		return catalog.ExcelFile{}, false
	}
	return file, true
}

func handleUploadFile(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Files == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FILES_NOT_CONFIGURED", "file store is not configured", nil)
		return
	}

	maxBytes := cfg.Upload.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	part, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusBadRequest, "FILE_TOO_LARGE", "File exceeds the upload size limit", map[string]any{"max_bytes": maxBytes})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "No file uploaded", nil)
		return
	}
	defer func() { _ = part.Close() }()

	if !catalog.AllowedUpload(header.Filename) {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "Only Excel files (.xlsx, .xls) are allowed", nil)
		return
	}
	data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_UNREADABLE", "Failed to read uploaded file", nil)
		return
	}
	if int64(len(data)) > maxBytes {
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_TOO_LARGE", "File exceeds the upload size limit", map[string]any{"max_bytes": maxBytes})
		return
	}

	created, err := deps.Files.CreateFile(r.Context(), catalog.MockParse(header.Filename, deps.now()))
	if err != nil {
		logFailure(r.Context(), deps, "create file failed", err, slog.String("original_name", header.Filename))
		writeError(r.Context(), w, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to process file", nil)
		return
	}
	observability.ObserveUpload(int64(len(data)))

	if deps.Archive != nil {
		if _, err := deps.Archive.Save(r.Context(), created.ID, created.OriginalName, data); err != nil {
			observability.IncrementArchiveFailure()
			deps.logger().WarnContext(r.Context(), "archive upload failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.String("file_id", created.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	deps.logger().InfoContext(r.Context(), "file uploaded",
		slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
		slog.String("file_id", created.ID),
		slog.String("original_name", created.OriginalName),
		slog.Int("bytes", len(data)),
	)
	writeJSON(w, http.StatusOK, created)
}

func handleDownloadOriginal(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "upload archive is not configured", nil)
		return
	}
	file, ok := loadFile(deps, w, r)
	if !ok {
		return
	}
	reader, info, err := deps.Archive.Open(r.Context(), file.ID, file.OriginalName)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "ORIGINAL_NOT_FOUND", "Original upload not found", nil)
			return
		}
		logFailure(r.Context(), deps, "open archived upload failed", err, slog.String("file_id", file.ID))
		writeError(r.Context(), w, http.StatusInternalServerError, "ARCHIVE_ERROR", "Failed to fetch original upload", nil)
		return
	}
	defer func() { _ = reader.Close() }()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", attachment(file.OriginalName))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func handleListFileSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", nil)
		return
	}
	file, ok := loadFile(deps, w, r)
	if !ok {
		return
	}
	sessions, err := deps.Sessions.ListByFile(r.Context(), file.ID)
	if err != nil {
		logFailure(r.Context(), deps, "list sessions failed", err, slog.String("file_id", file.ID))
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSIONS_FETCH_FAILED", "Failed to fetch sessions", nil)
		return
	}
	if sessions == nil {
		sessions = []chat.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func loadTable(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, catalog.Table, bool) {
	file, ok := loadFile(deps, w, r)
	if !ok {
		return "", catalog.Table{}, false
	}
	key := r.PathValue("table")
	table, ok := file.Tables[key]
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "Table not found", nil)
		return "", catalog.Table{}, false
	}
	return key, table, true
}

func handleTableProfile(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	key, table, ok := loadTable(deps, w, r)
	if !ok {
		return
	}
	result, err := profile.Table(key, table)
	if err != nil {
		logFailure(r.Context(), deps, "profile table failed", err, slog.String("table", key))
		writeError(r.Context(), w, http.StatusInternalServerError, "PROFILE_FAILED", "Failed to profile table", nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleTableExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	format, err := tableexport.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", map[string]any{"supported": []string{"csv", "xlsx", "parquet"}})
		return
	}
	key, table, ok := loadTable(deps, w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := tableexport.Write(&buf, format, table); err != nil {
		logFailure(r.Context(), deps, "export table failed", err, slog.String("table", key), slog.String("format", string(format)))
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to export table", nil)
		return
	}
	observability.ObserveExport("table", string(format))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", attachment(format.Filename(key)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}
