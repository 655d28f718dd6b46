package sheetchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type captured struct {
	method      string
	path        string
	query       string
	contentType string
	body        []byte
}

func captureServer(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.contentType = r.Header.Get("Content-Type")
		got.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestRunHealthCommand(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, `{"status":"healthy","service":"sheetchat-api"}`)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "health"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if got.method != http.MethodGet || got.path != "/api/health" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if !strings.Contains(stdout.String(), `"status": "healthy"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunAskCommand(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, `{"id":"s1","messages":[]}`)

	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-tables", "Sheet1, Sheet2",
		"ask", "s1", "show", "revenue",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/api/chat/sessions/s1/messages" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	var body struct {
		Message        string   `json:"message"`
		SelectedTables []string `json:"selectedTables"`
	}
	if err := json.Unmarshal(got.body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Message != "show revenue" {
		t.Fatalf("message = %q", body.Message)
	}
	if len(body.SelectedTables) != 2 || body.SelectedTables[1] != "Sheet2" {
		t.Fatalf("selectedTables = %v", body.SelectedTables)
	}
}

func TestRunNewSessionCommand(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, `{"id":"s1"}`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "new-session", "f1"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/api/chat/sessions" {
		t.Fatalf("path = %s", got.path)
	}
	if !strings.Contains(string(got.body), `"messages":[]`) || !strings.Contains(string(got.body), `"selectedTables":[]`) {
		t.Fatalf("body = %s", got.body)
	}
}

func TestRunQueryReadsSQLFromStdin(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, `{"columns":["n"],"rows":[[1]]}`)

	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-row-limit", "10",
		"query", "f1", "-",
	}, Options{Stdin: strings.NewReader("SELECT 1 AS n\n")})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/api/files/f1/query" {
		t.Fatalf("path = %s", got.path)
	}
	var body map[string]any
	if err := json.Unmarshal(got.body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["sql"] != "SELECT 1 AS n" || body["rowLimit"] != float64(10) {
		t.Fatalf("body = %v", body)
	}
}

func TestRunExportWritesRawBody(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, "a,b\n1,2\n")

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-format", "csv",
		"export-table", "f1", "Sheet 1",
	}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/api/files/f1/tables/Sheet 1/export" || got.query != "format=csv" {
		t.Fatalf("request = %s?%s", got.path, got.query)
	}
	if stdout.String() != "a,b\n1,2\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunUploadCommand(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, `{"id":"f1"}`)

	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := os.WriteFile(path, []byte("fake workbook"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	code := Run(context.Background(), []string{"-base-url", srv.URL, "upload", path}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/api/files/upload" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if !strings.HasPrefix(got.contentType, "multipart/form-data") {
		t.Fatalf("content type = %q", got.contentType)
	}
	if !strings.Contains(string(got.body), `filename="report.xlsx"`) {
		t.Fatalf("body missing filename: %s", got.body)
	}
}

func TestRunSuggestSendsFileTables(t *testing.T) {
	var suggestBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/files/f1":
			_, _ = w.Write([]byte(`{"id":"f1","tables":{"A":{"headers":["x"],"rows":[]},"B":{"headers":["y"],"rows":[]}}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/insights/suggestions":
			suggestBody, _ = io.ReadAll(r.Body)
			_, _ = w.Write([]byte(`{"suggestions":["one"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "-tables", "B", "suggest", "f1"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var body struct {
		Tables map[string]json.RawMessage `json:"tables"`
	}
	if err := json.Unmarshal(suggestBody, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Tables) != 1 || body.Tables["B"] == nil {
		t.Fatalf("tables = %v", body.Tables)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv, _ := captureServer(t, http.StatusNotFound, `{"error_code":"SESSION_NOT_FOUND"}`)

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "session", "missing"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 404") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"unknown"},
		{"ask", "s1"},
		{"profile", "f1"},
		{},
	} {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("Run(%v) exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("Run(%v) expected usage output", args)
		}
	}
}
