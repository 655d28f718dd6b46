package sheetchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type flags struct {
	format   string
	tables   []string
	rowLimit int
}

// request describes one API call. Raw responses are copied to stdout as-is
// instead of being pretty-printed.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	raw         bool
}

var errUsage = errors.New("usage")

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	fs := flag.NewFlagSet("sheetchatctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "SheetChat API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")
	format := fs.String("format", "", "export format (csv|xlsx|parquet for tables, json|jsonl|yaml|md|html for sessions)")
	tables := fs.String("tables", "", "comma-separated table keys")
	rowLimit := fs.Int("row-limit", 0, "row limit for query (0 uses the server default)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	opts := flags{format: *format, tables: splitList(*tables), rowLimit: *rowLimit}
	endpoint := strings.TrimRight(*baseURL, "/")

	command := strings.TrimSpace(fs.Arg(0))
	var req request
	var err error
	if command == "suggest" {
		req, err = suggestRequest(ctx, client, endpoint, fs.Args()[1:], opts)
	} else {
		req, err = buildRequest(command, fs.Args()[1:], opts, stdin)
	}
	if err != nil {
		if errors.Is(err, errUsage) {
			_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
			writeUsage(stderr)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	code, responseBody, err := doRequest(ctx, client, endpoint, req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if req.raw {
		_, _ = stdout.Write(responseBody)
		return 0
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, args []string, opts flags, stdin io.Reader) (request, error) {
	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/api/health"}, nil
	case "files":
		return request{method: http.MethodGet, path: "/api/files"}, nil
	case "file":
		if len(args) != 1 {
			return request{}, fmt.Errorf("%w: file <file-id>", errUsage)
		}
		return request{method: http.MethodGet, path: "/api/files/" + url.PathEscape(args[0])}, nil
	case "sessions":
		if len(args) != 1 {
			return request{}, fmt.Errorf("%w: sessions <file-id>", errUsage)
		}
		return request{method: http.MethodGet, path: "/api/files/" + url.PathEscape(args[0]) + "/sessions"}, nil
	case "upload":
		if len(args) != 1 {
			return request{}, fmt.Errorf("%w: upload <path>", errUsage)
		}
		return uploadRequest(args[0])
	case "new-session":
		if len(args) != 1 {
			return request{}, fmt.Errorf("%w: new-session <file-id>", errUsage)
		}
		selected := opts.tables
		if selected == nil {
			selected = []string{}
		}
		return jsonRequest(http.MethodPost, "/api/chat/sessions", map[string]any{
			"fileId":         args[0],
			"messages":       []any{},
			"selectedTables": selected,
		})
	case "session":
		if len(args) != 1 {
			return request{}, fmt.Errorf("%w: session <session-id>", errUsage)
		}
		return request{method: http.MethodGet, path: "/api/chat/sessions/" + url.PathEscape(args[0])}, nil
	case "ask":
		if len(args) < 2 {
			return request{}, fmt.Errorf("%w: ask <session-id> <message>", errUsage)
		}
		body := map[string]any{"message": strings.Join(args[1:], " ")}
		if len(opts.tables) > 0 {
			body["selectedTables"] = opts.tables
		}
		return jsonRequest(http.MethodPost, "/api/chat/sessions/"+url.PathEscape(args[0])+"/messages", body)
	case "profile":
		if len(args) != 2 {
			return request{}, fmt.Errorf("%w: profile <file-id> <table>", errUsage)
		}
		return request{method: http.MethodGet, path: tablePath(args[0], args[1]) + "/profile"}, nil
	case "export-table":
		if len(args) != 2 {
			return request{}, fmt.Errorf("%w: export-table <file-id> <table>", errUsage)
		}
		return request{method: http.MethodGet, path: tablePath(args[0], args[1]) + "/export" + formatQuery(opts.format), raw: true}, nil
	case "export-session":
		if len(args) != 1 {
			return request{}, fmt.Errorf("%w: export-session <session-id>", errUsage)
		}
		return request{method: http.MethodGet, path: "/api/chat/sessions/" + url.PathEscape(args[0]) + "/export" + formatQuery(opts.format), raw: true}, nil
	case "query":
		if len(args) < 2 {
			return request{}, fmt.Errorf("%w: query <file-id> <sql|->", errUsage)
		}
		sqlText := strings.Join(args[1:], " ")
		if sqlText == "-" {
			raw, err := io.ReadAll(stdin)
			if err != nil {
				return request{}, fmt.Errorf("read sql from stdin: %w", err)
			}
			sqlText = string(raw)
		}
		body := map[string]any{"sql": strings.TrimSpace(sqlText)}
		if len(opts.tables) > 0 {
			body["tables"] = opts.tables
		}
		if opts.rowLimit > 0 {
			body["rowLimit"] = opts.rowLimit
		}
		return jsonRequest(http.MethodPost, "/api/files/"+url.PathEscape(args[0])+"/query", body)
	default:
		return request{}, fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

// suggestRequest loads the file so its tables can be sent with the
// suggestion request. -tables narrows the set.
func suggestRequest(ctx context.Context, client *http.Client, endpoint string, args []string, opts flags) (request, error) {
	if len(args) != 1 {
		return request{}, fmt.Errorf("%w: suggest <file-id>", errUsage)
	}
	code, body, err := doRequest(ctx, client, endpoint, request{method: http.MethodGet, path: "/api/files/" + url.PathEscape(args[0])})
	if err != nil {
		return request{}, err
	}
	if code >= 400 {
		return request{}, fmt.Errorf("load file: http %d: %s", code, strings.TrimSpace(string(body)))
	}
	var file struct {
		Tables map[string]json.RawMessage `json:"tables"`
	}
	if err := json.Unmarshal(body, &file); err != nil {
		return request{}, fmt.Errorf("decode file: %w", err)
	}
	tables := file.Tables
	if len(opts.tables) > 0 {
		tables = make(map[string]json.RawMessage, len(opts.tables))
		for _, key := range opts.tables {
			if table, ok := file.Tables[key]; ok {
				tables[key] = table
			}
		}
	}
	if tables == nil {
		tables = map[string]json.RawMessage{}
	}
	return jsonRequest(http.MethodPost, "/api/insights/suggestions", map[string]any{"tables": tables})
}

func uploadRequest(path string) (request, error) {
	file, err := os.Open(path)
	if err != nil {
		return request{}, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return request{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return request{}, fmt.Errorf("read upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return request{}, fmt.Errorf("build upload: %w", err)
	}
	return request{
		method:      http.MethodPost,
		path:        "/api/files/upload",
		body:        body.Bytes(),
		contentType: writer.FormDataContentType(),
	}, nil
}

func jsonRequest(method, path string, payload any) (request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("encode request: %w", err)
	}
	return request{method: method, path: path, body: body, contentType: "application/json"}, nil
}

func doRequest(ctx context.Context, client *http.Client, endpoint string, r request) (int, []byte, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint+r.path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func tablePath(fileID, table string) string {
	return "/api/files/" + url.PathEscape(fileID) + "/tables/" + url.PathEscape(table)
}

func formatQuery(format string) string {
	format = strings.TrimSpace(format)
	if format == "" {
		return ""
	}
	return "?format=" + url.QueryEscape(format)
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: sheetchatctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                            GET /api/health")
	_, _ = fmt.Fprintln(w, "  files                             GET /api/files")
	_, _ = fmt.Fprintln(w, "  file <file-id>                    GET /api/files/{id}")
	_, _ = fmt.Fprintln(w, "  sessions <file-id>                GET /api/files/{id}/sessions")
	_, _ = fmt.Fprintln(w, "  upload <path>                     POST /api/files/upload")
	_, _ = fmt.Fprintln(w, "  new-session <file-id>             POST /api/chat/sessions (-tables)")
	_, _ = fmt.Fprintln(w, "  session <session-id>              GET /api/chat/sessions/{id}")
	_, _ = fmt.Fprintln(w, "  ask <session-id> <message>        POST /api/chat/sessions/{id}/messages (-tables)")
	_, _ = fmt.Fprintln(w, "  suggest <file-id>                 POST /api/insights/suggestions (-tables)")
	_, _ = fmt.Fprintln(w, "  profile <file-id> <table>         GET /api/files/{id}/tables/{table}/profile")
	_, _ = fmt.Fprintln(w, "  export-table <file-id> <table>    GET /api/files/{id}/tables/{table}/export (-format)")
	_, _ = fmt.Fprintln(w, "  export-session <session-id>       GET /api/chat/sessions/{id}/export (-format)")
	_, _ = fmt.Fprintln(w, "  query <file-id> <sql|->           POST /api/files/{id}/query (-tables, -row-limit)")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
