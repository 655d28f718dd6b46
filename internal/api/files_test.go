package api

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sheetchat/sheetchat/internal/catalog"
)

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadCreatesMockFileAndArchives(t *testing.T) {
	archive := &fakeArchive{}
	srv := newTestServer(t, nil, map[string]string{}, func(d *Dependencies) { d.Archive = archive })

	rr := httptest.NewRecorder()
	srv.handler.ServeHTTP(rr, uploadRequest(t, "file", "Budget 2024.xlsx", []byte("PK\x03\x04data")))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var created catalog.ExcelFile
	decodeBody(t, rr, &created)
	if created.ID == "" || created.OriginalName != "Budget 2024.xlsx" {
		t.Fatalf("created = %+v", created)
	}
	if created.Tables["uploadedTable1"].Title != "Data from Budget 2024.xlsx" {
		t.Fatalf("tables = %+v", created.Tables)
	}
	if string(archive.saved[created.ID+"/Budget 2024.xlsx"]) != "PK\x03\x04data" {
		t.Fatalf("archived = %v", archive.saved)
	}

	files, err := srv.files.ListFiles(t.Context())
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}

	rr = srv.do(t, http.MethodGet, "/api/files/"+created.ID+"/original", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "PK\x03\x04data" {
		t.Fatalf("original status = %d body = %q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "Budget 2024.xlsx") {
		t.Fatalf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
}

func TestUploadSurvivesArchiveFailure(t *testing.T) {
	archive := &fakeArchive{saveErr: errors.New("bucket unavailable")}
	srv := newTestServer(t, nil, map[string]string{}, func(d *Dependencies) { d.Archive = archive })

	rr := httptest.NewRecorder()
	srv.handler.ServeHTTP(rr, uploadRequest(t, "file", "a.xls", []byte("x")))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestUploadRejections(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{"SHEETCHAT_UPLOAD_MAX_BYTES": "16"}, nil)

	cases := []struct {
		name string
		req  *http.Request
		code string
	}{
		{name: "missing file", req: uploadRequest(t, "", "", nil), code: "FILE_REQUIRED"},
		{name: "wrong field", req: uploadRequest(t, "upload", "a.xlsx", []byte("x")), code: "FILE_REQUIRED"},
		{name: "wrong extension", req: uploadRequest(t, "file", "notes.csv", []byte("x")), code: "UNSUPPORTED_FILE_TYPE"},
		{name: "too large", req: uploadRequest(t, "file", "big.xlsx", bytes.Repeat([]byte("x"), 17)), code: "FILE_TOO_LARGE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.handler.ServeHTTP(rr, tc.req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			var body map[string]any
			decodeBody(t, rr, &body)
			if body["error_code"] != tc.code {
				t.Fatalf("error_code = %v, want %s", body["error_code"], tc.code)
			}
		})
	}

	files, err := srv.files.ListFiles(t.Context())
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %d, want only the seeded file", len(files))
	}
}

func TestOriginalDownloadWithoutArchive(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{}, nil)
	rr := srv.do(t, http.MethodGet, "/api/files/"+catalog.TransitFileID+"/original", "")
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}

	srv = newTestServer(t, nil, map[string]string{}, func(d *Dependencies) { d.Archive = &fakeArchive{} })
	rr = srv.do(t, http.MethodGet, "/api/files/"+catalog.TransitFileID+"/original", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unarchived status = %d", rr.Code)
	}
}

func TestTableProfileEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{}, nil)

	rr := srv.do(t, http.MethodGet, "/api/files/"+catalog.TransitFileID+"/tables/stationCapacityAnalysis/profile", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["rowCount"] != float64(3) {
		t.Fatalf("body = %v", body)
	}

	rr = srv.do(t, http.MethodGet, "/api/files/"+catalog.TransitFileID+"/tables/ghost/profile", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown table status = %d", rr.Code)
	}
}

func TestTableExportEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{}, nil)

	rr := srv.do(t, http.MethodGet, "/api/files/"+catalog.TransitFileID+"/tables/monthlyRidership/export?format=csv", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Body.String(), "Month,Passengers,Revenue,Growth\n") {
		t.Fatalf("body = %q", rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}

	rr = srv.do(t, http.MethodGet, "/api/files/"+catalog.TransitFileID+"/tables/monthlyRidership/export?format=parquet", "")
	if rr.Code != http.StatusOK || !bytes.HasPrefix(rr.Body.Bytes(), []byte("PAR1")) {
		t.Fatalf("parquet status = %d", rr.Code)
	}

	rr = srv.do(t, http.MethodGet, "/api/files/"+catalog.TransitFileID+"/tables/monthlyRidership/export?format=pdf", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad format status = %d", rr.Code)
	}
}

func TestFileSessionsAndSessionExport(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{}, nil)
	first := createSession(t, srv, catalog.TransitFileID)
	createSession(t, srv, catalog.TransitFileID)
	createSession(t, srv, "other-file")

	rr := srv.do(t, http.MethodGet, "/api/files/"+catalog.TransitFileID+"/sessions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var sessions []map[string]any
	decodeBody(t, rr, &sessions)
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}

	srv.do(t, http.MethodPost, "/api/chat/sessions/"+first.ID+"/messages", `{"message":"How many incidents were there?"}`)
	rr = srv.do(t, http.MethodGet, "/api/chat/sessions/"+first.ID+"/export?format=md", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "How many incidents were there?") {
		t.Fatalf("export body = %s", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "session_"+first.ID+".md") {
		t.Fatalf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}

	rr = srv.do(t, http.MethodGet, "/api/chat/sessions/"+first.ID+"/export?format=docx", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad format status = %d", rr.Code)
	}
	rr = srv.do(t, http.MethodGet, "/api/chat/sessions/missing/export", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", rr.Code)
	}
}
