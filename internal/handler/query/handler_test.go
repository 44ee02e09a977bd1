package query

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/yuchenx/docpilot/internal/ingest"
	"github.com/yuchenx/docpilot/internal/service/agent"
	"github.com/yuchenx/docpilot/internal/service/session"
	"github.com/yuchenx/docpilot/internal/storage"
	"github.com/yuchenx/docpilot/internal/tool"
)

const salariesCSV = "name,salary\nada,50000\nben,60000\ncyd,75000\n"

func setupRouter() (*chi.Mux, *session.Registry) {
	blobs := storage.NewMemoryBlobs()
	registry := session.NewRegistry()
	tools := []tool.Tool{
		tool.NewArithmetic(),
		tool.NewTabular(),
		tool.NewImageText(blobs, nil),
	}
	agentRouter := agent.NewRouter(registry, ingest.New(blobs, 0), blobs, tools, nil, zerolog.Nop())
	handler := New(agentRouter, ingest.DefaultMaxBytes, zerolog.Nop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, registry
}

func multipartBody(t *testing.T, query, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if query != "" {
		if err := w.WriteField("query", query); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func postQuery(r http.Handler, body *bytes.Buffer, contentType, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/query", body)
	req.Header.Set("Content-Type", contentType)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: cookie})
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestQueryWithCSVUpload(t *testing.T) {
	r, _ := setupRouter()
	body, contentType := multipartBody(t, "average of column salary", "salaries.csv", []byte(salariesCSV))

	resp := postQuery(r, body, contentType, "")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Response  string  `json:"response"`
		LoadedCSV *string `json:"loaded_csv"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(payload.Response, "Mean of salary") {
		t.Fatalf("unexpected response: %q", payload.Response)
	}
	if payload.LoadedCSV == nil || *payload.LoadedCSV == "" {
		t.Fatal("expected loaded_csv to be set")
	}
	if !strings.Contains(resp.Header().Get("Set-Cookie"), "session_id=") {
		t.Fatal("expected a session cookie to be minted")
	}
}

func TestQueryArithmeticWithoutUpload(t *testing.T) {
	r, _ := setupRouter()
	body, contentType := multipartBody(t, "divide 6 by 2", "", nil)

	resp := postQuery(r, body, contentType, "s-arith")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var payload struct {
		Response  string  `json:"response"`
		LoadedCSV *string `json:"loaded_csv"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &payload)
	if payload.Response != "3.0" {
		t.Fatalf("expected 3.0, got %q", payload.Response)
	}
	if payload.LoadedCSV != nil {
		t.Fatalf("expected null loaded_csv, got %q", *payload.LoadedCSV)
	}
}

func TestQueryUnsupportedUpload(t *testing.T) {
	r, registry := setupRouter()

	// Bind a CSV first; the bad upload must not disturb it.
	body, contentType := multipartBody(t, "summarize the data", "salaries.csv", []byte(salariesCSV))
	if resp := postQuery(r, body, contentType, "s1"); resp.Code != http.StatusOK {
		t.Fatalf("setup upload failed: %d", resp.Code)
	}

	body, contentType = multipartBody(t, "summarize", "notes.txt", []byte("plain text"))
	resp := postQuery(r, body, contentType, "s1")

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	s := registry.GetOrCreate("s1")
	if s.Artifact == nil {
		t.Fatal("previously bound artifact should survive a rejected upload")
	}
	if len(s.History) != 1 {
		t.Fatalf("rejected upload must not record a turn, history=%d", len(s.History))
	}
}

func TestQueryMissingQueryField(t *testing.T) {
	r, _ := setupRouter()
	body, contentType := multipartBody(t, "", "salaries.csv", []byte(salariesCSV))

	resp := postQuery(r, body, contentType, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestClearEndpoints(t *testing.T) {
	r, registry := setupRouter()

	body, contentType := multipartBody(t, "summarize the data", "salaries.csv", []byte(salariesCSV))
	if resp := postQuery(r, body, contentType, "s1"); resp.Code != http.StatusOK {
		t.Fatalf("setup upload failed: %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/clear_csv", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "CSV cleared") {
		t.Fatalf("unexpected clear_csv reply: %d %s", resp.Code, resp.Body.String())
	}
	if s := registry.GetOrCreate("s1"); s.Artifact != nil || len(s.History) != 1 {
		t.Fatal("clear_csv should unbind the artifact and keep history")
	}

	req = httptest.NewRequest(http.MethodPost, "/clear_session", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "Session cleared") {
		t.Fatalf("unexpected clear_session reply: %d %s", resp.Code, resp.Body.String())
	}
	if s := registry.GetOrCreate("s1"); len(s.History) != 0 {
		t.Fatal("clear_session should drop history")
	}
}
