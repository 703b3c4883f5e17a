package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sourcelens/ingestion-service/internal/analysis"
	"github.com/sourcelens/ingestion-service/internal/config"
	"github.com/sourcelens/ingestion-service/internal/extract"
	"github.com/sourcelens/ingestion-service/internal/library"
	"github.com/sourcelens/ingestion-service/internal/pipeline"
	"github.com/sourcelens/ingestion-service/internal/types"
)

type stubExtractor struct {
	content string
}

func (s *stubExtractor) Method() string { return types.MethodPDFToText }

func (s *stubExtractor) Attempt(ctx context.Context, path string) (extract.Attempt, error) {
	return extract.Attempt{Method: types.MethodPDFToText, Content: s.content, Succeeded: s.content != ""}, nil
}

type stubGen struct {
	out string
	err error
}

func (s *stubGen) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return s.out, s.err
}

type testEnv struct {
	srv *httptest.Server
	lib *library.Store
}

func newTestEnv(t *testing.T, pdfContent string) *testEnv {
	t.Helper()

	cfg := config.Load()
	cfg.TempDir = t.TempDir()

	log := slog.New(slog.DiscardHandler)

	pipe, err := pipeline.New(pipeline.Deps{
		Config:        cfg,
		Logger:        log,
		PDFExtractors: []extract.Extractor{&stubExtractor{content: pdfContent}},
		PageCount:     func(path string) (int, error) { return 1, nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	lib, err := library.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lib.Close() })

	analyzer := analysis.NewService(log,
		analysis.Provider{Name: "stub", Gen: &stubGen{out: "SUMMARY: s.\nANALYSIS: a."}},
	)

	s := New(cfg, log, pipe, lib, analyzer)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return &testEnv{srv: ts, lib: lib}
}

func multipartUpload(t *testing.T, url, filename, contentType string, data []byte, fields map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	resp, err := http.Post(url+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

func TestUploadTextFileByteIdentical(t *testing.T) {
	env := newTestEnv(t, "")
	body := strings.Repeat("A line of plain text.\n", 50)

	resp := multipartUpload(t, env.srv.URL, "notes.txt", "text/plain", []byte(body), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var res types.ExtractionResult
	decodeBody(t, resp, &res)
	if res.Content != body {
		t.Error("text content was modified in transit")
	}
	if res.ProcessingMethod != types.MethodDirectText {
		t.Errorf("method = %q, want direct-text", res.ProcessingMethod)
	}
	if res.ThumbnailURL != "" {
		t.Errorf("text upload got thumbnailUrl %q", res.ThumbnailURL)
	}
	if res.Filename != "notes.txt" {
		t.Errorf("filename = %q", res.Filename)
	}
}

func TestUploadPDFUsesPipeline(t *testing.T) {
	env := newTestEnv(t, strings.Repeat("extracted pdf text ", 50))

	resp := multipartUpload(t, env.srv.URL, "doc.pdf", "application/pdf", []byte("%PDF-1.4 body"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var res types.ExtractionResult
	decodeBody(t, resp, &res)
	if res.ProcessingMethod != types.MethodPDFToText {
		t.Errorf("method = %q, want pdftotext", res.ProcessingMethod)
	}
	if res.PageCount != 1 {
		t.Errorf("pageCount = %d, want 1", res.PageCount)
	}
}

func TestUploadUnsupportedType(t *testing.T) {
	env := newTestEnv(t, "")

	resp := multipartUpload(t, env.srv.URL, "virus.exe", "application/x-msdownload", []byte("MZ"), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["error"] != types.CodeUnsupportedType {
		t.Errorf("error = %v, want UNSUPPORTED_TYPE", body["error"])
	}
	if body["message"] == "" {
		t.Error("400 response has no message")
	}
}

func TestUploadBodyTooLarge(t *testing.T) {
	// WHAT: A body over the MaxBytesReader cap reports the size limit, not a
	// misleading missing-field error.
	cfg := config.Load()
	cfg.TempDir = t.TempDir()
	cfg.MaxPDFBytes = 1024
	log := slog.New(slog.DiscardHandler)
	pipe, err := pipeline.New(pipeline.Deps{
		Config: cfg, Logger: log,
		PageCount: func(path string) (int, error) { return 1, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	s := New(cfg, log, pipe, nil, analysis.NewService(log))
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	// 2MB body clears the 1KB PDF cap plus the multipart overhead allowance.
	resp := multipartUpload(t, ts.URL, "big.pdf", "application/pdf", bytes.Repeat([]byte("x"), 2<<20), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["error"] != types.CodeFileTooLarge {
		t.Errorf("error = %v, want FILE_TOO_LARGE", body["error"])
	}
	if msg, _ := body["message"].(string); strings.Contains(msg, "file field is required") {
		t.Errorf("oversized body reported as missing field: %q", msg)
	}
}

func TestUploadMissingFileField(t *testing.T) {
	env := newTestEnv(t, "")
	resp, err := http.Post(env.srv.URL+"/upload", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	resp, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, "")
	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if _, ok := body["goroutines"]; !ok {
		t.Errorf("metrics missing goroutines: %v", body)
	}
}

func TestLibraryCRUD(t *testing.T) {
	env := newTestEnv(t, "")

	save := types.ExtractionResult{
		Content:          "stored text",
		Filename:         "deed.pdf",
		Type:             "application/pdf",
		ProcessingMethod: types.MethodPDFToText,
		FileSize:         42,
	}
	payload, _ := json.Marshal(save)

	resp, err := http.Post(env.srv.URL+"/library/sources", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save status = %d, want 201", resp.StatusCode)
	}
	var saved library.Source
	decodeBody(t, resp, &saved)
	if saved.ID == "" {
		t.Fatal("saved source has no id")
	}

	resp, err = http.Get(env.srv.URL + "/library/sources/" + saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	var got library.Source
	decodeBody(t, resp, &got)
	if got.Filename != "deed.pdf" {
		t.Errorf("get filename = %q", got.Filename)
	}

	resp, err = http.Get(env.srv.URL + "/library/sources")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Sources []library.Source `json:"sources"`
	}
	decodeBody(t, resp, &list)
	if len(list.Sources) != 1 {
		t.Errorf("listed %d sources, want 1", len(list.Sources))
	}

	req, _ := http.NewRequest(http.MethodDelete, env.srv.URL+"/library/sources/"+saved.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}

	resp, err = http.Get(env.srv.URL + "/library/sources/" + saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestLibrarySaveValidation(t *testing.T) {
	env := newTestEnv(t, "")
	resp, err := http.Post(env.srv.URL+"/library/sources", "application/json", strings.NewReader(`{"content":""}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	resp, err := http.Post(env.srv.URL+"/analyze", "application/json",
		strings.NewReader(`{"content":"A letter about grain prices."}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var res analysis.Result
	decodeBody(t, resp, &res)
	if !res.Parsed || res.Summary != "s." {
		t.Errorf("result = %+v", res)
	}
}

func TestAnalyzeRequiresContent(t *testing.T) {
	env := newTestEnv(t, "")
	resp, err := http.Post(env.srv.URL+"/analyze", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAnalyzeBySourceID(t *testing.T) {
	env := newTestEnv(t, "")

	src, err := env.lib.Save(context.Background(), types.ExtractionResult{
		Content: "stored document text", Filename: "x.pdf",
		Type: "application/pdf", ProcessingMethod: types.MethodPDFToText,
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(env.srv.URL+"/analyze", "application/json",
		strings.NewReader(fmt.Sprintf(`{"sourceId":%q}`, src.ID)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAnalyzeUnavailable(t *testing.T) {
	cfg := config.Load()
	cfg.TempDir = t.TempDir()
	log := slog.New(slog.DiscardHandler)
	pipe, err := pipeline.New(pipeline.Deps{
		Config: cfg, Logger: log,
		PageCount: func(path string) (int, error) { return 0, errors.New("n/a") },
	})
	if err != nil {
		t.Fatal(err)
	}
	s := New(cfg, log, pipe, nil, analysis.NewService(log))
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/analyze", "application/json", strings.NewReader(`{"content":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}

	// Library endpoints are also disabled without a store.
	resp, err = http.Get(ts.URL + "/library/sources")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("library status = %d, want 503", resp.StatusCode)
	}
}
