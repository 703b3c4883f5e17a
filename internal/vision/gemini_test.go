package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiStub(t *testing.T, text string, inspect func(body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if inspect != nil {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode request body: %v", err)
			}
			inspect(body)
		}
		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": text}},
				},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestNewGeminiClientValidation(t *testing.T) {
	if _, err := NewGeminiClient("", "gemini-2.0-flash"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := NewGeminiClient("key", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestGeminiExtractDocument(t *testing.T) {
	var sawInline, sawPrompt bool
	srv := geminiStub(t, "  extracted document text  ", func(body map[string]any) {
		raw, _ := json.Marshal(body)
		s := string(raw)
		sawInline = strings.Contains(s, "inline_data") && strings.Contains(s, "application/pdf")
		sawPrompt = strings.Contains(s, "Extract all text")
	})
	defer srv.Close()

	c, err := NewGeminiClient("test-key", "gemini-2.0-flash", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.ExtractDocument(context.Background(), []byte("%PDF-1.4 fake"), "application/pdf")
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}
	if got != "extracted document text" {
		t.Errorf("content = %q, want trimmed stub text", got)
	}
	if !sawInline {
		t.Error("request did not carry inline document bytes")
	}
	if !sawPrompt {
		t.Error("request did not carry the extraction prompt")
	}
}

func TestGeminiGenerateTextSystemInstruction(t *testing.T) {
	var sawSystem bool
	srv := geminiStub(t, "done", func(body map[string]any) {
		_, sawSystem = body["system_instruction"]
	})
	defer srv.Close()

	c, _ := NewGeminiClient("test-key", "gemini-2.0-flash", WithBaseURL(srv.URL))
	if _, err := c.GenerateText(context.Background(), "you are terse", "hello"); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if !sawSystem {
		t.Error("system instruction missing from request")
	}
}

func TestGeminiAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c, _ := NewGeminiClient("test-key", "gemini-2.0-flash", WithBaseURL(srv.URL))
	if _, err := c.GenerateText(context.Background(), "", "hello"); err == nil {
		t.Error("expected error on 429 response")
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c, _ := NewGeminiClient("test-key", "gemini-2.0-flash", WithBaseURL(srv.URL))
	if _, err := c.GenerateText(context.Background(), "", "hello"); err == nil {
		t.Error("expected error on empty candidates")
	}
}

func TestWithBaseURLRejectsInvalid(t *testing.T) {
	c, _ := NewGeminiClient("key", "m", WithBaseURL("not a url"), WithBaseURL("ftp://x"))
	if c.baseURL != geminiBaseURL {
		t.Errorf("invalid base URL accepted: %q", c.baseURL)
	}
}
