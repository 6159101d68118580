package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/oshiete/internal/config"
	"github.com/hyperjump/oshiete/internal/embedding"
	"github.com/hyperjump/oshiete/internal/extract"
	"github.com/hyperjump/oshiete/internal/kb"
	"github.com/hyperjump/oshiete/internal/store"
	"go.uber.org/zap"
)

type staticAnswerer struct {
	answer string
}

func (a staticAnswerer) Answer(ctx context.Context, prompt string) (string, error) {
	return a.answer, nil
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	knowledge := kb.Open(st, embedding.NewMockEmbedder(8), extract.NewExtractor(),
		kb.WithAnswerService(staticAnswerer{answer: "forty-two"}))
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	srv := NewServer(knowledge, cfg, zap.NewNop())
	return srv, srv.routes()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleSync(t *testing.T) {
	_, h := newTestServer(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0600); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sync", map[string]interface{}{"root": dir})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var report struct {
		Added int `json:"added"`
	}
	decodeBody(t, rec, &report)
	if report.Added != 1 {
		t.Errorf("added = %d, want 1", report.Added)
	}
}

func TestHandleSync_missingRoot(t *testing.T) {
	_, h := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/sync", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	srv, h := newTestServer(t)
	if _, err := srv.kb.AddDocument(context.Background(), "go is a language"); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/search", map[string]interface{}{
		"query": "go is a language",
		"top_k": 1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Results []struct {
			Identity string  `json:"identity"`
			Score    float64 `json:"score"`
		} `json:"results"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	if resp.Results[0].Score < 0.999 {
		t.Errorf("score = %f, want ~1 for identical text", resp.Results[0].Score)
	}
}

func TestHandleSearch_emptyQuery(t *testing.T) {
	_, h := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/search", map[string]interface{}{"query": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleAsk(t *testing.T) {
	_, h := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/ask", map[string]interface{}{
		"question": "what is the answer?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["answer"] != "forty-two" {
		t.Errorf("answer = %q, want %q", resp["answer"], "forty-two")
	}
}

func TestHandleAddDocument(t *testing.T) {
	srv, h := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/documents", map[string]interface{}{
		"content": "a standalone note",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["identity"] == "" {
		t.Error("missing identity in response")
	}
	if srv.kb.Len() != 1 {
		t.Errorf("Len = %d, want 1", srv.kb.Len())
	}
}

func TestHandleReset(t *testing.T) {
	srv, h := newTestServer(t)
	if _, err := srv.kb.AddDocument(context.Background(), "temp"); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, h, http.MethodPost, "/api/v1/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if srv.kb.Len() != 0 {
		t.Errorf("Len = %d, want 0 after reset", srv.kb.Len())
	}
}

func TestHandleStatus(t *testing.T) {
	srv, h := newTestServer(t)
	if _, err := srv.kb.AddDocument(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Documents  int `json:"documents"`
		Dimensions int `json:"dimensions"`
	}
	decodeBody(t, rec, &resp)
	if resp.Documents != 1 {
		t.Errorf("documents = %d, want 1", resp.Documents)
	}
	if resp.Dimensions != 8 {
		t.Errorf("dimensions = %d, want 8", resp.Dimensions)
	}
}
