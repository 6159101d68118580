package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// OllamaEmbedder requests embeddings from an Ollama-compatible HTTP endpoint
// (POST {base}/embeddings with {"model": ..., "prompt": ...}).
// Transient failures (connection errors, 429, 5xx) are retried with bounded
// exponential backoff; Retry-After is honored when present.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions atomic.Int32 // learned lazily; read by concurrent callers
	maxRetries int
	client     *http.Client
}

// Config configures an OllamaEmbedder.
type Config struct {
	BaseURL    string
	Model      string
	Dimensions int // 0 = learned from the first successful response
	Timeout    time.Duration
	MaxRetries int
}

// NewOllamaEmbedder creates an embedder client with the given configuration.
func NewOllamaEmbedder(cfg Config) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/api"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	e := &OllamaEmbedder{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
	e.dimensions.Store(int32(cfg.Dimensions))
	return e
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns an embedding vector for the given text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	url := e.baseURL + "/embeddings"

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < e.maxRetries {
				if waitErr := sleepCtx(ctx, retryDelay(attempt)); waitErr != nil {
					return nil, fmt.Errorf("embedding request failed: %w", err)
				}
				continue
			}
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, convErr := strconv.Atoi(ra); convErr == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("embedding service returned %s", resp.Status)
			if attempt < e.maxRetries {
				if waitErr := sleepCtx(ctx, delay); waitErr != nil {
					return nil, lastErr
				}
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(b))
		}

		var out embedResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode embedding response: %w", err)
		}
		if len(out.Embedding) == 0 {
			return nil, fmt.Errorf("embedding service returned no embedding")
		}
		e.dimensions.CompareAndSwap(0, int32(len(out.Embedding)))
		return out.Embedding, nil
	}
	return nil, lastErr
}

// Dimensions returns the embedding dimension (0 until the first successful Embed
// when not configured).
func (e *OllamaEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

// Close is a no-op for the HTTP client.
func (e *OllamaEmbedder) Close() error {
	return nil
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryDelay returns an exponential backoff delay for the given attempt, capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
