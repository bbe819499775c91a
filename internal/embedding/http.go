package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint. Vectors are
// L2-normalized on receipt so inner product equals cosine similarity.
// Responses are cached by text with a TTL, so re-embedding the same query is free.
type HTTPEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	maxRetries int
	client     *http.Client
	cache      *gocache.Cache
}

// NewHTTPEmbedder creates an embedder from config. The API key is read from
// the environment variable named by cfg.APIKeyEnv and must be set.
func NewHTTPEmbedder(cfg config.EmbeddingConfig) (*HTTPEmbedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	ttl := time.Duration(cfg.CacheTTLSecs) * time.Second
	return &HTTPEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		cache:      gocache.New(ttl, 2*ttl),
	}, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama-native shape fallback.
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding for a single text, using the cache when warm.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached.([]float32), nil
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one request. Any failure fails the whole
// batch; callers must not commit partial results.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, &RequestError{Err: err}
	}

	var out embeddingResponse
	if err := e.postWithRetry(ctx, e.baseURL+"/embeddings", body, &out); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	switch {
	case len(out.Data) == len(texts):
		for _, d := range out.Data {
			if d.Index < 0 || d.Index >= len(texts) {
				return nil, &RequestError{Err: fmt.Errorf("embedding index %d out of range", d.Index)}
			}
			vectors[d.Index] = d.Embedding
		}
	case len(texts) == 1 && len(out.Embedding) > 0:
		vectors[0] = out.Embedding
	default:
		return nil, &RequestError{Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Data))}
	}

	for i, v := range vectors {
		if len(v) == 0 {
			return nil, &RequestError{Err: fmt.Errorf("empty embedding at position %d", i)}
		}
		utils.NormalizeL2(v)
		e.cache.Set(texts[i], v, gocache.DefaultExpiration)
	}
	return vectors, nil
}

// postWithRetry posts body to url, retrying on 429/5xx and transport errors
// with exponential backoff. Context cancellation stops the retries.
func (e *HTTPEmbedder) postWithRetry(ctx context.Context, url string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &RequestError{Err: ctx.Err()}
			case <-time.After(backoff(attempt)):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return &RequestError{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return &RequestError{Err: ctx.Err()}
			}
			continue
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server returned %s", resp.Status)
			continue
		}
		if resp.StatusCode >= 300 {
			return &RequestError{Status: resp.StatusCode, Err: fmt.Errorf("server returned %s", resp.Status)}
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return &RequestError{Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	return &RequestError{Err: lastErr}
}

func backoff(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HTTPEmbedder.
func (e *HTTPEmbedder) Close() error {
	return nil
}
