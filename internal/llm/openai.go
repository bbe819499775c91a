package llm

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

	"github.com/hyperjump/kaiwa/internal/config"
)

// OpenAIProvider calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxRetries  int
	client      *http.Client
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider from config. The API key is read from
// the environment variable named by cfg.APIKeyEnv and must be set.
func NewOpenAIProvider(cfg config.LLMConfig) (*OpenAIProvider, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	return &OpenAIProvider{
		baseURL:     cfg.BaseURL,
		apiKey:      key,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Chat sends the history to the completion endpoint and returns the reply.
func (p *OpenAIProvider) Chat(ctx context.Context, history []Message, opts ...Option) (string, error) {
	options := &Options{Temperature: p.temperature, Model: p.model}
	for _, opt := range opts {
		opt(options)
	}

	messages := make([]chatMessage, len(history))
	for i, m := range history {
		messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	body, err := json.Marshal(chatRequest{
		Model:       options.Model,
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	})
	if err != nil {
		return "", &RequestError{Err: err}
	}

	var out chatResponse
	if err := p.postWithRetry(ctx, p.baseURL+"/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &RequestError{Err: errors.New("response contains no choices")}
	}
	return out.Choices[0].Message.Content, nil
}

// postWithRetry posts body to url, retrying on 429/5xx and transport errors
// with exponential backoff. Context cancellation stops the retries.
func (p *OpenAIProvider) postWithRetry(ctx context.Context, url string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
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
		req.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.client.Do(req)
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
