package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/kaiwa/internal/config"
)

func testProvider(t *testing.T, url string, retries int) *OpenAIProvider {
	t.Helper()
	t.Setenv("TEST_LLM_KEY", "secret")
	p, err := NewOpenAIProvider(config.LLMConfig{
		BaseURL:        url,
		APIKeyEnv:      "TEST_LLM_KEY",
		Model:          "test-model",
		Temperature:    0.2,
		TimeoutSeconds: 5,
		MaxRetries:     retries,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
		})
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, 0)
	reply, err := p.Chat(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "hello there" {
		t.Errorf("reply %q", reply)
	}
	if got.Model != "test-model" || got.Temperature != 0.2 {
		t.Errorf("request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("messages %+v", got.Messages)
	}
}

func TestChatOptions(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, 0)
	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}},
		WithModel("other"), WithTemperature(0.9), WithMaxTokens(64))
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "other" || got.Temperature != 0.9 || got.MaxTokens != 64 {
		t.Errorf("request %+v", got)
	}
}

func TestChatRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "recovered"}},
			},
		})
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, 3)
	reply, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "recovered" || calls != 3 {
		t.Errorf("reply %q after %d calls", reply, calls)
	}
}

func TestChatNoRetryOnClientError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, 3)
	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("got %v", err)
	}
	if reqErr.Status != http.StatusBadRequest {
		t.Errorf("Status=%d", reqErr.Status)
	}
	if calls != 1 {
		t.Errorf("client error retried %d times", calls)
	}
}

func TestChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, 0)
	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestNewProviderMissingKey(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "")
	_, err := NewOpenAIProvider(config.LLMConfig{APIKeyEnv: "TEST_LLM_KEY"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}
