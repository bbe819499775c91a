package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
)

var testChunks = []models.Chunk{
	{ID: "c1", DocumentID: "d", Text: "Photosynthesis converts light into chemical energy.", Index: 0},
	{ID: "c2", DocumentID: "d", Text: "The water cycle moves water through the atmosphere.", Index: 1},
	{ID: "c3", DocumentID: "d", Text: "Newton's laws describe force and motion.", Index: 2},
}

func readySession(t *testing.T, provider llm.Provider) *Session {
	t.Helper()
	emb := embedding.NewMockEmbedder(8)
	ix, err := vector.Build(context.Background(), emb, testChunks)
	if err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.BuildChunkIndex(testChunks)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })

	s := NewSession(provider, &config.ChatConfig{TopK: 2, MaxContextChars: 4000})
	s.SetIndexes(ix, kw)
	return s
}

func TestAskNotReady(t *testing.T) {
	provider := &llm.MockProvider{Reply: "never"}
	s := NewSession(provider, &config.ChatConfig{TopK: 2})

	_, err := s.Ask(context.Background(), "anything?", false)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("got %v, want ErrNotReady", err)
	}
	if len(provider.History) != 0 {
		t.Error("provider must not be invoked without an index")
	}
	if got := s.Transcript(); len(got) != 0 {
		t.Errorf("transcript has %d turns", len(got))
	}
}

func TestAskAppendsTurnPair(t *testing.T) {
	provider := &llm.MockProvider{Reply: "Light becomes chemical energy."}
	s := readySession(t, provider)

	ans, err := s.Ask(context.Background(), "What is photosynthesis?", false)
	if err != nil {
		t.Fatal(err)
	}
	if ans.Turn.Role != models.RoleAssistant || ans.Turn.Text != "Light becomes chemical energy." {
		t.Errorf("answer turn %+v", ans.Turn)
	}
	if len(ans.Sources) == 0 {
		t.Error("expected retrieval sources")
	}

	got := s.Transcript()
	if len(got) != 2 {
		t.Fatalf("transcript has %d turns", len(got))
	}
	if got[0].Role != models.RoleUser || got[0].Text != "What is photosynthesis?" {
		t.Errorf("user turn %+v", got[0])
	}
	if got[1].Role != models.RoleAssistant {
		t.Errorf("assistant turn %+v", got[1])
	}
	if s.State() != StateIndexReady {
		t.Errorf("state %v", s.State())
	}
}

func TestAskPromptIncludesContextAndHistory(t *testing.T) {
	provider := &llm.MockProvider{Reply: "first"}
	s := readySession(t, provider)

	if _, err := s.Ask(context.Background(), "question one", false); err != nil {
		t.Fatal(err)
	}
	provider.Reply = "second"
	if _, err := s.Ask(context.Background(), "question two", false); err != nil {
		t.Fatal(err)
	}

	if len(provider.History) != 2 {
		t.Fatalf("%d provider calls", len(provider.History))
	}
	second := provider.History[1]
	if second[0].Role != "system" || !strings.Contains(second[0].Content, "Context:") {
		t.Errorf("system message %+v", second[0])
	}
	// Prior turn pair plus the new question follow the system message.
	if len(second) != 4 {
		t.Fatalf("history length %d", len(second))
	}
	if second[1].Content != "question one" || second[2].Content != "first" || second[3].Content != "question two" {
		t.Errorf("history %+v", second[1:])
	}
}

func TestAskFailureLeavesTranscriptUntouched(t *testing.T) {
	provider := &llm.MockProvider{Reply: "ok"}
	s := readySession(t, provider)

	if _, err := s.Ask(context.Background(), "first question", false); err != nil {
		t.Fatal(err)
	}
	before := s.Transcript()

	provider.Err = &llm.RequestError{Status: 502, Err: errors.New("upstream down")}
	_, err := s.Ask(context.Background(), "second question", false)
	if err == nil {
		t.Fatal("expected completion failure")
	}

	after := s.Transcript()
	if len(after) != len(before) {
		t.Errorf("transcript grew from %d to %d turns on failure", len(before), len(after))
	}
	if s.State() != StateIndexReady {
		t.Errorf("state %v after failure", s.State())
	}
}

func TestAskFallbackMode(t *testing.T) {
	provider := &llm.MockProvider{Reply: "never"}
	s := readySession(t, provider)

	ans, err := s.Ask(context.Background(), "What is photosynthesis?", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(provider.History) != 0 {
		t.Error("fallback mode must not call the provider")
	}
	if !strings.Contains(strings.ToLower(ans.Turn.Text), "photosynthesis") {
		t.Errorf("answer %q", ans.Turn.Text)
	}
	if len(s.Transcript()) != 2 {
		t.Errorf("transcript has %d turns", len(s.Transcript()))
	}

	// Deterministic on every call.
	again, err := s.Ask(context.Background(), "What is photosynthesis?", true)
	if err != nil {
		t.Fatal(err)
	}
	if again.Turn.Text != ans.Turn.Text {
		t.Errorf("%q != %q", again.Turn.Text, ans.Turn.Text)
	}
}

func TestAskFallbackWithoutIndex(t *testing.T) {
	provider := &llm.MockProvider{}
	s := NewSession(provider, &config.ChatConfig{TopK: 2})

	ans, err := s.Ask(context.Background(), "completely unknown topic", true)
	if err != nil {
		t.Fatal(err)
	}
	if ans.Turn.Text == "" {
		t.Error("fallback must always answer")
	}
	if s.State() != StateNoIndex {
		t.Errorf("state %v", s.State())
	}
}

func TestAskFallbackOnlyConfig(t *testing.T) {
	provider := &llm.MockProvider{Reply: "never"}
	emb := embedding.NewMockEmbedder(8)
	ix, err := vector.Build(context.Background(), emb, testChunks)
	if err != nil {
		t.Fatal(err)
	}
	kw, _ := keyword.BuildChunkIndex(testChunks)
	t.Cleanup(func() { _ = kw.Close() })

	s := NewSession(provider, &config.ChatConfig{TopK: 2, FallbackOnly: true})
	s.SetIndexes(ix, kw)

	if _, err := s.Ask(context.Background(), "anything", false); err != nil {
		t.Fatal(err)
	}
	if len(provider.History) != 0 {
		t.Error("fallback-only session called the provider")
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	s := readySession(t, &llm.MockProvider{Reply: "x"})
	if _, err := s.Ask(context.Background(), "   ", false); err == nil {
		t.Fatal("expected error for empty question")
	}
}

func TestNoteStyleRendering(t *testing.T) {
	provider := &llm.MockProvider{Reply: "Plants absorb light.\nThey produce oxygen."}
	s := readySession(t, provider)
	s.SetNoteStyle(true)

	ans, err := s.Ask(context.Background(), "How do plants work?", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ans.Turn.Text, "## How do plants work?") {
		t.Errorf("note heading missing: %q", ans.Turn.Text)
	}
	if !strings.Contains(ans.Turn.Text, "- Plants absorb light.") {
		t.Errorf("note bullets missing: %q", ans.Turn.Text)
	}
}

func TestClearTranscriptKeepsIndex(t *testing.T) {
	s := readySession(t, &llm.MockProvider{Reply: "ok"})
	if _, err := s.Ask(context.Background(), "a question", false); err != nil {
		t.Fatal(err)
	}
	s.ClearTranscript()
	if len(s.Transcript()) != 0 {
		t.Error("transcript not cleared")
	}
	if s.State() != StateIndexReady {
		t.Errorf("state %v, index should survive a transcript clear", s.State())
	}
}

func TestReset(t *testing.T) {
	s := readySession(t, &llm.MockProvider{Reply: "ok"})
	if _, err := s.Ask(context.Background(), "a question", false); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	if s.State() != StateNoIndex {
		t.Errorf("state %v", s.State())
	}
	if len(s.Transcript()) != 0 {
		t.Error("transcript survived reset")
	}
	if _, err := s.Ask(context.Background(), "again?", false); !errors.Is(err, ErrNotReady) {
		t.Errorf("got %v, want ErrNotReady", err)
	}
}
