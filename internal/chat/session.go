// Package chat implements the retrieval-augmented chat session: retrieval
// over a built index, prompt assembly, completion, and the transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/fallback"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// ErrNotReady reports a question asked before any index was built.
var ErrNotReady = errors.New("no document index built yet")

// State is the session lifecycle state.
type State int

const (
	// StateNoIndex means no documents have been processed yet.
	StateNoIndex State = iota
	// StateIndexReady means an index is built and questions can be asked.
	StateIndexReady
	// StateAnswering means a question is in flight.
	StateAnswering
)

// String returns the state name for status reporting.
func (s State) String() string {
	switch s {
	case StateIndexReady:
		return "index_ready"
	case StateAnswering:
		return "answering"
	default:
		return "no_index"
	}
}

const systemPreamble = "You are a helpful assistant that answers questions " +
	"using only the provided document context. If the context does not " +
	"contain the answer, say so."

// Answer is the result of one successful Ask.
type Answer struct {
	Turn    models.Turn
	Sources []string
}

// Session holds the working chat state: the active project's indexes and
// transcript. All mutation goes through its methods; the store swaps whole
// sessions at project-switch boundaries.
type Session struct {
	mu    sync.RWMutex
	askMu sync.Mutex // one question in flight at a time

	state      State
	index      *vector.Index
	keywords   *keyword.ChunkIndex
	transcript models.Transcript
	noteStyle  bool

	provider  llm.Provider
	responder *fallback.Responder

	topK            int
	maxContextChars int
	fallbackOnly    bool
	logger          *zap.Logger // optional
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates an empty session in StateNoIndex.
func NewSession(provider llm.Provider, cfg *config.ChatConfig, opts ...Option) *Session {
	s := &Session{
		state:           StateNoIndex,
		provider:        provider,
		responder:       fallback.NewResponder(),
		topK:            cfg.TopK,
		maxContextChars: cfg.MaxContextChars,
		fallbackOnly:    cfg.FallbackOnly,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetIndexes installs freshly built indexes and moves to StateIndexReady.
// The previous keyword index, if any, is closed.
func (s *Session) SetIndexes(ix *vector.Index, kw *keyword.ChunkIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keywords != nil && s.keywords != kw {
		_ = s.keywords.Close()
	}
	s.index = ix
	s.keywords = kw
	if ix != nil {
		s.state = StateIndexReady
	} else {
		s.state = StateNoIndex
	}
}

// Restore installs a previously saved project state without closing the
// outgoing keyword index, which stays owned by the store's snapshot.
func (s *Session) Restore(ix *vector.Index, kw *keyword.ChunkIndex, t models.Transcript, noteStyle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = ix
	s.keywords = kw
	s.transcript = t.Clone()
	s.noteStyle = noteStyle
	if ix != nil {
		s.state = StateIndexReady
	} else {
		s.state = StateNoIndex
	}
}

// Detach hands the session's state to the caller and empties the session.
// The caller becomes responsible for closing the keyword index.
func (s *Session) Detach() (*vector.Index, *keyword.ChunkIndex, models.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, kw, t := s.index, s.keywords, s.transcript
	s.index = nil
	s.keywords = nil
	s.transcript = nil
	s.noteStyle = false
	s.state = StateNoIndex
	return ix, kw, t
}

// Indexes returns the current indexes, nil when none are built.
func (s *Session) Indexes() (*vector.Index, *keyword.ChunkIndex) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index, s.keywords
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transcript returns a copy of the transcript in chronological order.
func (s *Session) Transcript() models.Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript.Clone()
}

// SetTranscript replaces the transcript, used when restoring a project.
func (s *Session) SetTranscript(t models.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = t.Clone()
}

// SetNoteStyle toggles note-style rendering of assistant answers.
func (s *Session) SetNoteStyle(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noteStyle = enabled
}

// NoteStyle reports whether note-style rendering is enabled.
func (s *Session) NoteStyle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.noteStyle
}

// ClearTranscript drops the conversation history but keeps the indexes.
func (s *Session) ClearTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
}

// Reset drops indexes and transcript, returning to StateNoIndex.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keywords != nil {
		_ = s.keywords.Close()
	}
	s.index = nil
	s.keywords = nil
	s.transcript = nil
	s.noteStyle = false
	s.state = StateNoIndex
}

// Ask answers a question against the built index. On success both the user
// and assistant turns are appended to the transcript; on any failure the
// transcript and state are left untouched so the caller can retry.
//
// With useFallback (or the session configured fallback-only), the completion
// provider is bypassed: the best keyword-matched chunk (or empty context)
// feeds the deterministic responder. Fallback works even in StateNoIndex.
func (s *Session) Ask(ctx context.Context, question string, useFallback bool) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("empty question")
	}

	s.askMu.Lock()
	defer s.askMu.Unlock()

	useFallback = useFallback || s.fallbackOnly

	s.mu.Lock()
	if s.index == nil && !useFallback {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	prior := s.transcript.Clone()
	ix, kw := s.index, s.keywords
	noteStyle := s.noteStyle
	s.state = StateAnswering
	s.mu.Unlock()

	var (
		text    string
		sources []string
		err     error
	)
	if useFallback {
		text, sources = s.fallbackAnswer(ctx, question, kw)
	} else {
		text, sources, err = s.generate(ctx, question, prior, ix)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		s.state = StateIndexReady
	} else {
		s.state = StateNoIndex
	}
	if err != nil {
		return nil, err
	}
	if noteStyle {
		text = renderNote(question, text)
	}

	now := time.Now().UTC()
	userTurn := models.Turn{Role: models.RoleUser, Text: question, CreatedAt: now}
	assistantTurn := models.Turn{Role: models.RoleAssistant, Text: text, CreatedAt: now}
	s.transcript = append(s.transcript, userTurn, assistantTurn)

	return &Answer{Turn: assistantTurn, Sources: sources}, nil
}

// generate retrieves top-k chunks and calls the completion provider.
func (s *Session) generate(ctx context.Context, question string, prior models.Transcript, ix *vector.Index) (string, []string, error) {
	results, err := ix.Query(ctx, question, s.topK)
	if err != nil {
		return "", nil, fmt.Errorf("retrieve context: %w", err)
	}

	var b strings.Builder
	sources := make([]string, 0, len(results))
	for _, r := range results {
		if b.Len() > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(r.Chunk.Text)
		sources = append(sources, utils.Truncate(r.Chunk.Text, 80))
	}
	contextText := b.String()
	if s.maxContextChars > 0 {
		contextText = utils.Truncate(contextText, s.maxContextChars)
	}

	history := make([]llm.Message, 0, len(prior)+2)
	history = append(history, llm.Message{
		Role:    "system",
		Content: systemPreamble + "\n\nContext:\n" + contextText,
	})
	for _, turn := range prior {
		history = append(history, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	history = append(history, llm.Message{Role: models.RoleUser, Content: question})

	if s.logger != nil {
		s.logger.Debug("asking completion provider",
			zap.Int("context_chunks", len(results)),
			zap.Int("history_turns", len(prior)),
		)
	}
	reply, err := s.provider.Chat(ctx, history)
	if err != nil {
		return "", nil, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", nil, &llm.RequestError{Err: errors.New("empty completion")}
	}
	return reply, sources, nil
}

// fallbackAnswer picks the best lexical chunk as context and runs the
// deterministic responder. It never fails; a search error just means empty
// context.
func (s *Session) fallbackAnswer(ctx context.Context, question string, kw *keyword.ChunkIndex) (string, []string) {
	var contextText string
	var sources []string
	if kw != nil {
		hits, err := kw.Search(ctx, question, 1)
		if err == nil && len(hits) > 0 {
			contextText = hits[0].Chunk.Text
			sources = []string{utils.Truncate(contextText, 80)}
		} else if err != nil && s.logger != nil {
			s.logger.Debug("fallback chunk search failed", zap.Error(err))
		}
	}
	return s.responder.Respond(question, contextText), sources
}

// renderNote formats an answer as a structured note.
func renderNote(question, answer string) string {
	var b strings.Builder
	b.WriteString("## ")
	b.WriteString(question)
	b.WriteString("\n\n")
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
