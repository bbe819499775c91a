// Package project manages isolated workspaces: each project owns its
// documents, retrieval indexes, and transcript, and exactly one project is
// active at a time.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/fileid"
	"github.com/hyperjump/kaiwa/internal/ingest"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
)

// ErrNotFound reports an operation on an unknown project id. Unknown ids are
// surfaced, never silently ignored.
var ErrNotFound = errors.New("project not found")

// ErrNoActiveProject reports a document or chat operation with no active
// project selected.
var ErrNoActiveProject = errors.New("no active project")

// snapshot is the saved in-memory state of an inactive project. Transcripts
// live in storage; indexes are parked here across switches and, when an
// index directory is configured, also written to disk at build time.
type snapshot struct {
	index    *vector.Index
	keywords *keyword.ChunkIndex
}

// Store owns all projects and the single working chat session. Every
// operation that touches session or snapshot state runs under one mutex, so
// a switch can never interleave with an upload or an ask.
type Store struct {
	mu        sync.Mutex
	storage   storage.Storage
	processor *ingest.Processor
	session   *chat.Session
	embedder  embedding.Embedder
	cfg       *config.ChatConfig
	indexDir  string      // empty disables on-disk index snapshots
	logger    *zap.Logger // optional

	activeID  string
	snapshots map[string]*snapshot
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIndexDir enables on-disk vector index snapshots under dir, so a
// project's index survives a restart without reprocessing.
func WithIndexDir(dir string) Option {
	return func(s *Store) { s.indexDir = dir }
}

// NewStore creates a store over the given persistence and collaborators.
// The working session starts empty; no project is active.
func NewStore(st storage.Storage, provider llm.Provider, embedder embedding.Embedder, cfg *config.ChatConfig, opts ...Option) *Store {
	s := &Store{
		storage:   st,
		embedder:  embedder,
		cfg:       cfg,
		snapshots: make(map[string]*snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	var sessionOpts []chat.Option
	var procOpts []ingest.ProcessorOption
	if s.logger != nil {
		sessionOpts = append(sessionOpts, chat.WithLogger(s.logger))
		procOpts = append(procOpts, ingest.WithLogger(s.logger))
	}
	s.session = chat.NewSession(provider, cfg, sessionOpts...)
	s.processor = ingest.NewProcessor(embedder, cfg, procOpts...)
	return s
}

// Session returns the working chat session.
func (s *Store) Session() *chat.Session {
	return s.session
}

// ActiveID returns the active project id, empty when none is active.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Create adds a new project. It does not activate it.
func (s *Store) Create(ctx context.Context, name, icon, description string) (*models.Project, error) {
	if name == "" {
		return nil, errors.New("project name required")
	}
	p := &models.Project{
		ID:          uuid.New().String(),
		Name:        name,
		Icon:        icon,
		Description: description,
	}
	if err := s.storage.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("project created", zap.String("id", p.ID), zap.String("name", name))
	}
	return p, nil
}

// Get returns a project by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Project, error) {
	p, err := s.storage.GetProject(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

// List returns all projects with document/turn counts and the active flag.
func (s *Store) List(ctx context.Context) ([]models.ProjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	projects, err := s.storage.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	infos := make([]models.ProjectInfo, 0, len(projects))
	for _, p := range projects {
		files, err := s.storage.CountFiles(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		var turns int
		if p.ID == s.activeID {
			turns = len(s.session.Transcript())
		} else {
			t, err := s.storage.GetTranscript(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			turns = len(t)
		}
		infos = append(infos, models.ProjectInfo{
			ID:            p.ID,
			Name:          p.Name,
			Icon:          p.Icon,
			Description:   p.Description,
			DocumentCount: files,
			TurnCount:     turns,
			Active:        p.ID == s.activeID,
			CreatedAt:     p.CreatedAt,
		})
	}
	return infos, nil
}

// SetActive switches the working session to another project: the current
// session state is saved into the outgoing project first, then the target's
// saved state is restored. Switching to the already-active project is a
// no-op.
func (s *Store) SetActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.activeID {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.parkActive(ctx); err != nil {
		return err
	}

	transcript, err := s.storage.GetTranscript(ctx, id)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	noteStyle, err := s.storage.GetNoteStyle(ctx, id)
	if err != nil {
		return fmt.Errorf("load note-style record: %w", err)
	}

	snap := s.snapshots[id]
	delete(s.snapshots, id)
	if snap == nil {
		snap = s.loadIndexSnapshot(id)
	}
	if snap == nil {
		snap = &snapshot{}
	}
	s.session.Restore(snap.index, snap.keywords, transcript, noteStyle.Initialized)
	s.activeID = id

	if s.logger != nil {
		s.logger.Info("project activated", zap.String("id", id))
	}
	return nil
}

// parkActive saves the working session into the currently active project's
// storage and snapshot. No-op when nothing is active.
func (s *Store) parkActive(ctx context.Context) error {
	if s.activeID == "" {
		s.session.Reset()
		return nil
	}
	noteStyle := s.session.NoteStyle()
	ix, kw, transcript := s.session.Detach()
	if err := s.storage.SaveTranscript(ctx, s.activeID, transcript); err != nil {
		// Put the state back so a failed switch does not lose the session.
		s.session.Restore(ix, kw, transcript, noteStyle)
		return fmt.Errorf("save transcript: %w", err)
	}
	s.snapshots[s.activeID] = &snapshot{index: ix, keywords: kw}
	return nil
}

// Delete removes a project entirely. Deleting the active project resets the
// working session to empty with no active project.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.DeleteProject(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	s.dropSnapshot(id)
	s.removeIndexSnapshot(id)
	if id == s.activeID {
		s.session.Reset()
		s.activeID = ""
	}
	return nil
}

// ClearData resets a project's documents, transcript, and index without
// deleting the project. When it is the active project, the working session
// mirrors the reset immediately.
func (s *Store) ClearData(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.storage.ClearProjectData(ctx, id); err != nil {
		return fmt.Errorf("clear project data: %w", err)
	}
	s.dropSnapshot(id)
	s.removeIndexSnapshot(id)
	if id == s.activeID {
		s.session.Reset()
		// Note-style setup survives a data clear.
		noteStyle, err := s.storage.GetNoteStyle(ctx, id)
		if err != nil {
			return err
		}
		s.session.SetNoteStyle(noteStyle.Initialized)
	}
	return nil
}

func (s *Store) dropSnapshot(id string) {
	if snap, ok := s.snapshots[id]; ok {
		if snap.keywords != nil {
			_ = snap.keywords.Close()
		}
		delete(s.snapshots, id)
	}
}

// indexSnapshotPath returns the on-disk location of a project's vector
// index, empty when disk snapshots are disabled.
func (s *Store) indexSnapshotPath(id string) string {
	if s.indexDir == "" {
		return ""
	}
	return filepath.Join(s.indexDir, id+".vec")
}

// persistIndex writes the project's vector index to disk. A write failure
// only costs a reprocess after the next restart, so it is logged, not
// propagated.
func (s *Store) persistIndex(id string, ix *vector.Index) {
	path := s.indexSnapshotPath(id)
	if path == "" || ix == nil {
		return
	}
	if err := ix.Save(path); err != nil && s.logger != nil {
		s.logger.Warn("index snapshot write failed", zap.String("id", id), zap.Error(err))
	}
}

// loadIndexSnapshot restores a project's indexes from disk, rebuilding the
// keyword index from the loaded chunks. Returns nil when there is no usable
// snapshot.
func (s *Store) loadIndexSnapshot(id string) *snapshot {
	path := s.indexSnapshotPath(id)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	ix, err := vector.Load(path, s.embedder)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("index snapshot load failed", zap.String("id", id), zap.Error(err))
		}
		return nil
	}
	kw, err := keyword.BuildChunkIndex(ix.Chunks())
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("keyword rebuild from snapshot failed", zap.String("id", id), zap.Error(err))
		}
		return &snapshot{index: ix}
	}
	return &snapshot{index: ix, keywords: kw}
}

func (s *Store) removeIndexSnapshot(id string) {
	if path := s.indexSnapshotPath(id); path != "" {
		_ = os.Remove(path)
	}
}

// ProcessDocuments adds files to the active project and rebuilds its indexes
// from the full document set, stored files plus the new ones. Files whose
// name and bytes match an already-stored document are ignored. Nothing is
// persisted when the pipeline fails.
func (s *Store) ProcessDocuments(ctx context.Context, files []models.DocumentFile) (*ingest.BuildResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return nil, ErrNoActiveProject
	}
	existing, err := s.storage.GetFiles(ctx, s.activeID)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	stored := make(map[string]bool, len(existing))
	for _, f := range existing {
		stored[fileid.ContentID(f.Name, f.Content)] = true
	}
	fresh := make([]models.DocumentFile, 0, len(files))
	for _, f := range files {
		if id := fileid.ContentID(f.Name, f.Content); !stored[id] {
			stored[id] = true
			fresh = append(fresh, f)
		}
	}

	result, err := s.processor.Process(ctx, append(existing, fresh...))
	if err != nil {
		return nil, err
	}
	if err := s.storage.AddFiles(ctx, s.activeID, fresh); err != nil {
		return nil, fmt.Errorf("persist files: %w", err)
	}
	s.session.SetIndexes(result.Index, result.Keyword)
	s.persistIndex(s.activeID, result.Index)
	return result, nil
}

// Reprocess rebuilds the active project's indexes from its stored files,
// used after a restart when indexes exist only in memory.
func (s *Store) Reprocess(ctx context.Context, id string) (*ingest.BuildResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	files, err := s.storage.GetFiles(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	result, err := s.processor.Process(ctx, files)
	if err != nil {
		return nil, err
	}
	if id == s.activeID {
		s.session.SetIndexes(result.Index, result.Keyword)
	} else {
		s.dropSnapshot(id)
		s.snapshots[id] = &snapshot{index: result.Index, keywords: result.Keyword}
	}
	s.persistIndex(id, result.Index)
	return result, nil
}

// Ask answers a question in the active project's session. The updated
// transcript is persisted after every answer so a crash between project
// switches cannot lose turns; a persistence failure does not fail the
// answer because the next park saves the transcript wholesale.
func (s *Store) Ask(ctx context.Context, question string, useFallback bool) (*chat.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return nil, ErrNoActiveProject
	}
	answer, err := s.session.Ask(ctx, question, useFallback)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SaveTranscript(ctx, s.activeID, s.session.Transcript()); err != nil && s.logger != nil {
		s.logger.Warn("transcript save failed", zap.String("id", s.activeID), zap.Error(err))
	}
	return answer, nil
}

// ClearTranscript empties the active project's transcript in the session
// and in storage.
func (s *Store) ClearTranscript(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return ErrNoActiveProject
	}
	s.session.ClearTranscript()
	if err := s.storage.SaveTranscript(ctx, s.activeID, nil); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	return nil
}
