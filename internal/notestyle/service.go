// Package notestyle manages per-project note-style setup: a persisted flag
// that switches assistant answers to structured note rendering.
package notestyle

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kaiwa/internal/fallback"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

// TemplateCount is the number of note templates installed by Setup, the
// size of the built-in fallback answer table.
var TemplateCount = fallback.TableSize()

// ErrNotFound reports setup or status against an unknown project id.
var ErrNotFound = errors.New("project not found")

// Service persists and reads note-style records.
type Service struct {
	storage storage.Storage
}

// NewService creates a note-style service over the given storage.
func NewService(st storage.Storage) *Service {
	return &Service{storage: st}
}

// Setup marks a project note-style initialized and persists the record.
// Running setup again is a no-op that refreshes the record.
func (s *Service) Setup(ctx context.Context, projectID string) (models.NoteStyleStatus, error) {
	if _, err := s.storage.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.NoteStyleStatus{}, fmt.Errorf("%w: %s", ErrNotFound, projectID)
		}
		return models.NoteStyleStatus{}, err
	}
	status := models.NoteStyleStatus{
		ProjectID:     projectID,
		Initialized:   true,
		TemplateCount: TemplateCount,
	}
	if err := s.storage.SetNoteStyle(ctx, status); err != nil {
		return models.NoteStyleStatus{}, fmt.Errorf("persist note-style record: %w", err)
	}
	return status, nil
}

// Status returns a project's note-style record. A project that was never
// set up reads back as not initialized, by design not an error.
func (s *Service) Status(ctx context.Context, projectID string) (models.NoteStyleStatus, error) {
	if _, err := s.storage.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.NoteStyleStatus{}, fmt.Errorf("%w: %s", ErrNotFound, projectID)
		}
		return models.NoteStyleStatus{}, err
	}
	return s.storage.GetNoteStyle(ctx, projectID)
}
