// Package storage defines the persistence interface for projects,
// transcripts, uploaded files, and note-style records.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kaiwa/internal/models"
)

// ErrNotFound reports an operation on an unknown project id.
var ErrNotFound = errors.New("project not found")

// Storage defines project persistence operations. Vector indexes are not
// persisted here; they are rebuilt from stored files or snapshotted by the
// index's own binary format.
type Storage interface {
	// Project records
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	DeleteProject(ctx context.Context, id string) error

	// Transcripts. SaveTranscript replaces the stored transcript wholesale;
	// the working session is the source of truth between saves.
	SaveTranscript(ctx context.Context, projectID string, t models.Transcript) error
	GetTranscript(ctx context.Context, projectID string) (models.Transcript, error)

	// Uploaded document files, kept so an index can be rebuilt after restart.
	AddFiles(ctx context.Context, projectID string, files []models.DocumentFile) error
	GetFiles(ctx context.Context, projectID string) ([]models.DocumentFile, error)
	CountFiles(ctx context.Context, projectID string) (int, error)

	// ClearProjectData drops the project's transcript and files but keeps
	// the project record itself.
	ClearProjectData(ctx context.Context, projectID string) error

	// Note-style setup records. A missing record reads back as
	// Initialized=false, never as an error.
	SetNoteStyle(ctx context.Context, status models.NoteStyleStatus) error
	GetNoteStyle(ctx context.Context, projectID string) (models.NoteStyleStatus, error)

	Close() error
}
