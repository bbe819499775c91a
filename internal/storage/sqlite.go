// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kaiwa/internal/fileid"
	"github.com/hyperjump/kaiwa/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		icon TEXT,
		description TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		project_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (project_id, seq),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS document_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		content_id TEXT NOT NULL,
		name TEXT NOT NULL,
		content BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_files_project ON document_files(project_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_files_content ON document_files(project_id, content_id);

	CREATE TABLE IF NOT EXISTS notestyle (
		project_id TEXT PRIMARY KEY,
		initialized INTEGER NOT NULL,
		template_count INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateProject inserts a project record.
func (s *SQLiteStorage) CreateProject(ctx context.Context, p *models.Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, icon, description, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Icon, p.Description, p.CreatedAt,
	)
	return err
}

// GetProject returns a project by ID, ErrNotFound when it does not exist.
func (s *SQLiteStorage) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, icon, description, created_at
		 FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Icon, &p.Description, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns all projects ordered by creation time.
func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, icon, description, created_at
		 FROM projects ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Icon, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and, via cascade, its turns, files, and
// note-style record.
func (s *SQLiteStorage) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// SaveTranscript replaces the stored transcript for a project in one
// transaction, so a crash mid-save cannot leave a mixed history.
func (s *SQLiteStorage) SaveTranscript(ctx context.Context, projectID string, t models.Transcript) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO turns (project_id, seq, role, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, turn := range t {
		if _, err := stmt.ExecContext(ctx, projectID, i, turn.Role, turn.Text, turn.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTranscript returns a project's transcript in insertion order.
func (s *SQLiteStorage) GetTranscript(ctx context.Context, projectID string) (models.Transcript, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM turns
		 WHERE project_id = ? ORDER BY seq`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var t models.Transcript
	for rows.Next() {
		var turn models.Turn
		if err := rows.Scan(&turn.Role, &turn.Text, &turn.CreatedAt); err != nil {
			return nil, err
		}
		t = append(t, turn)
	}
	return t, rows.Err()
}

// AddFiles appends uploaded files to a project in one transaction. A file
// with the same name and bytes as one already stored is skipped, so repeated
// uploads and double-firing inbox events do not duplicate documents.
func (s *SQLiteStorage) AddFiles(ctx context.Context, projectID string, files []models.DocumentFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO document_files (project_id, content_id, name, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, projectID, fileid.ContentID(f.Name, f.Content), f.Name, f.Content, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetFiles returns a project's stored files in upload order.
func (s *SQLiteStorage) GetFiles(ctx context.Context, projectID string) ([]models.DocumentFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, content FROM document_files
		 WHERE project_id = ? ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.DocumentFile
	for rows.Next() {
		var f models.DocumentFile
		if err := rows.Scan(&f.Name, &f.Content); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// CountFiles returns the number of stored files for a project.
func (s *SQLiteStorage) CountFiles(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_files WHERE project_id = ?`, projectID,
	).Scan(&count)
	return count, err
}

// ClearProjectData drops a project's transcript and files, keeping the
// project record and its note-style setup.
func (s *SQLiteStorage) ClearProjectData(ctx context.Context, projectID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_files WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetNoteStyle upserts a project's note-style record.
func (s *SQLiteStorage) SetNoteStyle(ctx context.Context, status models.NoteStyleStatus) error {
	initialized := 0
	if status.Initialized {
		initialized = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notestyle (project_id, initialized, template_count, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
		   initialized = excluded.initialized,
		   template_count = excluded.template_count,
		   updated_at = excluded.updated_at`,
		status.ProjectID, initialized, status.TemplateCount, time.Now().UTC(),
	)
	return err
}

// GetNoteStyle returns a project's note-style record. A missing record is
// "not configured": Initialized=false with no error.
func (s *SQLiteStorage) GetNoteStyle(ctx context.Context, projectID string) (models.NoteStyleStatus, error) {
	status := models.NoteStyleStatus{ProjectID: projectID}
	var initialized int
	err := s.db.QueryRowContext(ctx,
		`SELECT initialized, template_count FROM notestyle WHERE project_id = ?`,
		projectID,
	).Scan(&initialized, &status.TemplateCount)

	if errors.Is(err, sql.ErrNoRows) {
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.Initialized = initialized != 0
	return status, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
