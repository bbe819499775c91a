package models

import "time"

// ProjectInfo is the API representation of a project.
type ProjectInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Icon          string    `json:"icon,omitempty"`
	Description   string    `json:"description,omitempty"`
	DocumentCount int       `json:"document_count"`
	TurnCount     int       `json:"turn_count"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateProjectRequest is the body of POST /api/v1/projects.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

// AskRequest is the body of POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	// Fallback forces the deterministic responder instead of the LLM.
	Fallback bool `json:"fallback,omitempty"`
}

// AskResponse is the answer turn plus the chunks it was grounded on.
type AskResponse struct {
	Answer  Turn     `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

// ProcessResponse reports a completed document processing run.
type ProcessResponse struct {
	ProjectID string `json:"project_id"`
	Files     int    `json:"files"`
	Chunks    int    `json:"chunks"`
}

// NoteStyleStatus is the persisted note-style setup record for a project.
// A missing record is reported as Initialized=false, never as an error.
type NoteStyleStatus struct {
	ProjectID     string `json:"project_id"`
	Initialized   bool   `json:"initialized"`
	TemplateCount int    `json:"template_count"`
}

// StatusResponse is the shape of GET /api/v1/status.
type StatusResponse struct {
	Projects        int    `json:"projects"`
	ActiveProject   string `json:"active_project,omitempty"`
	SessionState    string `json:"session_state"`
	TranscriptTurns int    `json:"transcript_turns"`
	IndexSize       int    `json:"index_size"`
	EmbeddingDims   int    `json:"embedding_dimensions,omitempty"`
	StorageBytes    int64  `json:"storage_bytes"`
}
