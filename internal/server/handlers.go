package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/extract"
	"github.com/hyperjump/kaiwa/internal/ingest"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/notestyle"
	"github.com/hyperjump/kaiwa/internal/project"
	"github.com/hyperjump/kaiwa/internal/storage"
)

const maxUploadBytes = 64 << 20 // 64 MiB per upload request

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	p, err := s.store.Create(r.Context(), req.Name, req.Icon, req.Description)
	if err != nil {
		s.logger.Error("create project failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list projects failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, infos)
}

func (s *Server) handleActivateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.SetActive(r.Context(), id); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "active"})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleClearProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.ClearData(r.Context(), id); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cleared"})
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.store.Reprocess(r.Context(), id)
	if err != nil {
		s.logger.Error("reprocess failed", zap.String("id", id), zap.Error(err))
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.ProcessResponse{
		ProjectID: id,
		Chunks:    len(result.Chunks),
	})
}

func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	form := r.MultipartForm
	defer func() { _ = form.RemoveAll() }()

	var files []models.DocumentFile
	for _, header := range form.File["files"] {
		f, err := header.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "unreadable file: "+header.Filename)
			return
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "unreadable file: "+header.Filename)
			return
		}
		files = append(files, models.DocumentFile{Name: header.Filename, Content: content})
	}
	if len(files) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files in form field 'files'")
		return
	}

	result, err := s.store.ProcessDocuments(r.Context(), files)
	if err != nil {
		s.logger.Error("document processing failed", zap.Int("files", len(files)), zap.Error(err))
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, models.ProcessResponse{
		ProjectID: s.store.ActiveID(),
		Files:     len(files),
		Chunks:    len(result.Chunks),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	answer, err := s.store.Ask(r.Context(), req.Question, req.Fallback)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.AskResponse{
		Answer:  answer.Turn,
		Sources: answer.Sources,
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	transcript := s.store.Session().Transcript()
	if transcript == nil {
		transcript = models.Transcript{}
	}
	s.respondJSON(w, http.StatusOK, transcript)
}

func (s *Server) handleClearTranscript(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearTranscript(r.Context()); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleNoteStyleSetup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.noteStyle.Setup(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if id == s.store.ActiveID() {
		s.store.Session().SetNoteStyle(true)
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleNoteStyleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.noteStyle.Status(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("status: list projects failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	session := s.store.Session()
	resp := models.StatusResponse{
		Projects:        len(infos),
		ActiveProject:   s.store.ActiveID(),
		SessionState:    session.State().String(),
		TranscriptTurns: len(session.Transcript()),
		EmbeddingDims:   s.config.Embedding.Dimensions,
		StorageBytes:    storage.DatabaseSizeBytes(s.config.Storage.DatabasePath),
	}
	if ix, _ := session.Indexes(); ix != nil {
		resp.IndexSize = ix.Size()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondDomainError maps pipeline and store errors onto HTTP statuses:
// unknown project 404, missing precondition 409, empty/unreadable input 422,
// collaborator failure 502, everything else 500.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	var fileErr *extract.FileError
	var embedErr *embedding.RequestError
	var llmErr *llm.RequestError
	switch {
	case errors.Is(err, project.ErrNotFound) || errors.Is(err, notestyle.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, project.ErrNoActiveProject) || errors.Is(err, chat.ErrNotReady):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ingest.ErrEmptyContent) || errors.As(err, &fileErr):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &embedErr) || errors.As(err, &llmErr):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
