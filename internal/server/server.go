// Package server provides the HTTP API for Kaiwa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/notestyle"
	"github.com/hyperjump/kaiwa/internal/project"
)

// Server is the HTTP server for the Kaiwa API.
type Server struct {
	store     *project.Store
	noteStyle *notestyle.Service
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store *project.Store,
	noteStyle *notestyle.Service,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:     store,
		noteStyle: noteStyle,
		config:    cfg,
		logger:    logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects/{id}/activate", s.handleActivateProject)
		r.Delete("/projects/{id}", s.handleDeleteProject)
		r.Post("/projects/{id}/clear", s.handleClearProject)
		r.Post("/projects/{id}/reprocess", s.handleReprocess)
		r.Post("/projects/{id}/notestyle", s.handleNoteStyleSetup)
		r.Get("/projects/{id}/notestyle", s.handleNoteStyleStatus)

		r.Post("/documents", s.handleUploadDocuments)
		r.Post("/ask", s.handleAsk)
		r.Get("/transcript", s.handleTranscript)
		r.Post("/transcript/clear", s.handleClearTranscript)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
