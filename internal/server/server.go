package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/tessera/internal/config"
	"github.com/me/tessera/internal/orchestrator"
	"github.com/me/tessera/internal/store"
	"github.com/me/tessera/internal/upload"
)

// Server is the tessera REST API server. It fronts the workflow manager:
// every mutating route resolves to one engine operation, and every read
// route serves the engine's last-reconciled tree.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	manager   *orchestrator.Manager
	store     store.Store
	stager    upload.Stager // optional; nil disables server-side staging
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStager sets the object-storage stager backing the upload endpoints.
func WithStager(st upload.Stager) Option {
	return func(s *Server) {
		s.stager = st
	}
}

// New creates a Server with all routes registered.
func New(cfg config.ServerConfig, mgr *orchestrator.Manager, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		manager:   mgr,
		store:     st,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.handleListWorkflows)
			r.Post("/", s.handleCreateWorkflow)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkflow)
				r.Delete("/", s.handleDeleteWorkflow)

				r.Get("/status", s.handleGetStatus)
				r.Post("/submit", s.handleSubmit)
				r.Post("/resubmit", s.handleResubmit)
				r.Post("/kill", s.handleKill)
				r.Post("/save", s.handleSave)
				r.Post("/load", s.handleLoad)

				r.Put("/arguments", s.handleSetArgument)
				r.Get("/submissions", s.handleListSubmissions)

				r.Route("/uploads", func(r chi.Router) {
					r.Get("/", s.handleListUploads)
					r.Post("/", s.handleRegisterUploads)
					r.Put("/{unit}", s.handleSetUploadState)
					r.Post("/{unit}/stage", s.handleStageUpload)
				})

				r.Get("/jobs/{sourceID}/logs", s.handleJobLog)
			})
		})

		r.Route("/sse", func(r chi.Router) {
			r.Get("/workflows/{id}", s.handleSSEWorkflow)
		})
	})
}
