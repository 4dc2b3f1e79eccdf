package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/choppy/internal/batch"
	"github.com/me/choppy/internal/config"
	"github.com/me/choppy/internal/schema"
	"github.com/me/choppy/internal/store"
	"github.com/me/choppy/internal/validator"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Server is the choppy REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	appRoot   string
	store     store.Store
	extractor schema.Extractor    // optional; nil disables /validate
	batches   *batch.Orchestrator // optional; nil disables POST /batches
	workDir   string
	fs        validator.FS
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithExtractor sets the workflow schema extractor used by /validate.
func WithExtractor(ex schema.Extractor) Option {
	return func(s *Server) {
		s.extractor = ex
	}
}

// WithOrchestrator enables batch runs. Project directories are created
// under workDir.
func WithOrchestrator(o *batch.Orchestrator, workDir string) Option {
	return func(s *Server) {
		s.batches = o
		s.workDir = workDir
	}
}

// WithFS replaces the filesystem used to check File inputs.
func WithFS(fsys validator.FS) Option {
	return func(s *Server) {
		s.fs = fsys
	}
}

// New creates a new Server with all routes registered.
// st may be nil, in which case batch history endpoints report an error.
func New(cfg config.ServerConfig, appRoot string, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		appRoot:   appRoot,
		store:     st,
		fs:        validator.OSFS{},
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

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Apps. Namespaced names are passed with an escaped slash
		// ("choppy%2Fwes").
		r.Route("/apps", func(r chi.Router) {
			r.Get("/", s.handleListApps)
			r.Route("/{app}", func(r chi.Router) {
				r.Get("/", s.handleGetApp)
				r.Get("/defaults", s.handleAppDefaults)
				r.Get("/variables", s.handleAppVariables)
			})
		})

		// Input validation
		r.Post("/validate", s.handleValidate)

		// Batch runs
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", s.handleListBatches)
			r.Post("/", s.handleCreateBatch)
			r.Get("/{id}", s.handleGetBatch)
		})
	})
}
