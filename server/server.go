// Package server exposes the analysis core over HTTP. Streaming runs over
// SSE; everything else is plain JSON. Authentication happens upstream, the
// handlers only trust the principal injected in the X-User-ID header.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fogfish/opts"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/shotlist/shotlist/analysis"
	"github.com/shotlist/shotlist/store"
)

// Analyzer is the slice of the orchestration core the HTTP surface needs.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.AnalyzeRequest) (*analysis.TaskStream, error)
	Task(ctx context.Context, ownerID, id uuid.UUID) (*store.AnalysisTask, error)
	Tasks(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]store.AnalysisTask, error)
	InvalidateModel(modelID string)
}

// Sweeper runs one stale-task sweep on demand.
type Sweeper interface {
	Run(ctx context.Context) (analysis.Report, error)
}

// Server is the HTTP surface of the daemon.
type Server struct {
	analyzer Analyzer
	reaper   Sweeper
	log      *slog.Logger
}

// WithServerLogger overrides the request logger.
var WithServerLogger = opts.ForName[Server, *slog.Logger]("log")

// New wires the HTTP surface.
func New(analyzer Analyzer, reaper Sweeper, options ...opts.Option[Server]) *Server {
	s := &Server{
		analyzer: analyzer,
		reaper:   reaper,
		log:      slog.Default(),
	}
	if err := opts.Apply(s, options); err != nil {
		panic(err)
	}
	return s
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		s.requestLogger,
	)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/analysis", func(r chi.Router) {
		r.Use(s.requireOwner)
		r.Post("/stream", s.handleStream)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{id}", s.handleGetTask)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/tasks/reap", s.handleReap)
		r.Post("/models/{id}/invalidate", s.handleInvalidate)
	})

	return r
}
