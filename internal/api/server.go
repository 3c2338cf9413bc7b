package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docblocks/internal/caption"
	"github.com/dgallion1/docblocks/internal/config"
	"github.com/dgallion1/docblocks/internal/pipeline"
)

// Server is the HTTP API server for docblocks.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	captionStats *caption.Stats
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. captionStats may be nil
// when captioning is disabled.
func NewServer(orch *pipeline.Orchestrator, captionStats *caption.Stats, log *slog.Logger, cfg config.Config) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		orchestrator: orch,
		captionStats: captionStats,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/documents", s.handleUpload)
		r.Post("/api/documents/batch", s.handleBatchUpload)

		r.Get("/api/documents/{jobID}/status", s.handleStatus)
		r.Get("/api/documents/{jobID}/profile", s.handleProfile)
		r.Get("/api/documents/{jobID}/blocks", s.handleBlocks)
		r.Get("/api/documents/{jobID}/chunks", s.handleChunks)
		r.Delete("/api/documents/{jobID}", s.handleDelete)

		r.Get("/api/stats/captions", s.handleCaptionStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
		"jobs":        s.orchestrator.JobCount(),
		"indexing":    s.orchestrator.Indexing(),
		"captioning":  s.cfg.CaptionEnabled,
	})
}
