package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dgallion1/splgest/internal/config"
	"github.com/dgallion1/splgest/internal/pipeline"
	"github.com/dgallion1/splgest/internal/store"
)

// Labels is the stored-label surface the handlers read and write.
type Labels interface {
	GetLabel(ctx context.Context, id string) (*store.Record, error)
	ListLabels(ctx context.Context, setID string, limit, offset int) ([]store.Summary, error)
	DeleteLabel(ctx context.Context, id string) error
	ImportTSV(ctx context.Context, table string, r io.Reader) (int, error)
}

// DocumentDeleter removes a label from the search index.
type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, key string) error
}

// Server is the HTTP API server for splgest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	labels       Labels
	index        DocumentDeleter // nil when indexing is disabled
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. idx may be nil.
func NewServer(orch *pipeline.Orchestrator, labels Labels, idx DocumentDeleter, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		labels:       labels,
		index:        idx,
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
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/extract", s.handleExtract)

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)

		r.Get("/api/labels", s.handleListLabels)
		r.Get("/api/labels/{id}", s.handleGetLabel)
		r.Get("/api/labels/{id}/report", s.handleLabelReport)
		r.Delete("/api/labels/{id}", s.handleDeleteLabel)

		r.Post("/api/tables/{table}", s.handleImportTable)

		r.Get("/api/stats/extract", s.handleExtractStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
