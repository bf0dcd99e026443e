// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/paperlens-ai/paperlens/cmd/paperlens-api/handlers"
	"github.com/paperlens-ai/paperlens/cmd/paperlens-api/middleware"
	"github.com/paperlens-ai/paperlens/internal/answer"
	"github.com/paperlens-ai/paperlens/internal/api/rpc"
	"github.com/paperlens-ai/paperlens/internal/cache"
	"github.com/paperlens-ai/paperlens/internal/config"
	"github.com/paperlens-ai/paperlens/internal/ingest"
	"github.com/paperlens-ai/paperlens/internal/monitoring"
	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

// AppServices bundles the wired application services the router exposes.
type AppServices struct {
	Store    *storage.Store
	Ingest   *ingest.Service
	Engine   *answer.Engine
	Auditor  *monitoring.QueryAuditor
	QueryRPC *rpc.QueryService
	Cache    cache.Client
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, svcs AppServices) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Trace)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// No global timeout: streamed ingestion holds the connection open for
	// the duration of the extraction.

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"paperlens"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svcs.Store.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	ingestionHandler := handlers.NewIngestionHandler(logger, svcs.Ingest, cfg.Server.MaxUploadBytes)
	queryHandler := handlers.NewQueryHandler(logger, svcs.Engine, svcs.Auditor)
	documentsHandler := handlers.NewDocumentsHandler(logger, svcs.Store, svcs.Cache)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/ocr", func(r chi.Router) {
			r.Post("/upload", ingestionHandler.Upload)
			r.Post("/upload/stream", ingestionHandler.UploadStream)
		})

		r.Post("/ask", queryHandler.Ask)
		r.Get("/queries", queryHandler.History)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", documentsHandler.List)
			r.Post("/batch-delete", documentsHandler.BatchDelete)
			r.Get("/{id}", documentsHandler.Get)
			r.Delete("/{id}", documentsHandler.Delete)
		})
	})

	// Connect RPC surface for service-to-service callers.
	if svcs.QueryRPC != nil {
		path, handler := svcs.QueryRPC.AskHandler()
		r.Handle(path, handler)
	}

	return r
}
