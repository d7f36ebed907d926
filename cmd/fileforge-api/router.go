// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fileforge/fileforge/cmd/fileforge-api/handlers"
	"github.com/fileforge/fileforge/cmd/fileforge-api/middleware"
	"github.com/fileforge/fileforge/internal/config"
	"github.com/fileforge/fileforge/internal/job"
	"github.com/fileforge/fileforge/internal/observability"
	"github.com/fileforge/fileforge/internal/runner"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, store job.Store, jobs *runner.Runner) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"fileforge"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	})

	convertHandler := handlers.NewConvertHandler(logger, jobs, cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes)
	statusHandler := handlers.NewStatusHandler(logger, store)
	downloadHandler := handlers.NewDownloadHandler(logger, store, jobs)
	recentHandler := handlers.NewRecentHandler(logger, store)

	r.Route("/api", func(r chi.Router) {
		r.Post("/convert", convertHandler.Convert)
		r.Get("/conversion/{id}", statusHandler.Status)
		r.Get("/download/{id}", downloadHandler.Download)
		r.Get("/conversions", recentHandler.Recent)
	})

	return r
}
