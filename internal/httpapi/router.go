// Package httpapi exposes the browse/action HTTP surface: read-only job
// listing and analytics, plus the two write paths (status transitions and
// the Telegram inline-button callback) that don't go through the pipeline.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/config"
	"github.com/jobintel/pipeline/internal/notifier"
	"github.com/jobintel/pipeline/internal/store"
)

type handlers struct {
	store    store.Store
	notifier notifier.Notifier
	cfg      *config.Config
	logger   *zap.Logger
	started  time.Time
}

// NewRouter builds the chi.Router for the browse/action API described in
// spec §6. The orchestrator is intentionally not wired in: this surface is
// read-mostly, its two mutations (status transitions, Telegram callback)
// touch the store directly, and starting pipeline runs is cmd's job.
func NewRouter(st store.Store, nt notifier.Notifier, cfg *config.Config, logger *zap.Logger) http.Handler {
	h := &handlers{store: st, notifier: nt, cfg: cfg, logger: logger, started: time.Now()}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)
	r.Get("/status", h.handleStatus)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", h.handleListJobs)
		r.Get("/{id}", h.handleGetJob)
		r.Post("/{id}/applied", h.handleJobAction(jobActionApplied))
		r.Post("/{id}/dismissed", h.handleJobAction(jobActionDismissed))
	})

	r.Post("/api/telegram/callback", h.handleTelegramCallback)

	r.Route("/api/analytics", func(r chi.Router) {
		r.Get("/sources", h.handleAnalyticsSources)
		r.Get("/weekly", h.handleAnalyticsWeekly)
	})

	return r
}
