package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/slotsync/telemetry"
)

// RegisterRoutes registers all admin API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers, secret string) {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(secret))

	r.Get("/health", handlers.handleHealth)
	r.Get("/config", handlers.handleConfig)
	r.Post("/reload", handlers.handleReloadAll)

	r.Route("/workers", func(r chi.Router) {
		r.Get("/", handlers.handleListWorkers)
		r.Get("/{worker}", handlers.handleWorker)
		r.Post("/{worker}/reload", handlers.handleReloadWorker)
	})

	// Mount chi router under /admin
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	if metrics := telemetry.GetMetricsHandler(); metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	log.Info().Msg("Admin endpoints enabled at /admin/workers/*")
}
