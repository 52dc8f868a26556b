package admin

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/slotsync/activity"
	"github.com/maxpert/slotsync/cfg"
)

// Reloader accepts reload requests. *signals.Bridge implements it.
type Reloader interface {
	RequestReload()
}

// ConfigSource serves the current configuration snapshot
type ConfigSource interface {
	Current() *cfg.Configuration
}

// AdminHandlers handles admin API endpoints for the running workers
type AdminHandlers struct {
	activity  *activity.Registry
	reloaders map[string]Reloader
	config    ConfigSource
}

// NewAdminHandlers creates a new AdminHandlers instance. reloaders is keyed
// by worker name.
func NewAdminHandlers(registry *activity.Registry, reloaders map[string]Reloader, config ConfigSource) *AdminHandlers {
	return &AdminHandlers{
		activity:  registry,
		reloaders: reloaders,
		config:    config,
	}
}

func (h *AdminHandlers) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.activity.All())
}

func (h *AdminHandlers) handleWorker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "worker")
	tracker, ok := h.activity.Get(name)
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "unknown worker: "+name)
		return
	}
	writeJSONResponse(w, http.StatusOK, tracker.Status())
}

func (h *AdminHandlers) handleReloadWorker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "worker")
	reloader, ok := h.reloaders[name]
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "unknown worker: "+name)
		return
	}

	reloader.RequestReload()
	log.Info().Str("worker", name).Msg("Reload requested through admin API")
	writeJSONResponse(w, http.StatusAccepted, map[string][]string{"reloading": {name}})
}

func (h *AdminHandlers) handleReloadAll(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.reloaders))
	for name, reloader := range h.reloaders {
		reloader.RequestReload()
		names = append(names, name)
	}
	sort.Strings(names)

	log.Info().Strs("workers", names).Msg("Reload requested through admin API")
	writeJSONResponse(w, http.StatusAccepted, map[string][]string{"reloading": names})
}

func (h *AdminHandlers) handleConfig(w http.ResponseWriter, r *http.Request) {
	c := *h.config.Current()

	// Never hand out credentials
	c.Admin.Secret = redact(c.Admin.Secret)
	c.Postgres.DSN = redactDSN(c.Postgres.DSN)

	writeJSONResponse(w, http.StatusOK, c)
}

// handleHealth reports 503 once any worker stopped on an error
func (h *AdminHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	unhealthy := make([]string, 0)
	for _, s := range h.activity.All() {
		if s.State == activity.StateStopped && s.Error != "" {
			unhealthy = append(unhealthy, s.Worker)
		}
	}

	if len(unhealthy) > 0 {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"workers": unhealthy,
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSONResponse writes a JSON response
func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
