package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Pinger reports whether the backing store is reachable (repo.Store)
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	store Pinger
	log   zerolog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{store: store, log: log}
}

// HandleHealth handles GET /health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, h.log, http.StatusOK, map[string]bool{"ok": true})
}

// HandleReady handles GET /ready
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("readiness check failed")
		respondWithError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, h.log, http.StatusOK, map[string]bool{"ok": true})
}
