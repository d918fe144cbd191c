package handler

import (
	"net/http"

	"github.com/alanyoungcy/polyrewards/internal/breaker"
)

// BreakerSource lists the circuit breakers of the process.
type BreakerSource interface {
	Snapshot() []breaker.Stats
}

// BreakerHandler exposes per-provider circuit breaker state.
type BreakerHandler struct {
	source BreakerSource
}

// NewBreakerHandler creates a BreakerHandler.
func NewBreakerHandler(source BreakerSource) *BreakerHandler {
	return &BreakerHandler{source: source}
}

// List returns the state and cumulative counters of every breaker.
// GET /api/breakers
func (h *BreakerHandler) List(w http.ResponseWriter, _ *http.Request) {
	stats := []breaker.Stats{}
	if h.source != nil {
		stats = append(stats, h.source.Snapshot()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakers": stats})
}
