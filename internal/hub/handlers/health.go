package handlers

import (
	"net/http"

	"agenthub/pkg/api"
)

// Health handles GET /health. It reports degraded when the relational store
// is unreachable; the hub keeps serving reads that may still succeed.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "degraded"})
		return
	}
	h.respondJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}
