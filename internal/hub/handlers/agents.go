package handlers

import (
	"net/http"
	"time"

	"agenthub/pkg/api"
)

// stopGrace is how long a stopping agent gets before it is force-killed.
const stopGrace = 5 * time.Second

// AgentsStatus handles GET /agents/status.
func (h *Handlers) AgentsStatus(w http.ResponseWriter, r *http.Request) {
	if h.supervisor == nil {
		h.httpError(w, "Agent supervision is not enabled on this hub", http.StatusNotFound)
		return
	}

	statuses := h.supervisor.Status()
	resp := api.AgentsStatusResponse{Agents: make([]api.AgentStatus, 0, len(statuses))}
	for _, st := range statuses {
		resp.Agents = append(resp.Agents, api.AgentStatus{
			AgentID: st.AgentID,
			Running: st.Running,
			PID:     st.PID,
		})
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// StartAgent handles POST /agents/{id}/start.
func (h *Handlers) StartAgent(w http.ResponseWriter, r *http.Request) {
	if h.supervisor == nil {
		h.httpError(w, "Agent supervision is not enabled on this hub", http.StatusNotFound)
		return
	}
	if err := h.supervisor.Start(r.PathValue("id")); err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// StopAgent handles POST /agents/{id}/stop.
func (h *Handlers) StopAgent(w http.ResponseWriter, r *http.Request) {
	if h.supervisor == nil {
		h.httpError(w, "Agent supervision is not enabled on this hub", http.StatusNotFound)
		return
	}
	if err := h.supervisor.Stop(r.PathValue("id"), stopGrace); err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
