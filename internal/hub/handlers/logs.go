package handlers

import (
	"net/http"

	"agenthub/pkg/api"
)

// GetLogs handles GET /logs: recent diagnostic entries from the log store,
// newest first.
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.storage.ListLogs(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := api.GetLogsResponse{Logs: make([]api.LogRecord, 0, len(entries))}
	for _, e := range entries {
		resp.Logs = append(resp.Logs, api.LogRecord{
			ID:        e.ID,
			AgentID:   e.AgentID,
			TaskID:    e.TaskID,
			Level:     string(e.Level),
			Message:   e.Message,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	h.respondJSON(w, http.StatusOK, resp)
}
