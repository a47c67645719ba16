// Package handlers contains HTTP handlers for the hub API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agenthub/internal/hub/supervisor"
	"agenthub/internal/logger"
	"agenthub/internal/store"
	"agenthub/pkg/api"
)

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	storage    store.Storage
	supervisor *supervisor.Supervisor // nil when the hub does not manage agent processes
	agentCount int
	log        *slog.Logger
}

// New creates a Handlers instance.
func New(s store.Storage, sup *supervisor.Supervisor, agentCount int, log *slog.Logger) *Handlers {
	return &Handlers{storage: s, supervisor: sup, agentCount: agentCount, log: log}
}

// respondJSON writes a standard JSON response.
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps a store error to its HTTP status. Unclassified errors
// become a generic 500 carrying the correlation id; details go to the log
// store only.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		h.httpError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		h.httpError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		h.httpError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrUnavailable):
		h.httpError(w, "Storage unavailable", http.StatusServiceUnavailable)
	default:
		requestID := logger.RequestIDFromContext(r.Context())
		logger.FromContext(r.Context(), h.log).Error("internal error", "error", err)
		if logErr := h.storage.AppendLog(r.Context(), store.LogEntry{
			AgentID:   "hub",
			Level:     store.LogLevelError,
			Message:   "internal error: " + err.Error(),
			Metadata:  map[string]any{"request_id": requestID, "path": r.URL.Path},
			CreatedAt: time.Now().UTC(),
		}); logErr != nil {
			h.log.Warn("log store write failed", "error", logErr)
		}
		h.respondJSON(w, http.StatusInternalServerError, api.ErrorResponse{
			Error:   "Internal server error",
			Code:    "500",
			Details: requestID,
		})
	}
}

// httpError writes a consistent error payload.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJSON(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func taskToAPI(t *store.Task) api.TaskResponse {
	return api.TaskResponse{
		ID:              t.ID,
		AgentID:         t.AgentID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          string(t.Status),
		Metadata:        t.Metadata.AsMap(),
		Response:        t.Metadata.Response,
		AssignedAgentID: t.Metadata.AssignedAgentID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func progressToAPI(p store.ProgressEntry) api.ProgressResponse {
	return api.ProgressResponse{
		ID:              p.ID,
		TaskID:          p.TaskID,
		AgentID:         p.AgentID,
		ProgressPercent: p.ProgressPercent,
		Message:         p.Message,
		Data:            p.Data,
		Timestamp:       p.Timestamp,
	}
}

func artifactToAPI(a store.ArtifactMetadata, url string) api.ArtifactResponse {
	return api.ArtifactResponse{
		ID:          a.ID,
		AgentID:     a.AgentID,
		TaskID:      a.TaskID,
		Bucket:      a.Bucket,
		ObjectPath:  a.ObjectPath,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		URL:         url,
		UploadedAt:  a.UploadedAt,
	}
}
