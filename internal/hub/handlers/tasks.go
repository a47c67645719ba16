package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"agenthub/internal/store"
	"agenthub/pkg/api"
)

// titleLimit bounds the derived task title.
const titleLimit = 80

// CreateTask handles POST /task. The task lands pending with a nominal
// agent chosen round-robin on the fresh task id; the assigned worker is the
// only one that will ever claim it.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		h.httpError(w, "Task text is required", http.StatusBadRequest)
		return
	}

	title := text
	if len(title) > titleLimit {
		title = title[:titleLimit]
	}

	metadata := store.TaskMetadata{
		Extra: map[string]any{"type": "user_task"},
	}

	taskID, err := h.storage.CreateTask(ctx, "frontend", title, text, metadata, h.agentCount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, api.CreateTaskResponse{
		TaskID: taskID,
		Status: "created",
	})
}

// GetTask handles GET /task/{id}: the task, its last progress rows and its
// registered artifacts.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.httpError(w, "Invalid task id", http.StatusBadRequest)
		return
	}

	task, err := h.storage.GetTask(ctx, taskID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	limit := queryInt(r, "progress_limit", 50)
	if limit <= 0 {
		limit = 50
	}
	var progress []store.ProgressEntry
	for sinceID := int64(0); ; {
		page, err := h.storage.ListProgress(ctx, taskID, sinceID, limit)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		progress = append(progress, page...)
		if len(page) < limit {
			break
		}
		sinceID = page[len(page)-1].ID
	}
	if len(progress) > limit {
		progress = progress[len(progress)-limit:]
	}

	artifacts, err := h.storage.ListArtifacts(ctx, store.ArtifactFilter{TaskID: &taskID})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := api.GetTaskResponse{
		Task:      taskToAPI(task),
		Progress:  make([]api.ProgressResponse, 0, len(progress)),
		Artifacts: make([]api.ArtifactResponse, 0, len(artifacts)),
	}
	for _, p := range progress {
		resp.Progress = append(resp.Progress, progressToAPI(p))
	}
	for _, a := range artifacts {
		resp.Artifacts = append(resp.Artifacts, artifactToAPI(a, ""))
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// ListTasks handles GET /tasks with status, agent and pagination filters.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := store.TaskFilter{
		AgentID: r.URL.Query().Get("agent_id"),
		Status:  store.TaskStatus(r.URL.Query().Get("status")),
		Limit:   queryInt(r, "limit", 100),
		Offset:  queryInt(r, "offset", 0),
	}
	if filter.Status != "" && !filter.Status.Known() {
		h.httpError(w, "Unknown status filter", http.StatusBadRequest)
		return
	}

	tasks, total, err := h.storage.ListTasks(ctx, filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := api.ListTasksResponse{
		Tasks: make([]api.TaskResponse, 0, len(tasks)),
		Total: total,
	}
	for i := range tasks {
		resp.Tasks = append(resp.Tasks, taskToAPI(&tasks[i]))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// CancelTask handles POST /admin/tasks/{id}/cancel. The cancelled status is
// the flag the worker loop polls; a running driver is stopped on the next
// heartbeat tick.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.httpError(w, "Invalid task id", http.StatusBadRequest)
		return
	}

	if err := h.storage.UpdateTaskStatus(ctx, taskID, store.TaskStatusCancelled, "", nil); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, api.CancelTaskResponse{Status: string(store.TaskStatusCancelled)})
}
