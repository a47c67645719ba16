package handlers

import (
	"net/http"
	"strconv"
	"time"

	"agenthub/internal/store"
	"agenthub/pkg/api"
)

// presignTTL is how long dashboard screenshot links stay valid.
const presignTTL = 15 * time.Minute

// AgentResponses handles GET /chat/agent-responses: the newest progress
// entries across all agents joined with their tasks, for the chat live feed.
func (h *Handlers) AgentResponses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, tasks, err := h.storage.LatestProgress(ctx, queryInt(r, "limit", 50))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := api.AgentResponsesResponse{Messages: make([]api.AgentMessage, 0, len(entries))}
	for _, p := range entries {
		msg := api.AgentMessage{
			ID:              p.ID,
			TaskID:          p.TaskID,
			AgentID:         p.AgentID,
			ProgressPercent: p.ProgressPercent,
			Message:         p.Message,
			Timestamp:       p.Timestamp,
		}
		if task, ok := tasks[p.TaskID]; ok {
			t := taskToAPI(task)
			msg.Task = &t
		}
		resp.Messages = append(resp.Messages, msg)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// AgentsLive handles GET /agents/live: per-agent latest progress and latest
// artifacts of every bucket; screenshot artifacts carry presigned URLs.
func (h *Handlers) AgentsLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit_per_agent", 10)

	resp := api.AgentsLiveResponse{
		GeneratedAt: time.Now().UTC(),
		Agents:      make([]api.AgentLiveState, 0),
	}

	for _, agentID := range h.knownAgents() {
		state := api.AgentLiveState{
			AgentID:   agentID,
			Progress:  make([]api.ProgressResponse, 0, limit),
			Artifacts: make([]api.ArtifactResponse, 0, limit),
		}

		progress, err := h.storage.LatestProgressForAgent(ctx, agentID, limit)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		for _, p := range progress {
			state.Progress = append(state.Progress, progressToAPI(p))
		}
		if len(state.Progress) > 0 {
			state.LatestProgress = &state.Progress[0]
		}

		artifacts, err := h.storage.ListArtifacts(ctx, store.ArtifactFilter{
			AgentID: agentID,
			Limit:   limit,
		})
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		for _, a := range artifacts {
			url := ""
			if a.Bucket == store.BucketScreenshots {
				if signed, err := h.storage.PresignGet(ctx, a.Bucket, a.ObjectPath, presignTTL); err == nil {
					url = signed
				}
			}
			state.Artifacts = append(state.Artifacts, artifactToAPI(a, url))
		}

		resp.Agents = append(resp.Agents, state)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// knownAgents lists the normalized agent ids the live feed reports on:
// supervised agents when the hub manages processes, otherwise the nominal
// round-robin set.
func (h *Handlers) knownAgents() []string {
	if h.supervisor != nil {
		return h.supervisor.AgentIDs()
	}
	ids := make([]string, 0, h.agentCount)
	for i := 1; i <= h.agentCount; i++ {
		ids = append(ids, "agent"+strconv.Itoa(i))
	}
	return ids
}
