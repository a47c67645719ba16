// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the hub server.
package api

import "time"

// CreateTaskRequest is the request body for submitting a new task.
type CreateTaskRequest struct {
	Text string `json:"text"`
}

// CreateTaskResponse is the response body after submitting a task.
type CreateTaskResponse struct {
	TaskID int64  `json:"task_id"`
	Status string `json:"status"`
}

// TaskResponse represents a task in API responses.
type TaskResponse struct {
	ID              int64          `json:"id"`
	AgentID         string         `json:"agent_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Status          string         `json:"status"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Response        string         `json:"response,omitempty"`
	AssignedAgentID string         `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ProgressResponse represents a single progress entry.
type ProgressResponse struct {
	ID              int64          `json:"id"`
	TaskID          int64          `json:"task_id"`
	AgentID         string         `json:"agent_id"`
	ProgressPercent *float64       `json:"progress_percent"`
	Message         string         `json:"message"`
	Data            map[string]any `json:"data,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// ArtifactResponse represents artifact metadata in API responses.
type ArtifactResponse struct {
	ID          int64     `json:"id"`
	AgentID     string    `json:"agent_id"`
	TaskID      *int64    `json:"task_id,omitempty"`
	Bucket      string    `json:"bucket"`
	ObjectPath  string    `json:"object_path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// GetTaskResponse is the response body for GET /task/{id}.
type GetTaskResponse struct {
	Task      TaskResponse       `json:"task"`
	Progress  []ProgressResponse `json:"progress"`
	Artifacts []ArtifactResponse `json:"artifacts"`
}

// ListTasksResponse is the response body for GET /tasks.
type ListTasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int64          `json:"total"`
}

// AgentMessage is one row of the live chat feed: a progress entry joined
// with its task.
type AgentMessage struct {
	ID              int64         `json:"id"`
	TaskID          int64         `json:"task_id"`
	AgentID         string        `json:"agent_id"`
	ProgressPercent *float64      `json:"progress_percent"`
	Message         string        `json:"message"`
	Timestamp       time.Time     `json:"timestamp"`
	Task            *TaskResponse `json:"task,omitempty"`
}

// AgentResponsesResponse is the response body for GET /chat/agent-responses.
type AgentResponsesResponse struct {
	Messages []AgentMessage `json:"messages"`
}

// AgentLiveState is the per-agent section of the live dashboard feed.
type AgentLiveState struct {
	AgentID        string             `json:"agent_id"`
	LatestProgress *ProgressResponse  `json:"latest_progress,omitempty"`
	Progress       []ProgressResponse `json:"progress"`
	Artifacts      []ArtifactResponse `json:"artifacts"`
}

// AgentsLiveResponse is the response body for GET /agents/live.
type AgentsLiveResponse struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Agents      []AgentLiveState `json:"agents"`
}

// PresignedURLResponse is the response body for GET /artifacts/{id}/presigned.
type PresignedURLResponse struct {
	URL string `json:"url"`
}

// CancelTaskResponse is the response body for POST /admin/tasks/{id}/cancel.
type CancelTaskResponse struct {
	Status string `json:"status"`
}

// LogRecord represents one log store entry in API responses.
type LogRecord struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	TaskID    *int64         `json:"task_id,omitempty"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// GetLogsResponse is the response body for GET /logs.
type GetLogsResponse struct {
	Logs []LogRecord `json:"logs"`
}

// AgentStatus describes one supervised agent process.
type AgentStatus struct {
	AgentID string `json:"agent_id"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
}

// AgentsStatusResponse is the response body for GET /agents/status.
type AgentsStatusResponse struct {
	Agents []AgentStatus `json:"agents"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
