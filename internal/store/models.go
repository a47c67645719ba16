// Package store contains the storage layer contracts for agenthub.
package store

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// allowedTransitions encodes the task state machine. The only path back to
// pending is the stalled-worker recovery, modeled as a separate store
// operation so normal status updates can never requeue a task.
var allowedTransitions = map[TaskStatus]map[TaskStatus]struct{}{
	TaskStatusPending: {
		TaskStatusAssigned:  {},
		TaskStatusCancelled: {},
	},
	TaskStatusAssigned: {
		TaskStatusInProgress: {},
		TaskStatusFailed:     {},
		TaskStatusCancelled:  {},
	},
	TaskStatusInProgress: {
		TaskStatusCompleted: {},
		TaskStatusFailed:    {},
		TaskStatusCancelled: {},
	},
}

// ValidTransition reports whether a task may move from one status to another.
// Terminal statuses have no outgoing transitions.
func ValidTransition(from, to TaskStatus) bool {
	if from == to {
		return false
	}
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Terminal reports whether a status is final.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Known reports whether s is one of the recognized statuses.
func (s TaskStatus) Known() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

const (
	metaKeyResponse          = "response"
	metaKeyResponseUpdatedAt = "response_updated_at"
	metaKeyAssignedAgentID   = "assigned_agent_id"
	metaKeyLastAgent         = "last_agent"
	metaKeyResult            = "result"
)

// TaskMetadata is the structured view of the task metadata column. Known
// keys are typed; anything else round-trips through Extra untouched.
type TaskMetadata struct {
	Response          string
	ResponseUpdatedAt string
	AssignedAgentID   string
	LastAgent         string
	Result            map[string]any
	Extra             map[string]any
}

// MarshalJSON flattens the typed fields and Extra into a single object.
func (m TaskMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Response != "" {
		out[metaKeyResponse] = m.Response
	}
	if m.ResponseUpdatedAt != "" {
		out[metaKeyResponseUpdatedAt] = m.ResponseUpdatedAt
	}
	if m.AssignedAgentID != "" {
		out[metaKeyAssignedAgentID] = m.AssignedAgentID
	}
	if m.LastAgent != "" {
		out[metaKeyLastAgent] = m.LastAgent
	}
	if m.Result != nil {
		out[metaKeyResult] = m.Result
	}
	return json.Marshal(out)
}

// UnmarshalJSON lifts known keys into typed fields and keeps the rest in Extra.
func (m *TaskMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = TaskMetadata{}
	for k, v := range raw {
		switch k {
		case metaKeyResponse:
			if s, ok := v.(string); ok {
				m.Response = s
				continue
			}
		case metaKeyResponseUpdatedAt:
			if s, ok := v.(string); ok {
				m.ResponseUpdatedAt = s
				continue
			}
		case metaKeyAssignedAgentID:
			if s, ok := v.(string); ok {
				m.AssignedAgentID = s
				continue
			}
		case metaKeyLastAgent:
			if s, ok := v.(string); ok {
				m.LastAgent = s
				continue
			}
		case metaKeyResult:
			if r, ok := v.(map[string]any); ok {
				m.Result = r
				continue
			}
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
	return nil
}

// Merge overlays other onto m without dropping keys that other does not set.
func (m *TaskMetadata) Merge(other TaskMetadata) {
	if other.Response != "" {
		m.Response = other.Response
	}
	if other.ResponseUpdatedAt != "" {
		m.ResponseUpdatedAt = other.ResponseUpdatedAt
	}
	if other.AssignedAgentID != "" {
		m.AssignedAgentID = other.AssignedAgentID
	}
	if other.LastAgent != "" {
		m.LastAgent = other.LastAgent
	}
	if other.Result != nil {
		m.Result = other.Result
	}
	for k, v := range other.Extra {
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
}

// AsMap returns the flattened representation used by API responses.
func (m TaskMetadata) AsMap() map[string]any {
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// Task represents a unit of work submitted by a user.
type Task struct {
	ID          int64
	AgentID     string
	Title       string
	Description string
	Status      TaskStatus
	Metadata    TaskMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProgressEntry is one append-only record of a task's forward motion.
type ProgressEntry struct {
	ID              int64
	TaskID          int64
	AgentID         string
	ProgressPercent *float64
	Message         string
	Data            map[string]any
	Timestamp       time.Time
}

// ArtifactMetadata describes one blob stored in the object store.
type ArtifactMetadata struct {
	ID          int64
	AgentID     string
	TaskID      *int64
	Bucket      string
	ObjectPath  string
	ContentType string
	SizeBytes   int64
	Metadata    map[string]any
	UploadedAt  time.Time
}

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogEntry is one structured diagnostic record. Its task reference is a
// plain field; the log store enforces no referential constraint.
type LogEntry struct {
	ID        string
	AgentID   string
	TaskID    *int64
	Level     LogLevel
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// TaskFilter selects tasks in list queries.
type TaskFilter struct {
	AgentID string
	Status  TaskStatus
	Limit   int
	Offset  int
}

// ArtifactFilter selects artifact metadata rows in list queries.
type ArtifactFilter struct {
	AgentID string
	TaskID  *int64
	Bucket  string
	Limit   int
}

// Object-store bucket names. Paths inside a bucket are
// <normalized_agent_id>/<name>.<ext>; the bucket name is never repeated in
// the object path.
const (
	BucketScreenshots = "screenshots"
	BucketBinaries    = "binaries"
)
