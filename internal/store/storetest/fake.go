// Package storetest provides an in-memory store.Storage for tests. The
// claim semantics match the real store: a task is handed to at most one
// caller.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agenthub/internal/store"
)

// Fake is an in-memory store.Storage.
type Fake struct {
	mu sync.Mutex

	tasks      map[int64]*store.Task
	nextTaskID int64

	progress       map[int64][]store.ProgressEntry
	nextProgressID int64

	artifacts      []store.ArtifactMetadata
	nextArtifactID int64

	objects map[string][]byte

	logs []store.LogEntry

	// FailResponse makes the next N UpdateTaskResponse calls fail with
	// ErrUnavailable.
	FailResponse int
	// ResponseCalls counts UpdateTaskResponse invocations.
	ResponseCalls int
	// FailPing makes Ping report the store unreachable.
	FailPing bool
}

var _ store.Storage = (*Fake)(nil)

// New creates an empty fake store.
func New() *Fake {
	return &Fake{
		tasks:    make(map[int64]*store.Task),
		progress: make(map[int64][]store.ProgressEntry),
		objects:  make(map[string][]byte),
	}
}

// AddTask seeds a task in the given status and returns its id.
func (f *Fake) AddTask(agentID, title, description string, status store.TaskStatus) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTaskID++
	id := f.nextTaskID
	f.tasks[id] = &store.Task{
		ID:          id,
		AgentID:     agentID,
		Title:       title,
		Description: description,
		Status:      status,
		CreatedAt:   time.Now().Add(time.Duration(id) * time.Millisecond),
		UpdatedAt:   time.Now(),
	}
	return id
}

// Task returns a copy of the stored task.
func (f *Fake) Task(id int64) store.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.tasks[id]
}

// SetTaskStatus forces a status, bypassing the state machine. Test-only.
func (f *Fake) SetTaskStatus(id int64, status store.TaskStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].Status = status
}

// SetTaskUpdatedAt backdates a task. Test-only.
func (f *Fake) SetTaskUpdatedAt(id int64, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].UpdatedAt = t
}

// ProgressFor returns a copy of the task's progress rows in append order.
func (f *Fake) ProgressFor(id int64) []store.ProgressEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.ProgressEntry(nil), f.progress[id]...)
}

// Logs returns a copy of the appended log entries.
func (f *Fake) Logs() []store.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.LogEntry(nil), f.logs...)
}

func (f *Fake) CreateTask(_ context.Context, agentID, title, description string, metadata store.TaskMetadata, agentCount int) (int64, error) {
	id := f.AddTask(agentID, title, description, store.TaskStatusPending)
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	t.Metadata = metadata
	if agentCount > 0 {
		assigned := fmt.Sprintf("agent%d", 1+id%int64(agentCount))
		t.AgentID = assigned
		t.Metadata.AssignedAgentID = assigned
	}
	return id, nil
}

func (f *Fake) GetTask(_ context.Context, taskID int64) (*store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, store.NotFoundf("task %d", taskID)
	}
	copied := *t
	return &copied, nil
}

func (f *Fake) ListTasks(_ context.Context, filter store.TaskFilter) ([]store.Task, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Task
	for _, t := range f.tasks {
		if filter.AgentID != "" && t.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (f *Fake) UpdateTaskStatus(_ context.Context, taskID int64, status store.TaskStatus, agentID string, metadata *store.TaskMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return store.NotFoundf("task %d", taskID)
	}
	if !store.ValidTransition(t.Status, status) {
		return store.Conflictf("task %d: %s -> %s", taskID, t.Status, status)
	}
	t.Status = status
	if agentID != "" {
		t.AgentID = agentID
	}
	if metadata != nil {
		t.Metadata.Merge(*metadata)
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (f *Fake) UpdateTaskResponse(_ context.Context, taskID int64, agentID, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResponseCalls++
	if f.FailResponse > 0 {
		f.FailResponse--
		return store.Unavailablef("injected response failure")
	}
	t, ok := f.tasks[taskID]
	if !ok {
		return store.NotFoundf("task %d", taskID)
	}
	t.Metadata.Response = response
	t.Metadata.LastAgent = agentID
	t.Metadata.ResponseUpdatedAt = time.Now().UTC().Format(time.RFC3339)
	t.UpdatedAt = time.Now()
	return nil
}

func (f *Fake) ClaimNextPending(_ context.Context, agentID string) (*store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *store.Task
	for _, t := range f.tasks {
		if t.AgentID != agentID || t.Status != store.TaskStatusPending {
			continue
		}
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) ||
			(t.CreatedAt.Equal(oldest.CreatedAt) && t.ID < oldest.ID) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = store.TaskStatusAssigned
	oldest.UpdatedAt = time.Now()
	copied := *oldest
	return &copied, nil
}

func (f *Fake) RecoverStalled(_ context.Context, grace time.Duration) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recovered []int64
	for _, t := range f.tasks {
		if t.Status != store.TaskStatusAssigned && t.Status != store.TaskStatusInProgress {
			continue
		}
		last := t.UpdatedAt
		if rows := f.progress[t.ID]; len(rows) > 0 {
			last = rows[len(rows)-1].Timestamp
		}
		if time.Since(last) > grace {
			t.Status = store.TaskStatusPending
			f.nextProgressID++
			f.progress[t.ID] = append(f.progress[t.ID], store.ProgressEntry{
				ID:        f.nextProgressID,
				TaskID:    t.ID,
				AgentID:   t.AgentID,
				Message:   "recovered from stalled worker",
				Timestamp: time.Now(),
			})
			recovered = append(recovered, t.ID)
		}
	}
	return recovered, nil
}

func (f *Fake) CountPending(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.tasks {
		if t.Status == store.TaskStatusPending {
			n++
		}
	}
	return n, nil
}

func (f *Fake) AppendProgress(_ context.Context, taskID int64, agentID string, percent *float64, message string, data map[string]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextProgressID++
	f.progress[taskID] = append(f.progress[taskID], store.ProgressEntry{
		ID:              f.nextProgressID,
		TaskID:          taskID,
		AgentID:         agentID,
		ProgressPercent: percent,
		Message:         message,
		Data:            data,
		Timestamp:       time.Now(),
	})
	return f.nextProgressID, nil
}

func (f *Fake) ListProgress(_ context.Context, taskID int64, sinceID int64, limit int) ([]store.ProgressEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ProgressEntry
	for _, p := range f.progress[taskID] {
		if p.ID > sinceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Fake) MaxProgressPercent(_ context.Context, taskID int64) (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max *float64
	for _, p := range f.progress[taskID] {
		if p.ProgressPercent == nil {
			continue
		}
		if max == nil || *p.ProgressPercent > *max {
			v := *p.ProgressPercent
			max = &v
		}
	}
	return max, nil
}

func (f *Fake) LatestProgress(_ context.Context, limit int) ([]store.ProgressEntry, map[int64]*store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []store.ProgressEntry
	for _, rows := range f.progress {
		all = append(all, rows...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	tasks := make(map[int64]*store.Task)
	for _, p := range all {
		if t, ok := f.tasks[p.TaskID]; ok {
			copied := *t
			tasks[p.TaskID] = &copied
		}
	}
	return all, tasks, nil
}

func (f *Fake) LatestProgressForAgent(_ context.Context, agentID string, limit int) ([]store.ProgressEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ProgressEntry
	for _, rows := range f.progress {
		for _, p := range rows {
			if p.AgentID == agentID {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) RegisterArtifact(_ context.Context, a store.ArtifactMetadata) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.artifacts {
		if existing.ObjectPath == a.ObjectPath {
			return 0, store.Conflictf("object_path %s", a.ObjectPath)
		}
	}
	f.nextArtifactID++
	a.ID = f.nextArtifactID
	a.UploadedAt = time.Now()
	f.artifacts = append(f.artifacts, a)
	return a.ID, nil
}

func (f *Fake) GetArtifact(_ context.Context, artifactID int64) (*store.ArtifactMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.artifacts {
		if a.ID == artifactID {
			copied := a
			return &copied, nil
		}
	}
	return nil, store.NotFoundf("artifact %d", artifactID)
}

func (f *Fake) ListArtifacts(_ context.Context, filter store.ArtifactFilter) ([]store.ArtifactMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ArtifactMetadata
	for _, a := range f.artifacts {
		if filter.AgentID != "" && a.AgentID != filter.AgentID {
			continue
		}
		if filter.TaskID != nil && (a.TaskID == nil || *a.TaskID != *filter.TaskID) {
			continue
		}
		if filter.Bucket != "" && a.Bucket != filter.Bucket {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *Fake) UploadObject(_ context.Context, bucket, objectPath string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := bucket + "/" + objectPath
	if existing, ok := f.objects[key]; ok {
		if string(existing) == string(data) {
			return nil
		}
		return store.Conflictf("object %s exists with different content", key)
	}
	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *Fake) GetObject(_ context.Context, bucket, objectPath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+objectPath]
	if !ok {
		return nil, store.NotFoundf("object %s/%s", bucket, objectPath)
	}
	return append([]byte(nil), data...), nil
}

func (f *Fake) StatObject(_ context.Context, bucket, objectPath string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+objectPath]
	if !ok {
		return 0, store.NotFoundf("object %s/%s", bucket, objectPath)
	}
	return int64(len(data)), nil
}

func (f *Fake) PresignGet(_ context.Context, bucket, objectPath string, ttl time.Duration) (string, error) {
	return "http://minio.local/" + bucket + "/" + objectPath + "?signed", nil
}

func (f *Fake) AppendLog(_ context.Context, entry store.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entry)
	return nil
}

func (f *Fake) ListLogs(_ context.Context, limit int) ([]store.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]store.LogEntry(nil), f.logs...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) Ping(context.Context) error {
	if f.FailPing {
		return store.Unavailablef("injected ping failure")
	}
	return nil
}
