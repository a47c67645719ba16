// Package worker contains the per-agent loop that claims tasks, executes
// them through the driver adapter and streams progress and artifacts back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agenthub/internal/agentid"
	"agenthub/internal/store"
	"agenthub/internal/worker/driver"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config holds configuration for one worker agent.
type Config struct {
	AgentID           string        // raw id; normalized in New
	PollInterval      time.Duration // idle claim interval (default 5s)
	TaskTimeout       time.Duration // driver wall-clock budget (default 300s)
	HeartbeatInterval time.Duration // progress pump tick (default 10s)
	StaleGrace        time.Duration // sweeper grace on startup (default 2x timeout)
	WorkdirRoot       string
	FinalizeRetries   int           // terminal write attempts (default 3)
	ShutdownGrace     time.Duration // wait for the in-flight task on SIGTERM (default 60s)
}

// Agent is the long-running worker bound to one normalized agent id. Exactly
// one Agent may exist per agent id process-wide; tasks are processed one at
// a time.
type Agent struct {
	storage store.Storage
	driver  driver.Driver
	config  Config
	log     *slog.Logger
	done    chan struct{}
}

type driverOutcome struct {
	result *driver.Result
	err    error
}

// New creates a worker agent. The raw agent id is normalized here; every
// path and row the agent writes carries the normalized form.
func New(s store.Storage, d driver.Driver, config Config, log *slog.Logger) *Agent {
	config.AgentID = agentid.Normalize(config.AgentID)
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 300 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 10 * time.Second
	}
	if config.StaleGrace <= 0 {
		config.StaleGrace = 2 * config.TaskTimeout
	}
	if config.WorkdirRoot == "" {
		config.WorkdirRoot = os.TempDir()
	}
	if config.FinalizeRetries <= 0 {
		config.FinalizeRetries = 3
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = 60 * time.Second
	}

	return &Agent{
		storage: s,
		driver:  d,
		config:  config,
		log:     log.With("agent_id", config.AgentID),
		done:    make(chan struct{}),
	}
}

// Run starts the claim loop. It blocks until the context is cancelled; the
// in-flight task is given ShutdownGrace to finalize before being failed
// with reason "shutdown".
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)

	// Recover anything a previous incarnation of this worker left behind.
	if recovered, err := a.storage.RecoverStalled(ctx, a.config.StaleGrace); err != nil {
		a.log.Error("startup sweep failed", "error", err)
	} else if len(recovered) > 0 {
		a.log.Info("recovered stalled tasks", "task_ids", recovered)
	}

	a.writeLog(ctx, nil, store.LogLevelInfo, fmt.Sprintf("agent worker started (agent_id=%s)", a.config.AgentID), nil)
	a.log.Info("agent worker started", "poll_interval", a.config.PollInterval)

	for {
		select {
		case <-ctx.Done():
			a.writeLog(context.Background(), nil, store.LogLevelInfo, "agent worker stopped", nil)
			a.log.Info("agent worker stopped")
			return ctx.Err()
		default:
		}

		task, err := a.storage.ClaimNextPending(ctx, a.config.AgentID)
		if err != nil {
			if ctx.Err() == nil {
				a.log.Error("claim failed", "error", err)
				a.writeLog(ctx, nil, store.LogLevelError, "claim failed: "+err.Error(), nil)
			}
			a.sleep(ctx, a.config.PollInterval)
			continue
		}
		if task == nil {
			a.sleep(ctx, a.config.PollInterval)
			continue
		}

		a.processTask(ctx, task)
	}
}

// Done returns a channel closed once the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

func (a *Agent) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// processTask drives one claimed task through preparing, running, uploading
// and finalize. It never returns an error: every failure path ends in either
// a terminal task write or the task left assigned for the sweeper.
func (a *Agent) processTask(ctx context.Context, task *store.Task) {
	tracer := otel.Tracer("agenthub-worker")
	spanCtx, span := tracer.Start(ctx, "process_task",
		trace.WithAttributes(
			attribute.Int64("task.id", task.ID),
			attribute.String("agent.id", a.config.AgentID),
			attribute.String("task.title", task.Title),
		),
	)
	defer span.End()

	a.log.Info("task picked up", "task_id", task.ID, "title", task.Title)
	a.writeLog(spanCtx, &task.ID, store.LogLevelInfo, "task picked: "+task.Title, map[string]any{"task_id": task.ID})

	// Preparing. Infra failures here leave the task assigned so the sweeper
	// can requeue it instead of dead-lettering on a transient outage.
	wd, err := PrepareWorkdir(a.config.WorkdirRoot, a.config.AgentID, task.ID, time.Now())
	if err != nil {
		span.RecordError(err)
		a.log.Error("workdir setup failed, leaving task for sweeper", "task_id", task.ID, "error", err)
		a.writeLog(spanCtx, &task.ID, store.LogLevelError, "workdir setup failed: "+err.Error(), nil)
		return
	}
	defer func() {
		if err := wd.Cleanup(); err != nil {
			a.log.Warn("workdir cleanup failed", "workdir", wd.Path, "error", err)
		}
	}()

	zero := 0.0
	if _, err := a.storage.AppendProgress(spanCtx, task.ID, a.config.AgentID, &zero, "task picked up", nil); err != nil {
		span.RecordError(err)
		a.log.Error("initial progress write failed, leaving task for sweeper", "task_id", task.ID, "error", err)
		return
	}
	if err := a.storage.UpdateTaskStatus(spanCtx, task.ID, store.TaskStatusInProgress, a.config.AgentID, nil); err != nil {
		span.RecordError(err)
		a.log.Error("transition to in_progress failed, leaving task for sweeper", "task_id", task.ID, "error", err)
		return
	}

	// Running. The driver gets its own cancelable context so a cancel flag
	// or shutdown can stop it without tearing down finalize writes.
	execCtx, cancelExec := context.WithCancel(context.Background())
	defer cancelExec()

	outcomeCh := make(chan driverOutcome, 1)
	go func() {
		res, err := a.driver.Run(execCtx, driver.Input{
			TaskText: task.Description,
			Workdir:  wd.Path,
			Timeout:  a.config.TaskTimeout,
		})
		outcomeCh <- driverOutcome{result: res, err: err}
	}()

	outcome, cancelled, shutdown := a.pumpProgress(ctx, task.ID, outcomeCh, cancelExec)

	// Finalize writes run on a detached context: a shutdown must not strand
	// the task mid-terminal-write.
	finCtx, cancelFin := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelFin()

	switch {
	case cancelled:
		a.finalize(finCtx, task, "", store.TaskStatusCancelled, "cancelled", map[string]any{"error": "cancelled"}, 0)
	case shutdown:
		a.finalize(finCtx, task, "", store.TaskStatusFailed, "shutdown", map[string]any{"error": "shutdown"}, 0)
	case errors.Is(outcome.err, driver.ErrTimeout):
		reason := fmt.Sprintf("driver timeout after %s", a.config.TaskTimeout)
		a.writeLog(finCtx, &task.ID, store.LogLevelError, reason, nil)
		a.finalize(finCtx, task, "", store.TaskStatusFailed, reason, map[string]any{"error": reason}, 0)
	case outcome.err != nil:
		span.RecordError(outcome.err)
		reason := outcome.err.Error()
		a.writeLog(finCtx, &task.ID, store.LogLevelError, "driver failed: "+reason, nil)
		a.finalize(finCtx, task, "", store.TaskStatusFailed, reason, map[string]any{"error": reason}, 0)
	default:
		res := outcome.result
		span.SetAttributes(attribute.Int("driver.exit_code", res.ExitCode))
		a.writeLog(finCtx, &task.ID, store.LogLevelInfo,
			fmt.Sprintf("driver completed (exit_code=%d, duration=%s)", res.ExitCode, res.Duration.Round(time.Millisecond)),
			map[string]any{"exit_code": res.ExitCode, "stdout_length": len(res.Stdout)})

		uploaded := a.uploadScreenshots(finCtx, task, wd)

		response := ExtractResponse(res.Stdout)
		if response == "" {
			response = fmt.Sprintf("Task completed (return_code=%d, duration=%s, screenshots=%d)",
				res.ExitCode, res.Duration.Round(time.Millisecond), uploaded)
		}

		result := map[string]any{
			"return_code": res.ExitCode,
			"duration_ms": res.Duration.Milliseconds(),
			"screenshots": uploaded,
		}
		if res.ExitCode == 0 {
			a.finalize(finCtx, task, response, store.TaskStatusCompleted, "", result, uploaded)
		} else {
			reason := fmt.Sprintf("exit code %d", res.ExitCode)
			result["error"] = reason
			a.finalize(finCtx, task, response, store.TaskStatusFailed, reason, result, uploaded)
		}
	}
}

// pumpProgress runs while the driver call is outstanding. Every heartbeat
// tick it either notices an external cancel flag or appends one heartbeat
// row with the last known percent; the appends are serialized here so at
// most one progress write is in flight per worker.
func (a *Agent) pumpProgress(ctx context.Context, taskID int64, outcomeCh <-chan driverOutcome, cancelExec context.CancelFunc) (outcome driverOutcome, cancelled, shutdown bool) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	ctxDone := ctx.Done()
	var shutdownTimer <-chan time.Time

	for {
		select {
		case outcome = <-outcomeCh:
			return outcome, cancelled, shutdown

		case <-ticker.C:
			pumpCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			current, err := a.storage.GetTask(pumpCtx, taskID)
			if err == nil && current.Status == store.TaskStatusCancelled {
				cancel()
				a.log.Info("task cancelled externally, stopping driver", "task_id", taskID)
				cancelExec()
				cancelled = true
				outcome = <-outcomeCh
				return outcome, cancelled, shutdown
			}

			percent, err := a.storage.MaxProgressPercent(pumpCtx, taskID)
			if err != nil {
				a.log.Warn("heartbeat percent read failed", "task_id", taskID, "error", err)
				cancel()
				continue
			}
			if _, err := a.storage.AppendProgress(pumpCtx, taskID, a.config.AgentID, percent, "working...", nil); err != nil {
				a.log.Warn("heartbeat progress write failed", "task_id", taskID, "error", err)
			}
			cancel()

		case <-ctxDone:
			// Shutdown requested: give the task the grace window, then kill
			// the driver and fail with reason shutdown.
			ctxDone = nil
			shutdownTimer = time.After(a.config.ShutdownGrace)
			a.log.Info("shutdown requested, waiting for in-flight task", "task_id", taskID, "grace", a.config.ShutdownGrace)

		case <-shutdownTimer:
			cancelExec()
			shutdown = true
			outcome = <-outcomeCh
			return outcome, cancelled, shutdown
		}
	}
}

// uploadScreenshots diffs the screenshots directory against the baseline and
// uploads each new file: blob first, then the metadata row, then a progress
// row. Failures are per-file and non-fatal.
func (a *Agent) uploadScreenshots(ctx context.Context, task *store.Task, wd *Workdir) int {
	names, err := wd.NewScreenshots()
	if err != nil {
		a.log.Warn("screenshot diff failed", "task_id", task.ID, "error", err)
		return 0
	}

	uploaded := 0
	for _, name := range names {
		fullPath := filepath.Join(wd.ScreenshotsDir(), name)
		data, err := os.ReadFile(fullPath)
		if err != nil {
			a.log.Warn("screenshot read failed", "file", name, "error", err)
			continue
		}
		if len(data) == 0 {
			a.log.Warn("skipping empty screenshot", "file", name)
			continue
		}

		objectPath := a.objectPath(name)
		contentType := contentTypeFor(name)

		if err := a.storage.UploadObject(ctx, store.BucketScreenshots, objectPath, data, contentType); err != nil {
			a.log.Warn("screenshot upload failed", "file", name, "error", err)
			a.writeLog(ctx, &task.ID, store.LogLevelWarning,
				fmt.Sprintf("failed to upload screenshot %s: %v", name, err), nil)
			continue
		}

		if size, err := a.storage.StatObject(ctx, store.BucketScreenshots, objectPath); err != nil {
			a.log.Warn("screenshot verification failed", "object_path", objectPath, "error", err)
		} else if size != int64(len(data)) {
			a.log.Warn("screenshot size mismatch after upload", "object_path", objectPath, "stored", size, "local", len(data))
		}

		if _, err := a.storage.RegisterArtifact(ctx, store.ArtifactMetadata{
			AgentID:     a.config.AgentID,
			TaskID:      &task.ID,
			Bucket:      store.BucketScreenshots,
			ObjectPath:  objectPath,
			ContentType: contentType,
			SizeBytes:   int64(len(data)),
			Metadata:    map[string]any{"filename": name},
		}); err != nil {
			a.log.Warn("artifact metadata write failed", "object_path", objectPath, "error", err)
			continue
		}

		if _, err := a.storage.AppendProgress(ctx, task.ID, a.config.AgentID, nil,
			"uploaded screenshot: "+objectPath, nil); err != nil {
			a.log.Warn("upload progress write failed", "object_path", objectPath, "error", err)
		}

		a.writeLog(ctx, &task.ID, store.LogLevelInfo, "screenshot uploaded: "+objectPath,
			map[string]any{"filename": name, "object_path": objectPath, "size_bytes": len(data)})
		uploaded++
	}
	return uploaded
}

// finalize merges the response into task metadata, appends the terminal
// progress row and moves the task to its terminal status, retrying each
// write on transient storage failures. A task already cancelled externally
// keeps its status; only its response metadata is merged.
func (a *Agent) finalize(ctx context.Context, task *store.Task, response string, status store.TaskStatus, reason string, result map[string]any, uploaded int) {
	if response == "" && reason != "" {
		response = "failed: " + reason
	}

	if err := a.retryStorage(ctx, func() error {
		return a.storage.UpdateTaskResponse(ctx, task.ID, a.config.AgentID, response)
	}); err != nil {
		a.log.Error("response persistence failed", "task_id", task.ID, "error", err)
		if _, perr := a.storage.AppendProgress(ctx, task.ID, a.config.AgentID, nil, "response persistence failed", nil); perr != nil {
			a.log.Error("could not record response persistence failure", "task_id", task.ID, "error", perr)
		}
		status = store.TaskStatusFailed
		if reason == "" {
			reason = "response persistence failed"
		}
	}

	message := "completed"
	if status != store.TaskStatusCompleted {
		message = "failed: " + reason
	}
	hundred := 100.0
	if err := a.retryStorage(ctx, func() error {
		_, err := a.storage.AppendProgress(ctx, task.ID, a.config.AgentID, &hundred, message, nil)
		return err
	}); err != nil {
		a.log.Error("final progress write failed", "task_id", task.ID, "error", err)
	}

	metadata := &store.TaskMetadata{
		LastAgent: a.config.AgentID,
		Result:    result,
	}
	if err := a.retryStorage(ctx, func() error {
		err := a.storage.UpdateTaskStatus(ctx, task.ID, status, a.config.AgentID, metadata)
		if errors.Is(err, store.ErrConflict) {
			// Already terminal (external cancel won the race). The response
			// merge above is all that was still allowed.
			return nil
		}
		return err
	}); err != nil {
		a.log.Error("terminal status write failed", "task_id", task.ID, "status", status, "error", err)
		return
	}

	a.log.Info("task finalized", "task_id", task.ID, "status", status, "screenshots", uploaded)
	a.writeLog(ctx, &task.ID, store.LogLevelInfo,
		fmt.Sprintf("task finalized (status=%s, screenshots=%d)", status, uploaded), nil)
}

// retryStorage retries fn on transient storage failures with exponential
// backoff. Non-transient errors are returned immediately.
func (a *Agent) retryStorage(ctx context.Context, fn func() error) error {
	var err error
	delay := 500 * time.Millisecond
	for attempt := 0; attempt < a.config.FinalizeRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, store.ErrUnavailable) {
			return err
		}
		if attempt == a.config.FinalizeRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// writeLog appends to the log store best-effort; the log store is
// diagnostics only and must never fail a task.
func (a *Agent) writeLog(ctx context.Context, taskID *int64, level store.LogLevel, message string, metadata map[string]any) {
	entry := store.LogEntry{
		AgentID:   a.config.AgentID,
		TaskID:    taskID,
		Level:     level,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.storage.AppendLog(ctx, entry); err != nil {
		a.log.Warn("log store write failed", "error", err)
	}
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

func (a *Agent) objectPath(filename string) string {
	return store.NewObjectPath(a.config.AgentID, filename)
}
