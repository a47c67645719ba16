package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"agenthub/internal/store"
	"agenthub/internal/store/storetest"
	"agenthub/internal/worker/driver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeDriver scripts one driver invocation.
type fakeDriver struct {
	stdout      string
	exitCode    int
	err         error
	delay       time.Duration
	screenshots []string // filenames written into the workdir before returning
	blockOnCtx  bool     // block until the context is cancelled
}

func (d *fakeDriver) Run(ctx context.Context, in driver.Input) (*driver.Result, error) {
	if d.blockOnCtx {
		<-ctx.Done()
		return nil, &driver.ExecutionError{Kind: driver.KindDriverRuntime, Err: ctx.Err()}
	}
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, &driver.ExecutionError{Kind: driver.KindDriverRuntime, Err: ctx.Err()}
		}
	}
	for _, name := range d.screenshots {
		path := filepath.Join(in.Workdir, "screenshots", name)
		if err := os.WriteFile(path, []byte("png-bytes-"+name), 0o644); err != nil {
			return nil, &driver.ExecutionError{Kind: driver.KindDriverRuntime, Err: err}
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return &driver.Result{Stdout: d.stdout, ExitCode: d.exitCode, Duration: 25 * time.Millisecond}, nil
}

func testConfig(root string) Config {
	return Config{
		AgentID:           "agent1-cua",
		PollInterval:      10 * time.Millisecond,
		TaskTimeout:       2 * time.Second,
		HeartbeatInterval: 20 * time.Millisecond,
		WorkdirRoot:       root,
		ShutdownGrace:     50 * time.Millisecond,
	}
}

func TestProcessTask_HappyPath(t *testing.T) {
	fs := storetest.New()
	id := fs.AddTask("agent1", "Task: print hello", "print hello", store.TaskStatusAssigned)

	stdout := "diag output\nAGENT_RESPONSE_START\nhello from the agent\nAGENT_RESPONSE_END\n"
	a := New(fs, &fakeDriver{stdout: stdout}, testConfig(t.TempDir()), testLogger())

	task := fs.Task(id)
	a.processTask(context.Background(), &task)

	final := fs.Task(id)
	if final.Status != store.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.Metadata.Response != "hello from the agent" {
		t.Errorf("response = %q, want extracted marker region", final.Metadata.Response)
	}
	if final.Metadata.LastAgent != "agent1" {
		t.Errorf("last_agent = %q, want agent1", final.Metadata.LastAgent)
	}
	if final.Metadata.Result["return_code"] != 0 {
		t.Errorf("result.return_code = %v, want 0", final.Metadata.Result["return_code"])
	}

	rows := fs.ProgressFor(id)
	if len(rows) < 2 {
		t.Fatalf("progress rows = %d, want >= 2", len(rows))
	}
	first, last := rows[0], rows[len(rows)-1]
	if first.Message != "task picked up" || first.ProgressPercent == nil || *first.ProgressPercent != 0 {
		t.Errorf("first progress = %+v, want percent 0 'task picked up'", first)
	}
	if last.ProgressPercent == nil || *last.ProgressPercent != 100 || !strings.Contains(last.Message, "completed") {
		t.Errorf("final progress = %+v, want percent 100 'completed'", last)
	}
}

func TestProcessTask_DriverTimeout(t *testing.T) {
	fs := storetest.New()
	id := fs.AddTask("agent1", "slow", "sleep forever", store.TaskStatusAssigned)

	a := New(fs, &fakeDriver{err: driver.ErrTimeout}, testConfig(t.TempDir()), testLogger())
	task := fs.Task(id)
	a.processTask(context.Background(), &task)

	final := fs.Task(id)
	if final.Status != store.TaskStatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	errMsg, _ := final.Metadata.Result["error"].(string)
	if !strings.Contains(errMsg, "timeout") {
		t.Errorf("result.error = %q, want to mention timeout", errMsg)
	}

	rows := fs.ProgressFor(id)
	last := rows[len(rows)-1]
	if !strings.Contains(last.Message, "failed") {
		t.Errorf("final progress = %q, want failure message", last.Message)
	}
}

func TestProcessTask_ScreenshotUpload(t *testing.T) {
	fs := storetest.New()
	id := fs.AddTask("agent1", "shots", "take screenshots", store.TaskStatusAssigned)

	d := &fakeDriver{stdout: "ok", screenshots: []string{"shot_001.png", "shot_002.png"}}
	a := New(fs, d, testConfig(t.TempDir()), testLogger())
	task := fs.Task(id)
	a.processTask(context.Background(), &task)

	artifacts, err := fs.ListArtifacts(context.Background(), store.ArtifactFilter{AgentID: "agent1"})
	if err != nil {
		t.Fatalf("ListArtifacts failed: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(artifacts))
	}
	for _, a := range artifacts {
		if !strings.HasPrefix(a.ObjectPath, "agent1/") {
			t.Errorf("object path %q not under agent1/", a.ObjectPath)
		}
		if a.Bucket != store.BucketScreenshots {
			t.Errorf("bucket = %q, want screenshots", a.Bucket)
		}
		if data, err := fs.GetObject(context.Background(), a.Bucket, a.ObjectPath); err != nil || len(data) == 0 {
			t.Errorf("object %s not retrievable: %v", a.ObjectPath, err)
		}
	}

	var uploadRows int
	for _, p := range fs.ProgressFor(id) {
		if strings.HasPrefix(p.Message, "uploaded screenshot: ") {
			uploadRows++
		}
	}
	if uploadRows != 2 {
		t.Errorf("upload progress rows = %d, want 2", uploadRows)
	}

	if fs.Task(id).Metadata.Result["screenshots"] != 2 {
		t.Errorf("result.screenshots = %v, want 2", fs.Task(id).Metadata.Result["screenshots"])
	}
}

func TestProcessTask_ExternalCancel(t *testing.T) {
	fs := storetest.New()
	id := fs.AddTask("agent1", "cancel me", "long task", store.TaskStatusAssigned)

	a := New(fs, &fakeDriver{blockOnCtx: true}, testConfig(t.TempDir()), testLogger())

	// flip the task to cancelled shortly after the driver starts
	go func() {
		time.Sleep(30 * time.Millisecond)
		fs.SetTaskStatus(id, store.TaskStatusCancelled)
	}()

	task := fs.Task(id)
	done := make(chan struct{})
	go func() {
		a.processTask(context.Background(), &task)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processTask did not finish after cancel")
	}

	final := fs.Task(id)
	if final.Status != store.TaskStatusCancelled {
		t.Errorf("status = %s, want cancelled to stick", final.Status)
	}
	rows := fs.ProgressFor(id)
	last := rows[len(rows)-1]
	if !strings.Contains(last.Message, "cancelled") {
		t.Errorf("final progress = %q, want cancelled reason", last.Message)
	}
}

func TestProcessTask_ShutdownGraceExceeded(t *testing.T) {
	fs := storetest.New()
	id := fs.AddTask("agent1", "shutdown", "long task", store.TaskStatusAssigned)

	a := New(fs, &fakeDriver{blockOnCtx: true}, testConfig(t.TempDir()), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	task := fs.Task(id)
	done := make(chan struct{})
	go func() {
		a.processTask(ctx, &task)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processTask did not finish after shutdown")
	}

	final := fs.Task(id)
	if final.Status != store.TaskStatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	errMsg, _ := final.Metadata.Result["error"].(string)
	if errMsg != "shutdown" {
		t.Errorf("result.error = %q, want shutdown", errMsg)
	}
}

func TestProcessTask_HeartbeatCarriesLastPercent(t *testing.T) {
	fs := storetest.New()
	id := fs.AddTask("agent1", "slowish", "task", store.TaskStatusAssigned)

	cfg := testConfig(t.TempDir())
	cfg.HeartbeatInterval = 15 * time.Millisecond
	a := New(fs, &fakeDriver{stdout: "ok", delay: 120 * time.Millisecond}, cfg, testLogger())

	task := fs.Task(id)
	a.processTask(context.Background(), &task)

	var heartbeats int
	for _, p := range fs.ProgressFor(id) {
		if p.Message == "working..." {
			heartbeats++
			if p.ProgressPercent == nil || *p.ProgressPercent != 0 {
				t.Errorf("heartbeat percent = %v, want last known 0", p.ProgressPercent)
			}
		}
	}
	if heartbeats == 0 {
		t.Error("no heartbeat rows written during a slow driver call")
	}
}

func TestProcessTask_FinalWriteRetriesThenFails(t *testing.T) {
	fs := storetest.New()
	id := fs.AddTask("agent1", "flaky", "task", store.TaskStatusAssigned)
	fs.FailResponse = 10 // beyond retry budget

	a := New(fs, &fakeDriver{stdout: "ok"}, testConfig(t.TempDir()), testLogger())
	task := fs.Task(id)
	a.processTask(context.Background(), &task)

	final := fs.Task(id)
	if final.Status != store.TaskStatusFailed {
		t.Errorf("status = %s, want failed after persistence exhaustion", final.Status)
	}
	var found bool
	for _, p := range fs.ProgressFor(id) {
		if p.Message == "response persistence failed" {
			found = true
		}
	}
	if !found {
		t.Error("missing 'response persistence failed' progress row")
	}
	if fs.ResponseCalls < 3 {
		t.Errorf("response write attempts = %d, want >= 3", fs.ResponseCalls)
	}
}

func TestRun_ClaimsAndCompletesSubmittedTask(t *testing.T) {
	fs := storetest.New()
	id, err := fs.CreateTask(context.Background(), "frontend", "Task: print hello", "print hello", store.TaskMetadata{}, 1)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	stdout := "AGENT_RESPONSE_START\nhello\nAGENT_RESPONSE_END"
	a := New(fs, &fakeDriver{stdout: stdout}, testConfig(t.TempDir()), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	deadline := time.After(5 * time.Second)
	for fs.Task(id).Status != store.TaskStatusCompleted {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("task never completed, status %s", fs.Task(id).Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-a.Done()

	final := fs.Task(id)
	if final.Metadata.Response != "hello" {
		t.Errorf("response = %q, want hello", final.Metadata.Response)
	}
	if final.AgentID != "agent1" {
		t.Errorf("agent_id = %q, want claiming worker agent1", final.AgentID)
	}
}

func TestConcurrentClaims_NoDuplicates(t *testing.T) {
	fs := storetest.New()
	const total = 100
	for i := 0; i < total; i++ {
		fs.AddTask("agent1", fmt.Sprintf("t%d", i), "d", store.TaskStatusPending)
	}

	var mu sync.Mutex
	seen := make(map[int64]int)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := fs.ClaimNextPending(context.Background(), "agent1")
				if err != nil {
					t.Errorf("claim error: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				seen[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Errorf("claimed %d distinct tasks, want %d", len(seen), total)
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("task %d claimed %d times", id, count)
		}
	}
}

func TestRun_StartupSweepRecoversStalled(t *testing.T) {
	fs := storetest.New()
	id := fs.AddTask("agent1", "stalled", "d", store.TaskStatusInProgress)
	fs.SetTaskUpdatedAt(id, time.Now().Add(-time.Hour))

	cfg := testConfig(t.TempDir())
	cfg.StaleGrace = time.Minute
	stdout := "AGENT_RESPONSE_START\ndone\nAGENT_RESPONSE_END"
	a := New(fs, &fakeDriver{stdout: stdout}, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	deadline := time.After(5 * time.Second)
	for fs.Task(id).Status != store.TaskStatusCompleted {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("recovered task never completed, status %s", fs.Task(id).Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-a.Done()

	var recovered bool
	for _, p := range fs.ProgressFor(id) {
		if p.Message == "recovered from stalled worker" {
			recovered = true
		}
	}
	if !recovered {
		t.Error("missing recovery progress row")
	}
}
