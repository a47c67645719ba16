package hub

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"agenthub/internal/store"
	"agenthub/internal/store/storetest"
)

func TestSweeper_RecoversStalledTasks(t *testing.T) {
	fs := storetest.New()
	id := fs.AddTask("agent1", "stalled", "d", store.TaskStatusAssigned)
	fs.SetTaskUpdatedAt(id, time.Now().Add(-time.Hour))

	fresh := fs.AddTask("agent2", "fresh", "d", store.TaskStatusInProgress)

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewSweeper(fs, 10*time.Minute, time.Minute, log)
	s.sweep()

	if got := fs.Task(id).Status; got != store.TaskStatusPending {
		t.Errorf("stalled task status = %s, want pending", got)
	}
	if got := fs.Task(fresh).Status; got != store.TaskStatusInProgress {
		t.Errorf("fresh task status = %s, want untouched in_progress", got)
	}

	rows := fs.ProgressFor(id)
	if len(rows) != 1 || rows[0].Message != "recovered from stalled worker" {
		t.Errorf("recovery progress rows = %+v", rows)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	fs := storetest.New()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewSweeper(fs, 10*time.Minute, time.Minute, log)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
}
