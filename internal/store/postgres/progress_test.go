package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"agenthub/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func progressRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "task_id", "agent_id", "progress_percent", "message", "data", "timestamp",
	})
}

func TestAppendProgress_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	percent := 50.0
	mock.ExpectQuery(`INSERT INTO task_progress`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, err := s.AppendProgress(context.Background(), 1, "agent1", &percent, "halfway", nil)
	if err != nil {
		t.Fatalf("AppendProgress failed: %v", err)
	}
	if id != 11 {
		t.Errorf("got id %d, want 11", id)
	}
}

func TestAppendProgress_RejectsOutOfRangePercent(t *testing.T) {
	s, _ := newMockStore(t)
	defer s.db.Close()

	for _, p := range []float64{-1, 100.5} {
		percent := p
		_, err := s.AppendProgress(context.Background(), 1, "agent1", &percent, "bad", nil)
		if !errors.Is(err, store.ErrValidation) {
			t.Errorf("percent %v: got %v, want ErrValidation", p, err)
		}
	}
}

func TestListProgress_OrderedAscending(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	percent := 100.0
	mock.ExpectQuery(`SELECT .+ FROM task_progress\s+WHERE task_id = \$1 AND id > \$2\s+ORDER BY id ASC`).
		WithArgs(int64(1), int64(0), 50).
		WillReturnRows(progressRows().
			AddRow(int64(1), int64(1), "agent1", nil, "task picked up", nil, now).
			AddRow(int64(2), int64(1), "agent1", &percent, "completed", nil, now))

	entries, err := s.ListProgress(context.Background(), 1, 0, 0)
	if err != nil {
		t.Fatalf("ListProgress failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ProgressPercent != nil {
		t.Errorf("first entry percent = %v, want nil", *entries[0].ProgressPercent)
	}
	if entries[1].ProgressPercent == nil || *entries[1].ProgressPercent != 100 {
		t.Errorf("second entry percent = %v, want 100", entries[1].ProgressPercent)
	}
}

func TestMaxProgressPercent_NoRows(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT MAX\(progress_percent\) FROM task_progress`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	max, err := s.MaxProgressPercent(context.Background(), 1)
	if err != nil {
		t.Fatalf("MaxProgressPercent failed: %v", err)
	}
	if max != nil {
		t.Errorf("got %v, want nil", *max)
	}
}

func TestLatestProgress_JoinsTasks(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	joined := sqlmock.NewRows([]string{
		"id", "task_id", "agent_id", "progress_percent", "message", "data", "timestamp",
		"t_id", "t_agent_id", "title", "description", "status", "metadata", "created_at", "updated_at",
	}).AddRow(
		int64(9), int64(3), "agent2", nil, "working...", nil, now,
		int64(3), "agent2", "Task: hi", "hi", "in_progress", []byte(`{}`), now, now,
	)
	mock.ExpectQuery(`FROM task_progress p\s+JOIN tasks t ON t\.id = p\.task_id`).
		WithArgs(25).
		WillReturnRows(joined)

	entries, tasks, err := s.LatestProgress(context.Background(), 25)
	if err != nil {
		t.Fatalf("LatestProgress failed: %v", err)
	}
	if len(entries) != 1 || entries[0].TaskID != 3 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if tasks[3] == nil || tasks[3].Title != "Task: hi" {
		t.Errorf("task join missing: %+v", tasks)
	}
}
