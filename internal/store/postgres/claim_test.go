package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"agenthub/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

// The claim SQL must lock with SKIP LOCKED, filter on the caller's agent id
// and pending status, and order oldest-first with id as tie-break. sqlmock
// is used to verify the generated SQL, not queue semantics.
func TestClaimNextPending_QueryStructure(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id\s+FROM tasks\s+WHERE agent_id = \$1 AND status = \$2\s+ORDER BY created_at ASC, id ASC\s+FOR UPDATE SKIP LOCKED\s+LIMIT 1`).
		WithArgs("agent1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectQuery(`UPDATE tasks\s+SET status = \$2, agent_id = \$3, updated_at = NOW\(\)`).
		WithArgs(int64(4), "assigned", "agent1").
		WillReturnRows(taskRows().AddRow(
			int64(4), "agent1", "t", "d", "assigned", []byte(`{}`), now, now,
		))
	mock.ExpectCommit()

	task, err := s.ClaimNextPending(context.Background(), "agent1")
	if err != nil {
		t.Fatalf("ClaimNextPending failed: %v", err)
	}
	if task == nil || task.ID != 4 {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.Status != store.TaskStatusAssigned {
		t.Errorf("status = %s, want assigned", task.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimNextPending_Empty(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id`).
		WithArgs("agent1", "pending").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	task, err := s.ClaimNextPending(context.Background(), "agent1")
	if err != nil {
		t.Fatalf("ClaimNextPending failed: %v", err)
	}
	if task != nil {
		t.Errorf("expected nil task, got %+v", task)
	}
}

func TestRecoverStalled_ResetsAndLogsProgress(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT t\.id, t\.agent_id\s+FROM tasks t`).
		WithArgs("assigned", "in_progress", float64(600)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "agent_id"}).
			AddRow(int64(2), "agent1").
			AddRow(int64(5), "agent2"))
	mock.ExpectExec(`UPDATE tasks SET status`).
		WithArgs(int64(2), "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO task_progress`).
		WithArgs(int64(2), "agent1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE tasks SET status`).
		WithArgs(int64(5), "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO task_progress`).
		WithArgs(int64(5), "agent2").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	recovered, err := s.RecoverStalled(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("RecoverStalled failed: %v", err)
	}
	if len(recovered) != 2 || recovered[0] != 2 || recovered[1] != 5 {
		t.Errorf("recovered = %v, want [2 5]", recovered)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRecoverStalled_NothingStalled(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT t\.id, t\.agent_id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "agent_id"}))
	mock.ExpectCommit()

	recovered, err := s.RecoverStalled(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("RecoverStalled failed: %v", err)
	}
	if len(recovered) != 0 {
		t.Errorf("recovered = %v, want empty", recovered)
	}
}
