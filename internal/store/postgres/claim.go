package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agenthub/internal/store"
)

// ClaimNextPending atomically claims the oldest pending task for agentID
// using SELECT ... FOR UPDATE SKIP LOCKED, so concurrent callers never
// observe the same row. Once a task is returned to any caller it is
// assigned and will never be returned again.
func (s *Store) ClaimNextPending(ctx context.Context, agentID string) (*store.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("claim: begin", err)
	}
	defer tx.Rollback()

	var taskID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM tasks
		WHERE agent_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, agentID, store.TaskStatusPending).Scan(&taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("claim: select", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = $2, agent_id = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+taskColumns+`
	`, taskID, store.TaskStatusAssigned, agentID)
	task, err := scanTask(row)
	if err != nil {
		return nil, wrapErr("claim: update", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("claim: commit", err)
	}
	return task, nil
}

// RecoverStalled resets tasks stuck in assigned or in_progress whose most
// recent progress row (falling back to updated_at when none exists) is older
// than grace. Each recovered task goes back to pending with a progress row
// recording the reset. Terminal tasks are never touched.
func (s *Store) RecoverStalled(ctx context.Context, grace time.Duration) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("recover: begin", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT t.id, t.agent_id
		FROM tasks t
		WHERE t.status IN ($1, $2)
		  AND COALESCE(
		        (SELECT MAX(p.timestamp) FROM task_progress p WHERE p.task_id = t.id),
		        t.updated_at
		      ) < NOW() - ($3 * INTERVAL '1 second')
		FOR UPDATE SKIP LOCKED
	`, store.TaskStatusAssigned, store.TaskStatusInProgress, grace.Seconds())
	if err != nil {
		return nil, wrapErr("recover: select", err)
	}

	type stalled struct {
		id      int64
		agentID string
	}
	var found []stalled
	for rows.Next() {
		var st stalled
		if err := rows.Scan(&st.id, &st.agentID); err != nil {
			rows.Close()
			return nil, wrapErr("recover: scan", err)
		}
		found = append(found, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapErr("recover: rows", err)
	}
	rows.Close()

	if len(found) == 0 {
		return nil, tx.Commit()
	}

	var recovered []int64
	for _, st := range found {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1
		`, st.id, store.TaskStatusPending); err != nil {
			return nil, wrapErr("recover: reset", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_progress (task_id, agent_id, progress_percent, message)
			VALUES ($1, $2, NULL, 'recovered from stalled worker')
		`, st.id, st.agentID); err != nil {
			return nil, wrapErr("recover: progress", err)
		}
		recovered = append(recovered, st.id)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("recover: commit", err)
	}
	return recovered, nil
}
