package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agenthub/internal/store"
)

const taskColumns = `id, agent_id, title, description, status, metadata, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*store.Task, error) {
	var t store.Task
	var metaRaw []byte
	if err := row.Scan(&t.ID, &t.AgentID, &t.Title, &t.Description, &t.Status, &metaRaw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode task metadata: %w", err)
		}
	}
	return &t, nil
}

// CreateTask inserts a pending task. With agentCount > 0 the nominal agent
// is derived from the fresh id (agent_{1 + (id mod N)}) and written to both
// agent_id and metadata.assigned_agent_id before the transaction commits, so
// a worker can never observe the task without its assignment.
func (s *Store) CreateTask(ctx context.Context, agentID, title, description string, metadata store.TaskMetadata, agentCount int) (int64, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, store.Validationf("encode metadata: %v", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapErr("create task: begin", err)
	}
	defer tx.Rollback()

	var taskID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tasks (agent_id, title, description, status, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, agentID, title, description, store.TaskStatusPending, metaJSON).Scan(&taskID)
	if err != nil {
		return 0, wrapErr("create task", err)
	}

	if agentCount > 0 {
		assigned := fmt.Sprintf("agent%d", 1+taskID%int64(agentCount))
		_, err = tx.ExecContext(ctx, `
			UPDATE tasks
			SET agent_id = $1,
			    metadata = metadata || jsonb_build_object('assigned_agent_id', $1::text),
			    updated_at = NOW()
			WHERE id = $2
		`, assigned, taskID)
		if err != nil {
			return 0, wrapErr("create task: assign agent", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapErr("create task: commit", err)
	}
	return taskID, nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, taskID int64) (*store.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("task %d", taskID)
		}
		return nil, wrapErr("get task", err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, newest first, plus the total
// count ignoring limit/offset.
func (s *Store) ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		where += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr("count tasks", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT `+taskColumns+` FROM tasks %s ORDER BY created_at DESC, id DESC LIMIT $%d`, where, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapErr("list tasks", err)
	}
	defer rows.Close()

	var tasks []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, wrapErr("list tasks: scan", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr("list tasks: rows", err)
	}
	return tasks, total, nil
}

// UpdateTaskStatus moves a task through the state machine under a row lock,
// merging metadata keys into the existing JSONB value.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID int64, status store.TaskStatus, agentID string, metadata *store.TaskMetadata) error {
	if !status.Known() {
		return store.Validationf("unknown status %q", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("update status: begin", err)
	}
	defer tx.Rollback()

	var current store.TaskStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.NotFoundf("task %d", taskID)
		}
		return wrapErr("update status: lock", err)
	}

	if !store.ValidTransition(current, status) {
		return store.Conflictf("task %d: %s -> %s", taskID, current, status)
	}

	set := `status = $2, updated_at = NOW()`
	args := []any{taskID, status}
	if agentID != "" {
		args = append(args, agentID)
		set += fmt.Sprintf(", agent_id = $%d", len(args))
	}
	if metadata != nil {
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return store.Validationf("encode metadata: %v", err)
		}
		args = append(args, metaJSON)
		set += fmt.Sprintf(", metadata = metadata || $%d::jsonb", len(args))
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET `+set+` WHERE id = $1`, args...); err != nil {
		return wrapErr("update status", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("update status: commit", err)
	}
	return nil
}

// UpdateTaskResponse merges the final response text into task metadata.
// Valid for terminal tasks: response fields and updated_at are the only
// mutable state after a terminal write.
func (s *Store) UpdateTaskResponse(ctx context.Context, taskID int64, agentID, response string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET metadata = metadata || jsonb_build_object(
		        'response', $2::text,
		        'last_agent', $3::text,
		        'response_updated_at', $4::text),
		    updated_at = NOW()
		WHERE id = $1
	`, taskID, response, agentID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return wrapErr("update response", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("update response: rows affected", err)
	}
	if n == 0 {
		return store.NotFoundf("task %d", taskID)
	}
	return nil
}

// CountPending returns the number of pending tasks.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status = $1`, store.TaskStatusPending).Scan(&n); err != nil {
		return 0, wrapErr("count pending", err)
	}
	return n, nil
}
