package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"agenthub/internal/store"
)

const progressColumns = `id, task_id, agent_id, progress_percent, message, data, timestamp`

func scanProgress(row interface{ Scan(...any) error }) (*store.ProgressEntry, error) {
	var p store.ProgressEntry
	var dataRaw []byte
	if err := row.Scan(&p.ID, &p.TaskID, &p.AgentID, &p.ProgressPercent, &p.Message, &dataRaw, &p.Timestamp); err != nil {
		return nil, err
	}
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &p.Data); err != nil {
			return nil, fmt.Errorf("decode progress data: %w", err)
		}
	}
	return &p, nil
}

// AppendProgress inserts one progress row. Rows are append-only; ids are
// allocated in insertion order so progress_id ordering matches wall order
// within one task.
func (s *Store) AppendProgress(ctx context.Context, taskID int64, agentID string, percent *float64, message string, data map[string]any) (int64, error) {
	if percent != nil && (*percent < 0 || *percent > 100) {
		return 0, store.Validationf("progress percent %v out of range", *percent)
	}

	var dataJSON []byte
	if data != nil {
		var err error
		dataJSON, err = json.Marshal(data)
		if err != nil {
			return 0, store.Validationf("encode progress data: %v", err)
		}
	}

	var progressID int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO task_progress (task_id, agent_id, progress_percent, message, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, taskID, agentID, percent, message, dataJSON).Scan(&progressID)
	if err != nil {
		return 0, wrapErr("append progress", err)
	}
	return progressID, nil
}

// ListProgress returns progress rows for a task ordered by id ascending,
// starting after sinceID.
func (s *Store) ListProgress(ctx context.Context, taskID int64, sinceID int64, limit int) ([]store.ProgressEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+progressColumns+`
		FROM task_progress
		WHERE task_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`, taskID, sinceID, limit)
	if err != nil {
		return nil, wrapErr("list progress", err)
	}
	defer rows.Close()

	var entries []store.ProgressEntry
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, wrapErr("list progress: scan", err)
		}
		entries = append(entries, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list progress: rows", err)
	}
	return entries, nil
}

// MaxProgressPercent returns the highest recorded percent for a task, or
// nil when no percent-bearing row exists.
func (s *Store) MaxProgressPercent(ctx context.Context, taskID int64) (*float64, error) {
	var max *float64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(progress_percent) FROM task_progress WHERE task_id = $1
	`, taskID).Scan(&max)
	if err != nil {
		return nil, wrapErr("max progress percent", err)
	}
	return max, nil
}

// LatestProgress returns the newest progress rows across all agents joined
// with their tasks.
func (s *Store) LatestProgress(ctx context.Context, limit int) ([]store.ProgressEntry, map[int64]*store.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.task_id, p.agent_id, p.progress_percent, p.message, p.data, p.timestamp,
		       t.id, t.agent_id, t.title, t.description, t.status, t.metadata, t.created_at, t.updated_at
		FROM task_progress p
		JOIN tasks t ON t.id = p.task_id
		ORDER BY p.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, nil, wrapErr("latest progress", err)
	}
	defer rows.Close()

	var entries []store.ProgressEntry
	tasks := make(map[int64]*store.Task)
	for rows.Next() {
		var p store.ProgressEntry
		var t store.Task
		var dataRaw, metaRaw []byte
		if err := rows.Scan(
			&p.ID, &p.TaskID, &p.AgentID, &p.ProgressPercent, &p.Message, &dataRaw, &p.Timestamp,
			&t.ID, &t.AgentID, &t.Title, &t.Description, &t.Status, &metaRaw, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, nil, wrapErr("latest progress: scan", err)
		}
		if len(dataRaw) > 0 {
			if err := json.Unmarshal(dataRaw, &p.Data); err != nil {
				return nil, nil, fmt.Errorf("decode progress data: %w", err)
			}
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &t.Metadata); err != nil {
				return nil, nil, fmt.Errorf("decode task metadata: %w", err)
			}
		}
		entries = append(entries, p)
		if _, ok := tasks[t.ID]; !ok {
			task := t
			tasks[t.ID] = &task
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, wrapErr("latest progress: rows", err)
	}
	return entries, tasks, nil
}

// LatestProgressForAgent returns the newest rows for one agent.
func (s *Store) LatestProgressForAgent(ctx context.Context, agentID string, limit int) ([]store.ProgressEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+progressColumns+`
		FROM task_progress
		WHERE agent_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, wrapErr("latest progress for agent", err)
	}
	defer rows.Close()

	var entries []store.ProgressEntry
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, wrapErr("latest progress for agent: scan", err)
		}
		entries = append(entries, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("latest progress for agent: rows", err)
	}
	return entries, nil
}
