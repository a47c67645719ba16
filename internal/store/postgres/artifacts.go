package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"agenthub/internal/store"
)

const artifactColumns = `id, agent_id, task_id, bucket, object_path, content_type, size_bytes, metadata, uploaded_at`

func scanArtifact(row interface{ Scan(...any) error }) (*store.ArtifactMetadata, error) {
	var a store.ArtifactMetadata
	var metaRaw []byte
	if err := row.Scan(&a.ID, &a.AgentID, &a.TaskID, &a.Bucket, &a.ObjectPath, &a.ContentType, &a.SizeBytes, &metaRaw, &a.UploadedAt); err != nil {
		return nil, err
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode artifact metadata: %w", err)
		}
	}
	return &a, nil
}

// RegisterArtifact inserts one artifact metadata row. object_path is unique
// across all artifacts; a duplicate returns ErrConflict.
func (s *Store) RegisterArtifact(ctx context.Context, a store.ArtifactMetadata) (int64, error) {
	if a.Bucket == "" || a.ObjectPath == "" {
		return 0, store.Validationf("artifact bucket and object_path are required")
	}

	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return 0, store.Validationf("encode artifact metadata: %v", err)
	}
	if a.Metadata == nil {
		metaJSON = []byte(`{}`)
	}

	var artifactID int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO artifact_metadata (agent_id, task_id, bucket, object_path, content_type, size_bytes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, a.AgentID, a.TaskID, a.Bucket, a.ObjectPath, a.ContentType, a.SizeBytes, metaJSON).Scan(&artifactID)
	if err != nil {
		return 0, wrapErr("register artifact", err)
	}
	return artifactID, nil
}

// GetArtifact returns one artifact metadata row by id.
func (s *Store) GetArtifact(ctx context.Context, artifactID int64) (*store.ArtifactMetadata, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifact_metadata WHERE id = $1`, artifactID)
	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("artifact %d", artifactID)
		}
		return nil, wrapErr("get artifact", err)
	}
	return a, nil
}

// ListArtifacts returns metadata rows matching the filter, newest first.
func (s *Store) ListArtifacts(ctx context.Context, filter store.ArtifactFilter) ([]store.ArtifactMetadata, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		where += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if filter.TaskID != nil {
		args = append(args, *filter.TaskID)
		where += fmt.Sprintf(" AND task_id = $%d", len(args))
	}
	if filter.Bucket != "" {
		args = append(args, filter.Bucket)
		where += fmt.Sprintf(" AND bucket = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT `+artifactColumns+` FROM artifact_metadata %s ORDER BY uploaded_at DESC, id DESC LIMIT $%d`, where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list artifacts", err)
	}
	defer rows.Close()

	var artifacts []store.ArtifactMetadata
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, wrapErr("list artifacts: scan", err)
		}
		artifacts = append(artifacts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list artifacts: rows", err)
	}
	return artifacts, nil
}
