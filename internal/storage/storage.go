// Package storage stitches the relational, object and log stores into the
// single façade consumed by the worker loop and the hub API.
package storage

import (
	"context"

	"agenthub/internal/config"
	"agenthub/internal/store"
	"agenthub/internal/store/logstore"
	"agenthub/internal/store/objectstore"
	"agenthub/internal/store/postgres"
)

// Facade implements store.Storage over PostgreSQL, MinIO and MongoDB.
// Higher components depend on the store interfaces only and never name a
// concrete backend.
type Facade struct {
	store.TaskStore
	store.ProgressStore
	store.ArtifactStore
	store.ObjectStore
	store.LogStore

	pg      *postgres.Store
	objects *objectstore.Client
	logs    *logstore.Client
}

var _ store.Storage = (*Facade)(nil)

// Open connects all three backing stores and optionally runs migrations.
func Open(ctx context.Context, cfg *config.Config, migrate bool) (*Facade, error) {
	pg, err := postgres.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := postgres.Migrate(pg.DB()); err != nil {
			_ = pg.Close()
			return nil, err
		}
	}

	objects, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Secure:    cfg.MinioSecure,
	})
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	logs, err := logstore.New(ctx, cfg.MongoURL)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	return &Facade{
		TaskStore:     pg,
		ProgressStore: pg,
		ArtifactStore: pg,
		ObjectStore:   objects,
		LogStore:      logs,
		pg:            pg,
		objects:       objects,
		logs:          logs,
	}, nil
}

// Ping verifies the relational store is reachable.
func (f *Facade) Ping(ctx context.Context) error {
	return f.pg.Ping(ctx)
}

// Close releases all backing connections.
func (f *Facade) Close(ctx context.Context) error {
	err := f.pg.Close()
	if logErr := f.logs.Close(ctx); err == nil {
		err = logErr
	}
	return err
}
