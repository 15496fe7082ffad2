// Package backend opens the configured relational store and the optional
// ClickHouse mirror.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yegors/glidepath/internal/api"
	"github.com/yegors/glidepath/internal/batch"
	"github.com/yegors/glidepath/internal/config"
	"github.com/yegors/glidepath/internal/ingest"
	"github.com/yegors/glidepath/internal/storage/clickhouse"
	"github.com/yegors/glidepath/internal/storage/postgres"
	"github.com/yegors/glidepath/internal/storage/sqlite"
	"github.com/yegors/glidepath/internal/weather"
	"github.com/yegors/glidepath/pkg/logger"
)

// Store is everything the binaries need from the relational store
type Store interface {
	api.Store
	batch.Store
	batch.OverrideStore
	ingest.Sink
	weather.Store
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Open opens the store selected by cfg.Backend
func Open(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.SQLite.Path, log)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
}

// OpenMirror connects the ClickHouse mirror. It returns nil when the mirror
// is disabled.
func OpenMirror(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (*clickhouse.Mirror, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	return clickhouse.Open(ctx, cfg.ClickHouse.Config, log)
}
