package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/glidepath/internal/config"
	"github.com/yegors/glidepath/pkg/logger"
)

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	cfg := config.Default().Storage
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "nested", "glidepath.db")

	store, err := Open(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Backend = "mysql"
	_, err := Open(context.Background(), cfg, logger.NewNop())
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestOpenMirrorDisabled(t *testing.T) {
	mirror, err := OpenMirror(context.Background(), config.Default().Storage, logger.NewNop())
	require.NoError(t, err)
	assert.Nil(t, mirror)
}
