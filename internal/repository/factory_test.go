package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-engine/backend/internal/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Driver = DriverMemory
		repo, err := Open(ctx, cfg, nil)
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, repo)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Driver = DriverSQLite
		cfg.SQLite.Path = filepath.Join(t.TempDir(), "factory.db")
		repo, err := Open(ctx, cfg, nil)
		require.NoError(t, err)
		defer repo.Close(ctx)
		assert.NoError(t, repo.Ping(ctx))
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Driver = "cassandra"
		_, err := Open(ctx, cfg, nil)
		assert.ErrorContains(t, err, "cassandra")
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Driver = DriverMemory
		cfg.Redis.Enable = true
		cfg.Redis.Addr = "127.0.0.1:1"
		_, err := Open(ctx, cfg, nil)
		assert.ErrorContains(t, err, "redis")
	})
}
