package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"workflow-engine/backend/internal/config"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Open connects the store selected by cfg.Store.Driver and, when enabled,
// puts the Redis workflow cache in front of it. Cache failures go to logger.
func Open(ctx context.Context, cfg *config.Config, logger Logger) (Repository, error) {
	repo, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Redis.Enable {
		return repo, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		_ = repo.Close(ctx)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &cachedStore{
		Repository: repo,
		workflows:  NewCachedWorkflowRepository(repo, client, cfg.Redis.TTL, logger),
		client:     client,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.Store.Driver {
	case DriverPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to parse database config: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store := NewPostgresStore(pool)
		if cfg.Store.Migrate {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return store, nil

	case DriverMongo:
		store, err := OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			if err := store.EnsureIndexes(ctx); err != nil {
				_ = store.Close(ctx)
				return nil, err
			}
		}
		return store, nil

	case DriverSQLite:
		return OpenSQLite(cfg.SQLite.Path)

	case DriverMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
