package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/globle-leaderboard/internal/config"
	"github.com/globle-leaderboard/internal/handler"
	"github.com/globle-leaderboard/internal/postgres"
	"github.com/globle-leaderboard/internal/redis"
	"github.com/globle-leaderboard/internal/store"
)

// storage is the document store selected by configuration
type storage struct {
	docs   store.DocumentStore
	locker store.Locker
	checks []handler.ReadyCheck
	close  func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage, scores are lost on restart")
		return &storage{docs: store.NewMemoryStore(), close: func() {}}, nil

	case config.BackendRedis:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		rs, err := redis.NewStore(&cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("connected to Redis")
		return &storage{
			docs:   rs,
			locker: rs,
			checks: []handler.ReadyCheck{{Name: "redis", Check: rs.Ping}},
			close:  func() { rs.Close() },
		}, nil

	case config.BackendPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		return &storage{
			docs:   repo,
			locker: repo,
			checks: []handler.ReadyCheck{{Name: "postgres", Check: repo.Ping}},
			close:  repo.Close,
		}, nil

	default:
		fs, err := store.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening file store: %w", err)
		}
		logger.Info("using file storage", "dir", cfg.Storage.Dir)
		return &storage{docs: fs, close: func() {}}, nil
	}
}
