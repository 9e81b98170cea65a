package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/globle-leaderboard/internal/config"
	"github.com/globle-leaderboard/internal/domain"
)

// Repository stores documents in a single table. The body column is JSON
// rather than JSONB so object key order survives a round trip.
type Repository struct {
	pool   *pgxpool.Pool
	lockID int64
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		lockID: cfg.LockID,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			key VARCHAR(64) PRIMARY KEY,
			body JSON NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// Load returns the document body for key
func (r *Repository) Load(ctx context.Context, key string) ([]byte, error) {
	var body string
	err := r.pool.QueryRow(ctx, `SELECT body::text FROM documents WHERE key = $1`, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return []byte(body), nil
}

// Save upserts the document body for key
func (r *Repository) Save(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO documents (key, body, updated_at)
		VALUES ($1, $2::json, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, key, string(data)); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Lock holds a session advisory lock on a dedicated connection until released
func (r *Repository) Lock(ctx context.Context) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, r.lockID); err != nil {
		conn.Release()
		return nil, errors.Join(domain.ErrLockNotAcquired, err)
	}

	return func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, r.lockID); err != nil {
			r.logger.Warn("failed to release advisory lock", "error", err)
			// the session still holds the lock; drop the connection
			conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
