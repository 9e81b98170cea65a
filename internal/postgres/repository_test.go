package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globle-leaderboard/internal/config"
	"github.com/globle-leaderboard/internal/domain"
)

// newTestRepository connects using the POSTGRES_TEST_* variables or skips
func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	if os.Getenv("POSTGRES_TEST_HOST") == "" {
		t.Skip("POSTGRES_TEST_HOST not set")
	}

	cfg := config.DefaultConfig().Postgres
	cfg.Host = os.Getenv("POSTGRES_TEST_HOST")
	cfg.User = os.Getenv("POSTGRES_TEST_USER")
	cfg.Password = os.Getenv("POSTGRES_TEST_PASSWORD")
	cfg.Database = os.Getenv("POSTGRES_TEST_DB")
	cfg.LockID = time.Now().UnixNano()

	r, err := NewRepository(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	require.NoError(t, r.RunMigrations(context.Background()))
	return r
}

func TestRepository_SaveLoadKeepsKeyOrder(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000")

	_, err := r.Load(ctx, key)
	assert.True(t, domain.IsNotFoundError(err))

	body := `{"date":"2025-03-01","scores":{"zed":4,"amy":2}}`
	require.NoError(t, r.Save(ctx, key, []byte(body)))
	require.NoError(t, r.Save(ctx, key, []byte(body)))

	got, err := r.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestRepository_LockExcludes(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	unlock, err := r.Lock(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = r.Lock(waitCtx)
	assert.Error(t, err)

	unlock()

	unlock2, err := r.Lock(ctx)
	require.NoError(t, err)
	unlock2()
}
