package outbound

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globle-leaderboard/internal/domain"
)

func TestFanout_DeliversToEverySink(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	boom := errors.New("boom")

	var got []string
	ok := PublisherFunc(func(_ context.Context, in domain.Intent) error {
		got = append(got, in.Text)
		return nil
	})
	failing := PublisherFunc(func(context.Context, domain.Intent) error { return boom })

	f := NewFanout(logger, ok, nil, failing, NewLogSink(logger))
	assert.Equal(t, 3, f.Len())

	err := f.Publish(context.Background(), domain.NewIntent("hello", time.Now()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"hello"}, got)
}

func TestPublishAll(t *testing.T) {
	t.Parallel()

	var got []string
	p := PublisherFunc(func(_ context.Context, in domain.Intent) error {
		got = append(got, in.Text)
		return nil
	})

	now := time.Now()
	require.NoError(t, PublishAll(context.Background(), p, []domain.Intent{
		domain.NewIntent("a", now),
		domain.NewIntent("b", now),
	}))
	assert.Equal(t, []string{"a", "b"}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := PublishAll(ctx, p, []domain.Intent{domain.NewIntent("c", now)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, got, 2)
}
