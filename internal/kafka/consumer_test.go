package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globle-leaderboard/internal/config"
	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/outbound"
)

type recordingDispatcher struct {
	events   []domain.Event
	deadline bool
	err      error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ev domain.Event) ([]domain.Intent, error) {
	d.events = append(d.events, ev)
	_, d.deadline = ctx.Deadline()
	if d.err != nil {
		return nil, d.err
	}
	return []domain.Intent{domain.NewIntent("reply", time.Now())}, nil
}

func newTestConsumer(d Dispatcher, replies outbound.Publisher) *Consumer {
	return &Consumer{
		config:     &config.KafkaConfig{HandlerTimeout: time.Second},
		prefix:     "!",
		dispatcher: d,
		replies:    replies,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestHandle_DispatchesAndPublishes(t *testing.T) {
	t.Parallel()

	var published []domain.Intent
	sink := outbound.PublisherFunc(func(_ context.Context, in domain.Intent) error {
		published = append(published, in)
		return nil
	})
	d := &recordingDispatcher{}
	c := newTestConsumer(d, sink)

	c.handle(context.Background(), []byte(`{"type":"message","user_id":"u1","text":"!settz Europe/Paris"}`))

	require.Len(t, d.events, 1)
	cmd, ok := d.events[0].(domain.CommandInvoked)
	require.True(t, ok)
	assert.Equal(t, "settz", cmd.Name)
	assert.Equal(t, []string{"Europe/Paris"}, cmd.Args)
	assert.True(t, d.deadline)

	require.Len(t, published, 1)
	assert.Equal(t, "reply", published[0].Text)
}

func TestHandle_SkipsBadRecords(t *testing.T) {
	t.Parallel()

	d := &recordingDispatcher{}
	c := newTestConsumer(d, nil)

	c.handle(context.Background(), []byte(`not json`))
	c.handle(context.Background(), []byte(`{"type":"message"}`))
	c.handle(context.Background(), []byte(`{"type":"reaction","user_id":"u1"}`))

	assert.Empty(t, d.events)
}

func TestHandle_DispatchErrorPublishesNothing(t *testing.T) {
	t.Parallel()

	called := false
	sink := outbound.PublisherFunc(func(context.Context, domain.Intent) error {
		called = true
		return nil
	})
	d := &recordingDispatcher{err: errors.New("boom")}
	c := newTestConsumer(d, sink)

	c.handle(context.Background(), []byte(`{"type":"tick","timestamp":"2025-03-02T05:00:00Z"}`))

	require.Len(t, d.events, 1)
	tick, ok := d.events[0].(domain.TickElapsed)
	require.True(t, ok)
	assert.True(t, tick.Timestamp.Equal(time.Date(2025, 3, 2, 5, 0, 0, 0, time.UTC)))
	assert.False(t, called)
}
