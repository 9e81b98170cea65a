package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/ledger"
	"github.com/globle-leaderboard/internal/messages"
	"github.com/globle-leaderboard/internal/outbound"
	"github.com/globle-leaderboard/internal/parser"
	"github.com/globle-leaderboard/internal/scheduler"
	"github.com/globle-leaderboard/internal/store"
	"github.com/globle-leaderboard/internal/timezone"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog() messages.Catalog {
	return messages.Catalog{
		Game:        "Globle",
		URL:         "https://globle-game.com/",
		Prefix:      "!",
		Timezone:    "America/New_York",
		MorningHour: 8,
		EveningHour: 21,
	}
}

type tickRecorder struct {
	ticks []time.Time
}

func (r *tickRecorder) Evaluate(_ context.Context, now time.Time) error {
	r.ticks = append(r.ticks, now)
	return nil
}

type testEngine struct {
	*Engine
	ledger *ledger.Ledger
	docs   *store.MemoryStore
	ticks  *tickRecorder
	clock  *clockwork.FakeClock
}

func newTestEngine(t *testing.T, opts Options) *testEngine {
	t.Helper()

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 15, 0, 0, 0, loc))
	docs := store.NewMemoryStore()
	l := ledger.New(docs, nil, clock, loc, discardLogger())
	dir := timezone.NewDirectory(docs, nil, discardLogger())
	ticks := &tickRecorder{}

	e := New(parser.New("globle"), l, dir, ticks, testCatalog(), clock, opts, discardLogger())
	return &testEngine{Engine: e, ledger: l, docs: docs, ticks: ticks, clock: clock}
}

func message(user, name, text string) domain.MessageReceived {
	return domain.MessageReceived{UserID: user, DisplayName: name, ChannelID: "c1", MessageID: "m-" + user, Text: text}
}

func command(user, name, cmd string, args ...string) domain.CommandInvoked {
	return domain.CommandInvoked{UserID: user, DisplayName: name, ChannelID: "c1", Name: cmd, Args: args}
}

func TestOnMessage_RecordsAndReacts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t, Options{})

	intents, err := e.OnMessage(ctx, message("u1", "Ann", "Globle 3/5"))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "🌎", intents[0].Reaction)
	assert.Equal(t, "m-u1", intents[0].ReplyTo)
	assert.Equal(t, "Recorded your Globle score of 3 guesses, Ann! You're the first to submit today.", intents[0].Text)

	intents, err = e.OnMessage(ctx, message("u2", "Bob", "I solved it in 2 on globle"))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "Recorded your Globle score of 2 guesses, Bob!", intents[0].Text)

	// worse score is silent
	intents, err = e.OnMessage(ctx, message("u1", "Ann", "globle 4 guesses"))
	require.NoError(t, err)
	assert.Empty(t, intents)

	best, ok, err := e.ledger.Best(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, best)
}

func TestOnMessage_Ignored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t, Options{ChannelID: "c1"})

	cases := []domain.MessageReceived{
		{UserID: "u1", ChannelID: "c1", Text: "hello there"},
		{UserID: "u1", ChannelID: "c1", Text: "3/5"},
		{UserID: "bot", ChannelID: "c1", Text: "Globle 1/5", Bot: true},
		{UserID: "u1", ChannelID: "other", Text: "Globle 1/5"},
	}
	for _, msg := range cases {
		intents, err := e.OnMessage(ctx, msg)
		require.NoError(t, err)
		assert.Empty(t, intents, "text %q", msg.Text)
	}

	board, err := e.ledger.RankedStandings(ctx)
	require.NoError(t, err)
	assert.Empty(t, board.Entries)
}

func TestOnCommand_SetTimezone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t, Options{})

	intents, err := e.OnCommand(ctx, command("u1", "Ann", "settz", "Europe/Paris"))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "Ann, your timezone has been set to Europe/Paris. You'll receive reminders at 8am and 9pm in your local time.", intents[0].Text)

	intents, err = e.OnCommand(ctx, command("u1", "Ann", "settz", "Not/AZone"))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "Unknown timezone: Not/AZone. Please use a valid timezone from the IANA timezone database.", intents[0].Text)

	intents, err = e.OnCommand(ctx, command("u1", "Ann", "settz", "Europe/Paris", "please"))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Contains(t, intents[0].Text, "set to Europe/Paris.")

	intents, err = e.OnCommand(ctx, command("u1", "Ann", "settz"))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "Please provide a timezone. Example: `!settz America/New_York`", intents[0].Text)

	data, err := e.docs.Load(ctx, store.KeyTimezones)
	require.NoError(t, err)
	assert.JSONEq(t, `{"u1":"Europe/Paris"}`, string(data))
}

func TestOnCommand_ScoreAndLeaderboard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t, Options{})

	intents, err := e.OnCommand(ctx, command("u1", "Ann", "leaderboard"))
	require.NoError(t, err)
	assert.Equal(t, "No scores have been submitted today.", intents[0].Text)

	intents, err = e.OnCommand(ctx, command("u1", "Ann", "score"))
	require.NoError(t, err)
	assert.Equal(t, "Ann, you haven't submitted a Globle score today.", intents[0].Text)

	_, err = e.OnMessage(ctx, message("u1", "Ann", "globle 5/9"))
	require.NoError(t, err)
	_, err = e.OnMessage(ctx, message("u2", "Bob", "globle 2/9"))
	require.NoError(t, err)

	intents, err = e.OnCommand(ctx, command("u1", "Ann", "score"))
	require.NoError(t, err)
	assert.Equal(t, "Ann, your best Globle score today is 5 guesses.", intents[0].Text)

	intents, err = e.OnCommand(ctx, command("u1", "", "leaderboard"))
	require.NoError(t, err)
	assert.Equal(t, "**Globle Leaderboard for 2025-03-01**\n\n1. <@u2>: 2 guesses\n2. <@u1>: 5 guesses\n", intents[0].Text)
}

func TestOnCommand_HelpAndUnknown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t, Options{})

	intents, err := e.OnCommand(ctx, command("u1", "Ann", "HELP"))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Contains(t, intents[0].Text, "**Globle Bot Commands**")

	intents, err = e.OnCommand(ctx, command("u1", "Ann", "dance"))
	require.NoError(t, err)
	assert.Empty(t, intents)
}

type brokenLedger struct{ err error }

func (b brokenLedger) RecordScore(context.Context, string, int, time.Time) (domain.Outcome, error) {
	return domain.OutcomeRejected, b.err
}
func (b brokenLedger) Best(context.Context, string) (int, bool, error) { return 0, false, b.err }
func (b brokenLedger) RankedStandings(context.Context) (domain.Leaderboard, error) {
	return domain.Leaderboard{}, b.err
}

func TestStorageFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	e := New(parser.New("globle"), brokenLedger{err: errors.New("io")}, nil, nil, testCatalog(), clock, Options{}, discardLogger())

	intents, err := e.OnMessage(ctx, message("u1", "Ann", "globle 3/5"))
	require.NoError(t, err)
	assert.Empty(t, intents)

	intents, err = e.OnCommand(ctx, command("u1", "Ann", "score"))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, testCatalog().Failure(), intents[0].Text)
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t, Options{})

	ev, err := domain.Envelope{Type: domain.EventTypeMessage, UserID: "u1", DisplayName: "Ann", Text: "!score"}.Event("!")
	require.NoError(t, err)
	intents, err := e.Dispatch(ctx, ev)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Contains(t, intents[0].Text, "haven't submitted")

	ts := e.clock.Now().Add(20 * time.Second)
	_, err = e.Dispatch(ctx, domain.TickElapsed{Timestamp: ts})
	require.NoError(t, err)
	_, err = e.Dispatch(ctx, domain.TickElapsed{})
	require.NoError(t, err)
	_, err = e.Dispatch(ctx, domain.TickElapsed{Timestamp: time.Date(2025, 3, 2, 5, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, e.ticks.ticks, 3)
	assert.Equal(t, ts, e.ticks.ticks[0])
	assert.Equal(t, e.clock.Now(), e.ticks.ticks[1])
	assert.Equal(t, e.clock.Now(), e.ticks.ticks[2])

	_, err = e.Dispatch(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestSetTicker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := New(parser.New("globle"), brokenLedger{}, nil, nil, testCatalog(), clockwork.NewFakeClock(), Options{}, discardLogger())

	// no ticker yet
	require.NoError(t, e.OnTick(ctx, domain.TickElapsed{}))

	ticks := &tickRecorder{}
	e.SetTicker(ticks)
	require.NoError(t, e.OnTick(ctx, domain.TickElapsed{}))
	assert.Len(t, ticks.ticks, 1)
}

func TestOnTick_FarTimestampDoesNotStallReminders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 7, 58, 0, 0, loc))
	docs := store.NewMemoryStore()
	l := ledger.New(docs, nil, clock, loc, discardLogger())
	dir := timezone.NewDirectory(docs, nil, discardLogger())
	_, err = dir.SetTimezone(ctx, "u1", "America/New_York")
	require.NoError(t, err)

	var sent []domain.Intent
	publisher := outbound.PublisherFunc(func(_ context.Context, intent domain.Intent) error {
		sent = append(sent, intent)
		return nil
	})
	reminders := scheduler.New(l, dir, publisher, testCatalog(), clock, loc,
		scheduler.Config{MorningHour: 8, EveningHour: 21, Window: 5}, discardLogger())

	e := New(parser.New("globle"), l, dir, reminders, testCatalog(), clock, Options{}, discardLogger())

	// a producer two days ahead must not move the evaluation cursor
	_, err = e.Dispatch(ctx, domain.TickElapsed{Timestamp: clock.Now().Add(48*time.Hour + 30*time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, sent)

	clock.Advance(3 * time.Minute)
	_, err = e.Dispatch(ctx, domain.TickElapsed{})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Good morning <@u1>")
	assert.Equal(t, []string{"u1"}, sent[0].Mentions)
}
