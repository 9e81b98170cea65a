package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScores_KeepsSubmissionOrder(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"date":"2025-03-01","scores":{"zed":4,"amy":2,"bob":4}}`)

	var day DailyScores
	require.NoError(t, json.Unmarshal(raw, &day))
	assert.Equal(t, "2025-03-01", day.Date)
	assert.Equal(t, []ScoreEntry{
		{UserID: "zed", Guesses: 4},
		{UserID: "amy", Guesses: 2},
		{UserID: "bob", Guesses: 4},
	}, day.Scores.Entries())

	day.Scores.Set("amy", 1)
	day.Scores.Set("cat", 7)

	out, err := json.Marshal(day)
	require.NoError(t, err)
	assert.Equal(t, `{"date":"2025-03-01","scores":{"zed":4,"amy":1,"bob":4,"cat":7}}`, string(out))
}

func TestScores_EmptyAndNull(t *testing.T) {
	t.Parallel()

	var day DailyScores
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-03-01","scores":null}`), &day))
	assert.Equal(t, 0, day.Scores.Len())

	out, err := json.Marshal(DailyScores{Date: "2025-03-02"})
	require.NoError(t, err)
	assert.Equal(t, `{"date":"2025-03-02","scores":{}}`, string(out))
}

func TestScores_RejectsMalformed(t *testing.T) {
	t.Parallel()

	var s Scores
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &s))
	assert.Error(t, json.Unmarshal([]byte(`{"a":"three"}`), &s))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := MessageReceived{UserID: "u1", DisplayName: "Ann", Text: "!SetTZ Europe/Paris", Timestamp: ts}

	ev := Classify("!", msg)
	cmd, ok := ev.(CommandInvoked)
	require.True(t, ok)
	assert.Equal(t, "settz", cmd.Name)
	assert.Equal(t, []string{"Europe/Paris"}, cmd.Args)
	assert.Equal(t, ts, cmd.Timestamp)

	plain := MessageReceived{UserID: "u1", Text: "Globle 3/5"}
	assert.Equal(t, plain, Classify("!", plain))

	bare := MessageReceived{UserID: "u1", Text: "!   "}
	assert.Equal(t, bare, Classify("!", bare))
}

func TestEnvelope_Event(t *testing.T) {
	t.Parallel()

	ev, err := Envelope{Type: EventTypeMessage, UserID: "u1", Text: "!score"}.Event("!")
	require.NoError(t, err)
	assert.Equal(t, EventTypeCommand, ev.EventType())

	ev, err = Envelope{Type: EventTypeTick}.Event("!")
	require.NoError(t, err)
	assert.IsType(t, TickElapsed{}, ev)

	_, err = Envelope{Type: EventTypeMessage}.Event("!")
	assert.True(t, errors.Is(err, ErrInvalidEvent))

	_, err = Envelope{Type: "reaction"}.Event("!")
	assert.True(t, errors.Is(err, ErrInvalidEvent))
}

func TestMention(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "<@42>", Mention("42"))
}
