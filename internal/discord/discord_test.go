package discord

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globle-leaderboard/internal/domain"
)

type capturedPost struct {
	Content         string `json:"content"`
	AllowedMentions struct {
		Parse []string `json:"parse"`
		Users []string `json:"users"`
	} `json:"allowed_mentions"`
}

func TestWebhookSender_Publish(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		posts []capturedPost
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var p capturedPost
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&p)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		posts = append(posts, p)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewWebhookSender(SenderConfig{URL: srv.URL, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	intent := domain.NewIntent("Good morning <@1>!", time.Now())
	intent.Mentions = []string{"1"}
	require.NoError(t, sender.Publish(context.Background(), intent))

	reaction := domain.Intent{ID: "r", Reaction: "🌎"}
	require.NoError(t, sender.Publish(context.Background(), reaction))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, posts, 1)
	assert.Equal(t, "Good morning <@1>!", posts[0].Content)
	assert.Equal(t, []string{"1"}, posts[0].AllowedMentions.Users)
	assert.Empty(t, posts[0].AllowedMentions.Parse)
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewWebhookSender(SenderConfig{URL: srv.URL})
	err := sender.Publish(context.Background(), domain.NewIntent("hi", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSplitContent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"short"}, SplitContent("short", 10))

	text := "line one\nline two\nline three\n"
	chunks := SplitContent(text, 12)
	assert.Equal(t, []string{"line one\n", "line two\n", "line three\n"}, chunks)
	assert.Equal(t, text, strings.Join(chunks, ""))

	long := strings.Repeat("é", 10)
	chunks = SplitContent(long, 5)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 5)
		assert.True(t, strings.ToValidUTF8(c, "?") == c)
	}
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestPayload_Event(t *testing.T) {
	t.Parallel()

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": 0,
		"message": {
			"id": "m1",
			"channel_id": "c1",
			"content": "Globle 3/5",
			"author": {"id": "42", "username": "ann", "global_name": "Ann"}
		}
	}`), &p))

	ev, ok := p.Event("!")
	require.True(t, ok)
	msg, isMsg := ev.(domain.MessageReceived)
	require.True(t, isMsg)
	assert.Equal(t, "42", msg.UserID)
	assert.Equal(t, "Ann", msg.DisplayName)
	assert.Equal(t, "c1", msg.ChannelID)

	p.Message.Content = "!settz Europe/Paris"
	ev, ok = p.Event("!")
	require.True(t, ok)
	assert.IsType(t, domain.CommandInvoked{}, ev)

	p.Message.Author.Bot = true
	_, ok = p.Event("!")
	assert.False(t, ok)

	_, ok = Payload{Type: PayloadPing}.Event("!")
	assert.False(t, ok)
}
