// Package discord speaks the Discord webhook formats: outgoing execute-webhook
// posts and incoming interaction-style callbacks.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/globle-leaderboard/internal/domain"
)

// MaxContentLength is Discord's limit for a single message
const MaxContentLength = 2000

// SenderConfig configures a WebhookSender
type SenderConfig struct {
	HTTPClient *http.Client
	URL        string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// WebhookSender posts intents to a Discord execute-webhook URL
type WebhookSender struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

// NewWebhookSender creates a sender
func NewWebhookSender(cfg SenderConfig) *WebhookSender {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		httpClient: httpClient,
		url:        strings.TrimSpace(cfg.URL),
		logger:     logger,
	}
}

type allowedMentions struct {
	Parse []string `json:"parse"`
	Users []string `json:"users,omitempty"`
}

type webhookPayload struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

// Publish posts the intent text. Webhooks cannot add reactions, so a
// reaction-only intent is skipped.
func (s *WebhookSender) Publish(ctx context.Context, intent domain.Intent) error {
	if intent.Text == "" {
		s.logger.Debug("skipping intent without text", "intent_id", intent.ID, "reaction", intent.Reaction)
		return nil
	}

	for _, chunk := range SplitContent(intent.Text, MaxContentLength) {
		payload := webhookPayload{
			Content:         chunk,
			AllowedMentions: allowedMentions{Parse: []string{}, Users: intent.Mentions},
		}
		if err := s.post(ctx, payload); err != nil {
			return fmt.Errorf("posting intent %s: %w", intent.ID, err)
		}
	}
	return nil
}

func (s *WebhookSender) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SplitContent breaks text into chunks of at most limit bytes, preferring
// line boundaries
func SplitContent(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line) > limit {
			flush()
		}
		current.WriteString(line)
	}
	flush()
	return chunks
}
