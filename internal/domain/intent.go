package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Intent is an outbound action produced by the engine or scheduler.
// Transports decide how to deliver it.
type Intent struct {
	ID        string    `json:"id"`
	Text      string    `json:"text,omitempty"`
	Mentions  []string  `json:"mentions,omitempty"`
	Reaction  string    `json:"reaction,omitempty"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewIntent creates a text intent
func NewIntent(text string, now time.Time) Intent {
	return Intent{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: now,
	}
}

// Mention renders a chat mention for a user
func Mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}
