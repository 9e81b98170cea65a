package discord

import (
	"github.com/globle-leaderboard/internal/domain"
)

// Incoming payload types
const (
	PayloadMessage = 0
	PayloadPing    = 1
)

// Payload is an incoming webhook callback
type Payload struct {
	Type      int      `json:"type"`
	ChannelID string   `json:"channel_id,omitempty"`
	Message   *Message `json:"message,omitempty"`
}

// Message is the message part of a callback
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	Author    Author `json:"author"`
}

// Author identifies who sent a message
type Author struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
}

// DisplayName prefers the global name over the username
func (a Author) DisplayName() string {
	if a.GlobalName != "" {
		return a.GlobalName
	}
	return a.Username
}

// Event converts a message callback into a core event.
// It reports false for pings, bot authors and payloads without a message.
func (p Payload) Event(prefix string) (domain.Event, bool) {
	if p.Type != PayloadMessage || p.Message == nil || p.Message.Author.ID == "" || p.Message.Author.Bot {
		return nil, false
	}

	channelID := p.Message.ChannelID
	if channelID == "" {
		channelID = p.ChannelID
	}

	return domain.Classify(prefix, domain.MessageReceived{
		UserID:      p.Message.Author.ID,
		DisplayName: p.Message.Author.DisplayName(),
		ChannelID:   channelID,
		MessageID:   p.Message.ID,
		Text:        p.Message.Content,
	}), true
}
