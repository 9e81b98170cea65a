package domain

import (
	"fmt"
	"strings"
	"time"
)

// Event types carried on the wire
const (
	EventTypeMessage = "message"
	EventTypeCommand = "command"
	EventTypeTick    = "tick"
)

// Event is one of MessageReceived, CommandInvoked or TickElapsed
type Event interface {
	EventType() string
}

// MessageReceived is a chat message seen on a transport
type MessageReceived struct {
	UserID      string
	DisplayName string
	ChannelID   string
	MessageID   string
	Text        string
	Bot         bool
	Timestamp   time.Time
}

// CommandInvoked is a prefixed chat command
type CommandInvoked struct {
	UserID      string
	DisplayName string
	ChannelID   string
	MessageID   string
	Name        string
	Args        []string
	Timestamp   time.Time
}

// TickElapsed asks the scheduler to evaluate the given instant
type TickElapsed struct {
	Timestamp time.Time
}

func (MessageReceived) EventType() string { return EventTypeMessage }
func (CommandInvoked) EventType() string  { return EventTypeCommand }
func (TickElapsed) EventType() string     { return EventTypeTick }

// Envelope is the JSON form of an event used by the webhook, websocket and kafka transports
type Envelope struct {
	Type        string    `json:"type"`
	UserID      string    `json:"user_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	ChannelID   string    `json:"channel_id,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	Text        string    `json:"text,omitempty"`
	Name        string    `json:"name,omitempty"`
	Args        []string  `json:"args,omitempty"`
	Bot         bool      `json:"bot,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// Event converts the envelope, splitting prefixed messages into commands
func (e Envelope) Event(prefix string) (Event, error) {
	switch e.Type {
	case EventTypeMessage:
		if e.UserID == "" {
			return nil, fmt.Errorf("%w: message without user_id", ErrInvalidEvent)
		}
		return Classify(prefix, MessageReceived{
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			ChannelID:   e.ChannelID,
			MessageID:   e.MessageID,
			Text:        e.Text,
			Bot:         e.Bot,
			Timestamp:   e.Timestamp,
		}), nil

	case EventTypeCommand:
		if e.UserID == "" || e.Name == "" {
			return nil, fmt.Errorf("%w: command requires user_id and name", ErrInvalidEvent)
		}
		return CommandInvoked{
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			ChannelID:   e.ChannelID,
			MessageID:   e.MessageID,
			Name:        strings.ToLower(e.Name),
			Args:        e.Args,
			Timestamp:   e.Timestamp,
		}, nil

	case EventTypeTick:
		return TickElapsed{Timestamp: e.Timestamp}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
}

// EnvelopeFor builds the wire form of an event
func EnvelopeFor(ev Event) Envelope {
	switch v := ev.(type) {
	case MessageReceived:
		return Envelope{
			Type:        EventTypeMessage,
			UserID:      v.UserID,
			DisplayName: v.DisplayName,
			ChannelID:   v.ChannelID,
			MessageID:   v.MessageID,
			Text:        v.Text,
			Bot:         v.Bot,
			Timestamp:   v.Timestamp,
		}
	case CommandInvoked:
		return Envelope{
			Type:        EventTypeCommand,
			UserID:      v.UserID,
			DisplayName: v.DisplayName,
			ChannelID:   v.ChannelID,
			MessageID:   v.MessageID,
			Name:        v.Name,
			Args:        v.Args,
			Timestamp:   v.Timestamp,
		}
	case TickElapsed:
		return Envelope{Type: EventTypeTick, Timestamp: v.Timestamp}
	default:
		return Envelope{}
	}
}

// Classify turns a message starting with prefix into a CommandInvoked.
// Anything else, including a bare prefix, stays a message.
func Classify(prefix string, msg MessageReceived) Event {
	if prefix == "" || msg.Bot || !strings.HasPrefix(msg.Text, prefix) {
		return msg
	}

	fields := strings.Fields(strings.TrimPrefix(msg.Text, prefix))
	if len(fields) == 0 {
		return msg
	}

	return CommandInvoked{
		UserID:      msg.UserID,
		DisplayName: msg.DisplayName,
		ChannelID:   msg.ChannelID,
		MessageID:   msg.MessageID,
		Name:        strings.ToLower(fields[0]),
		Args:        fields[1:],
		Timestamp:   msg.Timestamp,
	}
}
