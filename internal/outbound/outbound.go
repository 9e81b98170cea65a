// Package outbound delivers intents to chat sinks.
package outbound

import (
	"context"
	"errors"
	"log/slog"

	"github.com/globle-leaderboard/internal/domain"
)

// Publisher delivers a single intent
type Publisher interface {
	Publish(ctx context.Context, intent domain.Intent) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, intent domain.Intent) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, intent domain.Intent) error {
	return f(ctx, intent)
}

// Fanout delivers each intent to every sink and joins their errors
type Fanout struct {
	sinks  []Publisher
	logger *slog.Logger
}

// NewFanout creates a fanout; nil sinks are skipped
func NewFanout(logger *slog.Logger, sinks ...Publisher) *Fanout {
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of sinks
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish sends intent to all sinks
func (f *Fanout) Publish(ctx context.Context, intent domain.Intent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, intent); err != nil {
			f.logger.Error("failed to deliver intent", "intent_id", intent.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishAll sends intents in order, stopping at the first context error
func PublishAll(ctx context.Context, p Publisher, intents []domain.Intent) error {
	var errs []error
	for _, intent := range intents {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := p.Publish(ctx, intent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes intents to the log. It is the fallback when no chat sink is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the intent
func (s *LogSink) Publish(_ context.Context, intent domain.Intent) error {
	s.logger.Info("intent",
		"intent_id", intent.ID,
		"text", intent.Text,
		"mentions", intent.Mentions,
		"reaction", intent.Reaction,
		"reply_to", intent.ReplyTo,
	)
	return nil
}
