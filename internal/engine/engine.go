// Package engine turns chat events into ledger updates and outbound intents.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/messages"
)

// Reaction added to messages whose score was stored
const Reaction = "🌎"

// maxTickSkew is how far a transport tick may differ from the engine clock
const maxTickSkew = time.Minute

// Command names
const (
	CommandSetTimezone = "settz"
	CommandScore       = "score"
	CommandLeaderboard = "leaderboard"
	CommandHelp        = "help"
)

// ScoreParser extracts a guess count from text
type ScoreParser interface {
	Parse(text string) (int, bool)
}

// Ledger is the subset of the score ledger the engine uses
type Ledger interface {
	RecordScore(ctx context.Context, userID string, guesses int, now time.Time) (domain.Outcome, error)
	Best(ctx context.Context, userID string) (int, bool, error)
	RankedStandings(ctx context.Context) (domain.Leaderboard, error)
}

// Directory is the subset of the timezone directory the engine uses
type Directory interface {
	SetTimezone(ctx context.Context, userID, zone string) (string, error)
}

// Ticker evaluates scheduled work for an instant
type Ticker interface {
	Evaluate(ctx context.Context, now time.Time) error
}

// Options configures an Engine
type Options struct {
	// ChannelID restricts score parsing to one channel when set
	ChannelID string
}

// Engine is the transport-agnostic entry point for all chat traffic
type Engine struct {
	parser    ScoreParser
	ledger    Ledger
	directory Directory
	ticker    Ticker
	catalog   messages.Catalog
	clock     clockwork.Clock
	opts      Options
	logger    *slog.Logger
}

// New creates an engine
func New(
	parser ScoreParser,
	ledger Ledger,
	directory Directory,
	ticker Ticker,
	catalog messages.Catalog,
	clock clockwork.Clock,
	opts Options,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		parser:    parser,
		ledger:    ledger,
		directory: directory,
		ticker:    ticker,
		catalog:   catalog,
		clock:     clock,
		opts:      opts,
		logger:    logger,
	}
}

// SetTicker sets the scheduler that tick events are forwarded to
func (e *Engine) SetTicker(ticker Ticker) {
	e.ticker = ticker
}

// Dispatch routes an event to its handler
func (e *Engine) Dispatch(ctx context.Context, ev domain.Event) ([]domain.Intent, error) {
	switch v := ev.(type) {
	case domain.MessageReceived:
		return e.OnMessage(ctx, v)
	case domain.CommandInvoked:
		return e.OnCommand(ctx, v)
	case domain.TickElapsed:
		return nil, e.OnTick(ctx, v)
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrInvalidEvent, ev)
	}
}

// OnMessage records a score found in the message. Only an accepted score
// produces an intent; storage failures are logged and dropped.
func (e *Engine) OnMessage(ctx context.Context, msg domain.MessageReceived) ([]domain.Intent, error) {
	if msg.Bot {
		return nil, nil
	}
	if e.opts.ChannelID != "" && msg.ChannelID != "" && msg.ChannelID != e.opts.ChannelID {
		return nil, nil
	}

	guesses, ok := e.parser.Parse(msg.Text)
	if !ok {
		return nil, nil
	}

	now := e.clock.Now()
	outcome, err := e.ledger.RecordScore(ctx, msg.UserID, guesses, now)
	if err != nil {
		e.logger.Error("failed to record score", "user_id", msg.UserID, "guesses", guesses, "error", err)
		return nil, nil
	}
	if !outcome.Accepted() {
		e.logger.Debug("score not improved", "user_id", msg.UserID, "guesses", guesses)
		return nil, nil
	}

	intent := e.reply(msg.ChannelID, msg.MessageID, e.catalog.ScoreRecorded(e.name(msg.UserID, msg.DisplayName), guesses, outcome == domain.OutcomeFirstOfDay), now)
	intent.Reaction = Reaction
	return []domain.Intent{intent}, nil
}

// OnCommand answers a chat command. Unknown commands are ignored.
// Storage failures are logged and answered with a generic failure text.
func (e *Engine) OnCommand(ctx context.Context, cmd domain.CommandInvoked) ([]domain.Intent, error) {
	now := e.clock.Now()
	name := e.name(cmd.UserID, cmd.DisplayName)

	var (
		text string
		err  error
	)
	switch strings.ToLower(cmd.Name) {
	case CommandSetTimezone:
		text, err = e.setTimezone(ctx, cmd, name)
	case CommandScore:
		text, err = e.score(ctx, cmd.UserID, name)
	case CommandLeaderboard:
		text, err = e.standings(ctx)
	case CommandHelp:
		text = e.catalog.Help()
	default:
		e.logger.Debug("ignoring unknown command", "command", cmd.Name, "user_id", cmd.UserID)
		return nil, nil
	}

	if err != nil {
		e.logger.Error("command failed", "command", cmd.Name, "user_id", cmd.UserID, "error", err)
		text = e.catalog.Failure()
	}
	return []domain.Intent{e.reply(cmd.ChannelID, cmd.MessageID, text, now)}, nil
}

// OnTick forwards the tick to the scheduler
func (e *Engine) OnTick(ctx context.Context, tick domain.TickElapsed) error {
	if e.ticker == nil {
		return nil
	}
	return e.ticker.Evaluate(ctx, e.at(tick.Timestamp))
}

// Standings exposes today's leaderboard to read-only transports
func (e *Engine) Standings(ctx context.Context) (domain.Leaderboard, error) {
	return e.ledger.RankedStandings(ctx)
}

// Best exposes a user's best score to read-only transports
func (e *Engine) Best(ctx context.Context, userID string) (int, bool, error) {
	return e.ledger.Best(ctx, userID)
}

func (e *Engine) setTimezone(ctx context.Context, cmd domain.CommandInvoked, name string) (string, error) {
	if len(cmd.Args) == 0 {
		return e.catalog.TimezoneUsage(), nil
	}

	requested := cmd.Args[0]
	zone, err := e.directory.SetTimezone(ctx, cmd.UserID, requested)
	if errors.Is(err, domain.ErrUnknownTimezone) {
		return e.catalog.UnknownTimezone(requested), nil
	}
	if err != nil {
		return "", err
	}
	return e.catalog.TimezoneSet(name, zone), nil
}

func (e *Engine) score(ctx context.Context, userID, name string) (string, error) {
	best, ok, err := e.ledger.Best(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return e.catalog.NoScore(name), nil
	}
	return e.catalog.BestScore(name, best), nil
}

func (e *Engine) standings(ctx context.Context) (string, error) {
	board, err := e.ledger.RankedStandings(ctx)
	if err != nil {
		return "", err
	}
	return e.catalog.Standings(board), nil
}

func (e *Engine) reply(channelID, messageID, text string, now time.Time) domain.Intent {
	intent := domain.NewIntent(text, now)
	intent.ChannelID = channelID
	intent.ReplyTo = messageID
	return intent
}

// at uses the tick time when the transport supplied one close to the
// engine clock. Anything further off is replaced by the clock.
func (e *Engine) at(ts time.Time) time.Time {
	now := e.clock.Now()
	if ts.IsZero() {
		return now
	}
	if skew := ts.Sub(now); skew > maxTickSkew || skew < -maxTickSkew {
		e.logger.Warn("tick timestamp out of range, using clock", "timestamp", ts, "now", now)
		return now
	}
	return ts
}

func (e *Engine) name(userID, displayName string) string {
	if displayName != "" {
		return displayName
	}
	return domain.Mention(userID)
}
