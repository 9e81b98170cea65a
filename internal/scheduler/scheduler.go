// Package scheduler announces the daily winner and sends timezone-aware
// reminders on whole-minute ticks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/messages"
	"github.com/globle-leaderboard/internal/outbound"
	"github.com/globle-leaderboard/internal/timezone"
)

// DayCloser ends the current ledger day
type DayCloser interface {
	CloseDay(ctx context.Context, now time.Time) (domain.Leaderboard, error)
}

// TimezoneLister lists every user's timezone
type TimezoneLister interface {
	Assignments(ctx context.Context) (map[string]string, error)
}

// Slot is a reminder time of day
type Slot string

const (
	SlotMorning Slot = "morning"
	SlotEvening Slot = "evening"
)

// Config holds reminder timing
type Config struct {
	MorningHour int
	EveningHour int
	// Window is how many minutes after the hour a reminder may still fire
	Window   int
	Cooldown time.Duration
}

type fireKey struct {
	userID string
	slot   Slot
}

// Scheduler evaluates each minute at most once
type Scheduler struct {
	ledger    DayCloser
	directory TimezoneLister
	publisher outbound.Publisher
	catalog   messages.Catalog
	clock     clockwork.Clock
	loc       *time.Location
	config    Config
	logger    *slog.Logger

	// evaluation state
	evalMu         sync.Mutex
	lastEval       time.Time
	lastWinnerDate string
	lastSweep      time.Time
	fired          map[fireKey]string

	// lifecycle
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a scheduler. loc is the reference timezone for the winner announcement.
func New(
	ledger DayCloser,
	directory TimezoneLister,
	publisher outbound.Publisher,
	catalog messages.Catalog,
	clock clockwork.Clock,
	loc *time.Location,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		ledger:    ledger,
		directory: directory,
		publisher: publisher,
		catalog:   catalog,
		clock:     clock,
		loc:       loc,
		config:    cfg,
		logger:    logger,
		fired:     make(map[fireKey]string),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the minute loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		"timezone", s.loc.String(),
		"morning_hour", s.config.MorningHour,
		"evening_hour", s.config.EveningHour,
	)

	go s.run(ctx)
	return nil
}

// Stop stops the loop and waits for an in-flight tick to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}

// run sleeps to each minute boundary, recomputed from the clock every time
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		now := s.clock.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := s.clock.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.Chan():
		}

		if err := s.tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err, "cooldown", s.config.Cooldown)

			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-s.clock.After(s.config.Cooldown):
			}
		}
	}
}

// tick runs one evaluation detached from shutdown and converts panics to errors
func (s *Scheduler) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler panic: %v", r)
		}
	}()
	return s.Evaluate(context.WithoutCancel(ctx), s.clock.Now())
}

// Evaluate runs the winner trigger and reminder sweep for now.
// A minute that was already evaluated is ignored.
func (s *Scheduler) Evaluate(ctx context.Context, now time.Time) error {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	minute := now.Truncate(time.Minute)
	if !s.lastEval.IsZero() && !minute.After(s.lastEval) {
		return nil
	}
	s.lastEval = minute

	var errs []error

	local := now.In(s.loc)
	if local.Hour() == 0 && local.Minute() == 0 {
		date := local.Format(domain.DateLayout)
		if date != s.lastWinnerDate {
			s.lastWinnerDate = date
			if err := s.announceWinner(ctx, now); err != nil {
				errs = append(errs, fmt.Errorf("announcing winner: %w", err))
			}
		}
	}

	utc := now.UTC()
	hour := utc.Truncate(time.Hour)
	if utc.Minute() < s.config.Window && hour.After(s.lastSweep) {
		// a failed sweep is retried by the next tick in the window;
		// fire records keep users who were reminded from a repeat
		if err := s.sweep(ctx, now); err != nil {
			errs = append(errs, fmt.Errorf("sending reminders: %w", err))
		} else {
			s.lastSweep = hour
		}
	}

	return errors.Join(errs...)
}

func (s *Scheduler) announceWinner(ctx context.Context, now time.Time) error {
	board, err := s.ledger.CloseDay(ctx, now)
	if err != nil {
		return err
	}

	winner, ok := board.Winner()
	if !ok {
		s.logger.Info("no scores for closing day", "date", board.Date)
		return s.publisher.Publish(ctx, domain.NewIntent(s.catalog.NoScoresToday(), now))
	}

	s.logger.Info("daily winner", "date", board.Date, "user_id", winner.UserID, "guesses", winner.Guesses, "participants", len(board.Entries))

	announcement := domain.NewIntent(s.catalog.Winner(board.Date, winner), now)
	announcement.Mentions = []string{winner.UserID}
	intents := []domain.Intent{announcement}

	if len(board.Entries) > 1 {
		final := domain.NewIntent(s.catalog.FinalStandings(board), now)
		for _, e := range board.Entries {
			final.Mentions = append(final.Mentions, e.UserID)
		}
		intents = append(intents, final)
	}

	return outbound.PublishAll(ctx, s.publisher, intents)
}

// sweep batches every user whose local time is inside a reminder window
func (s *Scheduler) sweep(ctx context.Context, now time.Time) error {
	assignments, err := s.directory.Assignments(ctx)
	if err != nil {
		return err
	}

	userIDs := make([]string, 0, len(assignments))
	for id := range assignments {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	batches := map[Slot][]string{}
	dates := map[fireKey]string{}
	for _, id := range userIDs {
		loc, err := timezone.Resolve(assignments[id])
		if err != nil {
			s.logger.Warn("skipping reminder for invalid timezone", "user_id", id, "timezone", assignments[id], "error", err)
			continue
		}

		local := now.In(loc)
		if local.Minute() >= s.config.Window {
			continue
		}

		var slot Slot
		switch local.Hour() {
		case s.config.MorningHour:
			slot = SlotMorning
		case s.config.EveningHour:
			slot = SlotEvening
		default:
			continue
		}

		key := fireKey{userID: id, slot: slot}
		date := local.Format(domain.DateLayout)
		if s.fired[key] == date {
			continue
		}
		batches[slot] = append(batches[slot], id)
		dates[key] = date
	}

	var errs []error
	for _, slot := range []Slot{SlotMorning, SlotEvening} {
		ids := batches[slot]
		if len(ids) == 0 {
			continue
		}

		text := s.catalog.MorningReminder(ids)
		if slot == SlotEvening {
			text = s.catalog.EveningReminder(ids)
		}
		intent := domain.NewIntent(text, now)
		intent.Mentions = ids

		if err := s.publisher.Publish(ctx, intent); err != nil {
			errs = append(errs, fmt.Errorf("%s reminder: %w", slot, err))
			continue
		}
		for _, id := range ids {
			key := fireKey{userID: id, slot: slot}
			s.fired[key] = dates[key]
		}
		s.logger.Info("reminders sent", "slot", string(slot), "users", len(ids))
	}
	return errors.Join(errs...)
}
