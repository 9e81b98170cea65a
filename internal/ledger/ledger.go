// Package ledger keeps the best score per user for the current day and
// rolls the day over in the reference timezone.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/leaderboard"
	"github.com/globle-leaderboard/internal/store"
)

// Ledger is the single live DailyScores document. Every operation reloads
// the document and runs inside the guard, so several processes can share
// a store when a distributed locker is supplied.
type Ledger struct {
	store  store.DocumentStore
	guard  *store.Guard
	clock  clockwork.Clock
	loc    *time.Location
	logger *slog.Logger

	// closed holds the standings of the last day dropped by a rollover
	// until CloseDay announces them
	closed domain.Leaderboard
}

// New creates a ledger. locker may be nil for single-process deployments.
func New(docs store.DocumentStore, locker store.Locker, clock clockwork.Clock, loc *time.Location, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  docs,
		guard:  store.NewGuard(locker),
		clock:  clock,
		loc:    loc,
		logger: logger,
	}
}

// Date returns the ledger date for an instant
func (l *Ledger) Date(now time.Time) string {
	return now.In(l.loc).Format(domain.DateLayout)
}

// RecordScore stores guesses if it beats the user's current best
func (l *Ledger) RecordScore(ctx context.Context, userID string, guesses int, now time.Time) (domain.Outcome, error) {
	if guesses < 1 {
		return domain.OutcomeRejected, nil
	}

	var outcome domain.Outcome
	err := l.update(ctx, now, func(day *domain.DailyScores) bool {
		if best, ok := day.Scores.Get(userID); ok && best <= guesses {
			outcome = domain.OutcomeRejected
			return false
		}

		outcome = domain.OutcomeRecorded
		if day.Scores.Len() == 0 {
			outcome = domain.OutcomeFirstOfDay
		}
		day.Scores.Set(userID, guesses)
		return true
	})
	if err != nil {
		return domain.OutcomeRejected, fmt.Errorf("recording score: %w", err)
	}

	if outcome.Accepted() {
		l.logger.Info("score recorded", "user_id", userID, "guesses", guesses, "outcome", outcome.String())
	}
	return outcome, nil
}

// Best returns the user's best score today
func (l *Ledger) Best(ctx context.Context, userID string) (int, bool, error) {
	var (
		best int
		ok   bool
	)
	err := l.update(ctx, l.clock.Now(), func(day *domain.DailyScores) bool {
		best, ok = day.Scores.Get(userID)
		return false
	})
	if err != nil {
		return 0, false, fmt.Errorf("reading best score: %w", err)
	}
	return best, ok, nil
}

// RankedStandings returns today's leaderboard
func (l *Ledger) RankedStandings(ctx context.Context) (domain.Leaderboard, error) {
	var board domain.Leaderboard
	err := l.update(ctx, l.clock.Now(), func(day *domain.DailyScores) bool {
		board = leaderboard.Rank(day.Date, day.Scores.Entries())
		return false
	})
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("reading standings: %w", err)
	}
	return board, nil
}

// ResetForNewDay clears the ledger if its date is before now's date.
// It reports whether a reset happened.
func (l *Ledger) ResetForNewDay(ctx context.Context, now time.Time) (bool, error) {
	unlock, err := l.guard.Lock(ctx)
	if err != nil {
		return false, fmt.Errorf("locking ledger: %w", err)
	}
	defer unlock()

	day, err := l.load(ctx)
	if err != nil {
		return false, err
	}
	if !l.rollover(&day, now) {
		return false, nil
	}
	if err := l.save(ctx, day); err != nil {
		return false, err
	}
	return true, nil
}

// CloseDay returns the standings of the day that ended just before now and
// resets the ledger. If the stored scores belong to an older day they are
// dropped and the returned standings are empty.
func (l *Ledger) CloseDay(ctx context.Context, now time.Time) (domain.Leaderboard, error) {
	local := now.In(l.loc)
	closing := time.Date(local.Year(), local.Month(), local.Day()-1, 12, 0, 0, 0, l.loc).Format(domain.DateLayout)
	board := domain.Leaderboard{Date: closing, Entries: []domain.LeaderboardEntry{}}

	unlock, err := l.guard.Lock(ctx)
	if err != nil {
		return board, fmt.Errorf("locking ledger: %w", err)
	}
	defer unlock()

	day, err := l.load(ctx)
	if err != nil {
		return board, err
	}

	switch {
	case day.Date == closing:
		board = leaderboard.Rank(closing, day.Scores.Entries())
	case l.closed.Date == closing:
		board = l.closed
	case day.Date != "" && day.Date < closing:
		l.logger.Warn("dropping scores from an earlier day", "date", day.Date, "closing", closing)
	}

	if l.rollover(&day, now) {
		if err := l.save(ctx, day); err != nil {
			return board, err
		}
	}
	l.closed = domain.Leaderboard{}
	return board, nil
}

// update runs fn on the current day inside the guard, persisting when
// fn or the rollover changed the document
func (l *Ledger) update(ctx context.Context, now time.Time, fn func(day *domain.DailyScores) bool) error {
	unlock, err := l.guard.Lock(ctx)
	if err != nil {
		return fmt.Errorf("locking ledger: %w", err)
	}
	defer unlock()

	day, err := l.load(ctx)
	if err != nil {
		return err
	}

	reset := l.rollover(&day, now)
	changed := fn(&day)
	if !reset && !changed {
		return nil
	}
	return l.save(ctx, day)
}

// rollover moves a stale document to now's date. A date ahead of now is kept.
// The dropped day's standings stay in memory for CloseDay.
func (l *Ledger) rollover(day *domain.DailyScores, now time.Time) bool {
	today := l.Date(now)
	if day.Date != "" && day.Date >= today {
		return false
	}
	if day.Date != "" {
		l.logger.Info("ledger rolled over", "from", day.Date, "to", today, "entries", day.Scores.Len())
		if day.Scores.Len() > 0 {
			l.closed = leaderboard.Rank(day.Date, day.Scores.Entries())
		}
	}
	*day = domain.DailyScores{Date: today}
	return true
}

func (l *Ledger) load(ctx context.Context) (domain.DailyScores, error) {
	var day domain.DailyScores
	data, err := l.store.Load(ctx, store.KeyScores)
	if errors.Is(err, domain.ErrNotFound) {
		return day, nil
	}
	if err != nil {
		return day, fmt.Errorf("loading scores: %w", err)
	}
	if err := json.Unmarshal(data, &day); err != nil {
		return day, fmt.Errorf("decoding scores: %w", err)
	}
	return day, nil
}

func (l *Ledger) save(ctx context.Context, day domain.DailyScores) error {
	data, err := json.MarshalIndent(day, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding scores: %w", err)
	}
	if err := l.store.Save(ctx, store.KeyScores, data); err != nil {
		return fmt.Errorf("saving scores: %w", err)
	}
	return nil
}
