// Package timezone stores each user's IANA timezone for reminders.
package timezone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/store"
)

// Directory maps user IDs to zone names
type Directory struct {
	store  store.DocumentStore
	guard  *store.Guard
	logger *slog.Logger
}

// NewDirectory creates a directory. locker may be nil.
func NewDirectory(docs store.DocumentStore, locker store.Locker, logger *slog.Logger) *Directory {
	return &Directory{
		store:  docs,
		guard:  store.NewGuard(locker),
		logger: logger,
	}
}

// Resolve validates a zone name and loads it
func Resolve(zone string) (*time.Location, error) {
	if zone == "" || strings.EqualFold(zone, "Local") {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTimezone, zone)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTimezone, zone)
	}
	return loc, nil
}

// SetTimezone validates zone and assigns it to the user.
// It returns the canonical zone name as stored.
func (d *Directory) SetTimezone(ctx context.Context, userID, zone string) (string, error) {
	zone = strings.TrimSpace(zone)
	loc, err := Resolve(zone)
	if err != nil {
		return "", err
	}
	name := loc.String()

	unlock, err := d.guard.Lock(ctx)
	if err != nil {
		return "", fmt.Errorf("locking timezones: %w", err)
	}
	defer unlock()

	assignments, err := d.load(ctx)
	if err != nil {
		return "", err
	}
	assignments[userID] = name
	if err := d.save(ctx, assignments); err != nil {
		return "", err
	}

	d.logger.Info("timezone set", "user_id", userID, "timezone", name)
	return name, nil
}

// Timezone returns the user's zone, if any
func (d *Directory) Timezone(ctx context.Context, userID string) (string, bool, error) {
	assignments, err := d.load(ctx)
	if err != nil {
		return "", false, err
	}
	zone, ok := assignments[userID]
	return zone, ok, nil
}

// Assignments returns a snapshot of every assignment
func (d *Directory) Assignments(ctx context.Context) (map[string]string, error) {
	return d.load(ctx)
}

func (d *Directory) load(ctx context.Context) (map[string]string, error) {
	assignments := make(map[string]string)
	data, err := d.store.Load(ctx, store.KeyTimezones)
	if errors.Is(err, domain.ErrNotFound) {
		return assignments, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading timezones: %w", err)
	}
	if err := json.Unmarshal(data, &assignments); err != nil {
		return nil, fmt.Errorf("decoding timezones: %w", err)
	}
	if assignments == nil {
		assignments = make(map[string]string)
	}
	return assignments, nil
}

func (d *Directory) save(ctx context.Context, assignments map[string]string) error {
	data, err := json.MarshalIndent(assignments, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding timezones: %w", err)
	}
	if err := d.store.Save(ctx, store.KeyTimezones, data); err != nil {
		return fmt.Errorf("saving timezones: %w", err)
	}
	return nil
}
