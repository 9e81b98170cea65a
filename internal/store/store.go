// Package store persists the small JSON documents that hold daily scores
// and timezone assignments.
package store

import (
	"context"
	"sync"
)

// Document keys
const (
	KeyScores    = "scores"
	KeyTimezones = "user_timezones"
)

// DocumentStore loads and saves whole JSON documents by key.
// Load returns domain.ErrNotFound when the key has never been saved.
// Save replaces the document atomically.
type DocumentStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Locker serialises read-modify-write cycles across processes sharing a store
type Locker interface {
	Lock(ctx context.Context) (func(), error)
}

// NopLocker is used when a single process owns the store
type NopLocker struct{}

// Lock always succeeds
func (NopLocker) Lock(context.Context) (func(), error) {
	return func() {}, nil
}

// Guard combines an in-process mutex with an optional shared Locker
type Guard struct {
	mu     sync.Mutex
	shared Locker
}

// NewGuard creates a guard; a nil shared locker means process-local only
func NewGuard(shared Locker) *Guard {
	if shared == nil {
		shared = NopLocker{}
	}
	return &Guard{shared: shared}
}

// Lock acquires the local mutex and then the shared lock
func (g *Guard) Lock(ctx context.Context) (func(), error) {
	g.mu.Lock()
	release, err := g.shared.Lock(ctx)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	return func() {
		release()
		g.mu.Unlock()
	}, nil
}
