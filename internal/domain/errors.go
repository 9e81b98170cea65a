package domain

import "errors"

// Domain errors
var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownTimezone = errors.New("unknown timezone")
	ErrInvalidScore    = errors.New("invalid score value")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInternalError   = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
