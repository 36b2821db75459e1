// Package guest manages ephemeral guest identities and their play sessions.
package guest

import (
	"context"
	"errors"

	"github.com/terra-clan/code-review-quest/internal/models"
)

var (
	// ErrGuestNotFound is returned when a handle is unknown or expired
	ErrGuestNotFound = errors.New("guest not found")
	// ErrHandleTaken is returned by Create when the handle already exists
	ErrHandleTaken = errors.New("guest handle already exists")
	// ErrConflict is returned when an optimistic update keeps losing races
	ErrConflict = errors.New("guest record changed concurrently")
	// ErrInvalidUpdate is returned for malformed guest mutations
	ErrInvalidUpdate = errors.New("invalid guest update")
)

// MutateFunc changes a guest record in place. Returning an error discards
// every change it made.
type MutateFunc func(record *models.GuestRecord) error

// Store owns guest records. Implementations must make Mutate atomic per
// handle and must treat expired records as absent.
type Store interface {
	// Create inserts a new record. It never overwrites a live one.
	Create(ctx context.Context, record *models.GuestRecord) error
	// Get returns a copy of the record, or nil, nil when absent or expired.
	// A successful Get refreshes the record's last-active time.
	Get(ctx context.Context, handle string) (*models.GuestRecord, error)
	// Mutate applies fn atomically and returns the updated copy
	Mutate(ctx context.Context, handle string, fn MutateFunc) (*models.GuestRecord, error)
	// Delete removes the record and returns it, or nil, nil when absent
	Delete(ctx context.Context, handle string) (*models.GuestRecord, error)
	// Sweep removes expired records and reports how many were removed
	Sweep(ctx context.Context) (int, error)
}

// SessionStore holds play sessions owned by guests. Sessions live no longer
// than the guest TTL.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	// GetSession returns nil, nil when the session does not exist
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// CompleteSession stores a completed session only if the stored copy is
	// still active, and reports whether it did
	CompleteSession(ctx context.Context, session *models.Session) (bool, error)
	Sweep(ctx context.Context) (int, error)
}
