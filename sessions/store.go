package sessions

import (
	"context"
	"time"
)

// Store defines the persistence operations the reconciler needs.
// Implementations must be safe for concurrent use.
type Store interface {
	// ListActive returns every session whose ExpireAt >= now.
	ListActive(ctx context.Context, now time.Time) ([]Session, error)

	// Get returns the session for key, expired or not, or ErrSessionNotFound.
	Get(ctx context.Context, key string) (Session, error)

	// Delete removes a session. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Save creates or replaces a session.
	Save(ctx context.Context, session Session) error

	// DeleteExpired removes sessions whose ExpireAt < now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
