package idempotency

import (
	"context"
	"errors"
	"time"
)

// Entry is a stored HTTP response replayed for a repeated Idempotency-Key.
type Entry struct {
	Key            string
	ResponseBody   string
	ResponseStatus int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the entry should no longer be replayed.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Store persists idempotency entries. Get returns (nil, nil) when the key is
// unknown or expired.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
}

// ErrInFlight is returned by a Locker when another request holds the key.
var ErrInFlight = errors.New("a request with this idempotency key is already in progress")

// Locker guards a key while the first request carrying it is processed.
type Locker interface {
	// Acquire takes the key for at most ttl. The returned func releases it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
