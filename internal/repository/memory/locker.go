package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/idempotency"
)

// Locker is a process-local idempotency.Locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]time.Time), now: time.Now}
}

func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, idempotency.ErrInFlight
	}
	until := now.Add(ttl)
	l.held[key] = until

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
		return nil
	}, nil
}
