package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/idempotency"
)

// IdempotencyStore keeps replayable responses in memory. Expired entries
// are dropped lazily on read.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotency.Entry
	now     func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		entries: make(map[string]idempotency.Entry),
		now:     time.Now,
	}
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (*idempotency.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if e.Expired(s.now()) {
		delete(s.entries, key)
		return nil, nil
	}
	return &e, nil
}

func (s *IdempotencyStore) Set(_ context.Context, entry *idempotency.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = *entry
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
