package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/idempotency"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "paygate:idempotency:"

// IdempotencyStore keeps replayable responses with a Redis expiry matching
// the entry's ExpiresAt.
type IdempotencyStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client, now: time.Now}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*idempotency.Entry, error) {
	data, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}

	var e idempotency.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal idempotency entry: %w", err)
	}
	if e.Expired(s.now()) {
		return nil, nil
	}
	return &e, nil
}

func (s *IdempotencyStore) Set(ctx context.Context, entry *idempotency.Entry) error {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal idempotency entry: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyKeyPrefix+entry.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}
