package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/idempotency"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the owner may release a lock.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Locker implements idempotency.Locker with SET NX PX, so concurrent
// requests carrying the same key are serialized across instances.
type Locker struct {
	client *redis.Client
	prefix string
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client, prefix: "paygate:lock:"}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lockKey := l.prefix + key
	owner := uuid.New().String()

	ok, err := l.client.SetNX(ctx, lockKey, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, idempotency.ErrInFlight
	}

	return func(ctx context.Context) error {
		res, err := releaseLockScript.Run(ctx, l.client, []string{lockKey}, owner).Int64()
		if err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		if res == 0 {
			return errors.New("lock not held or already expired")
		}
		return nil
	}, nil
}
