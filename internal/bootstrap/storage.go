package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/paygate/internal/controller"
	"github.com/cassiomorais/paygate/internal/domain/idempotency"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	infraRedis "github.com/cassiomorais/paygate/internal/infrastructure/redis"
	"github.com/cassiomorais/paygate/internal/repository/memory"
	"github.com/cassiomorais/paygate/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Storage groups the order and idempotency backends selected by
// storage.backend.
type Storage struct {
	Orders      payment.OrderStore
	Idempotency idempotency.Store
	Locker      idempotency.Locker
	Checks      map[string]controller.Pinger

	// Cleanup purges expired idempotency rows; nil when the backend expires them itself.
	Cleanup func(ctx context.Context) (int64, error)

	closers []func()
}

func OpenStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return &Storage{
			Orders:      memory.NewOrderStore(),
			Idempotency: memory.NewIdempotencyStore(),
			Locker:      memory.NewLocker(),
		}, nil

	case config.BackendRedis:
		client, err := infraRedis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Connected to Redis")
		return redisStorage(client, cfg.Storage.OrderTTL), nil

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info().Str("host", cfg.Database.Host).Msg("Connected to PostgreSQL")
		return postgresStorage(pool), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func redisStorage(client *redis.Client, orderTTL time.Duration) *Storage {
	return &Storage{
		Orders:      infraRedis.NewOrderStore(client, orderTTL),
		Idempotency: infraRedis.NewIdempotencyStore(client),
		Locker:      infraRedis.NewLocker(client),
		Checks: map[string]controller.Pinger{
			"redis": controller.PingFunc(func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}),
		},
		closers: []func(){func() { client.Close() }},
	}
}

// postgresStorage keeps in-flight locks in process; a single replica is
// assumed for that backend.
func postgresStorage(pool *pgxpool.Pool) *Storage {
	idem := postgres.NewIdempotencyRepository(pool)
	return &Storage{
		Orders:      postgres.NewOrderRepository(pool),
		Idempotency: idem,
		Locker:      memory.NewLocker(),
		Checks:      map[string]controller.Pinger{"database": pool},
		Cleanup:     idem.Cleanup,
		closers:     []func(){pool.Close},
	}
}

func (s *Storage) Close() {
	for _, c := range s.closers {
		c()
	}
}
