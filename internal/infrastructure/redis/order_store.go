package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	orderKeyPrefix       = "paygate:order:"
	providerRefKeyPrefix = "paygate:order:provider:"
)

// OrderStore keeps orders as JSON values with a secondary key mapping the
// provider reference back to the caller's reference. Both keys share the TTL.
type OrderStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewOrderStore creates a store. A zero ttl keeps orders forever.
func NewOrderStore(client *redis.Client, ttl time.Duration) *OrderStore {
	return &OrderStore{client: client, ttl: ttl, now: time.Now}
}

type orderRecord struct {
	Reference         string          `json:"reference"`
	Provider          string          `json:"provider"`
	ProviderReference string          `json:"provider_reference"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (s *OrderStore) Save(ctx context.Context, order *payment.Order) error {
	now := s.now().UTC()

	prev, err := s.GetByReference(ctx, order.Reference)
	if err != nil && !errors.Is(err, domainErrors.ErrOrderNotFound) {
		return err
	}

	rec := orderRecord{
		Reference:         order.Reference,
		Provider:          string(order.Provider),
		ProviderReference: order.ProviderReference,
		Status:            string(order.Status),
		Amount:            order.Amount,
		Currency:          order.Currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if prev != nil {
		rec.CreatedAt = prev.CreatedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, orderKeyPrefix+order.Reference, data, s.ttl)
	if prev != nil && prev.ProviderReference != "" && prev.ProviderReference != order.ProviderReference {
		pipe.Del(ctx, providerRefKey(prev.Provider, prev.ProviderReference))
	}
	if order.ProviderReference != "" {
		pipe.Set(ctx, providerRefKey(order.Provider, order.ProviderReference), order.Reference, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save order: %w", err)
	}

	order.CreatedAt, order.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (s *OrderStore) GetByReference(ctx context.Context, reference string) (*payment.Order, error) {
	data, err := s.client.Get(ctx, orderKeyPrefix+reference).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	var rec orderRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &payment.Order{
		Reference:         rec.Reference,
		Provider:          payment.Provider(rec.Provider),
		ProviderReference: rec.ProviderReference,
		Status:            payment.Status(rec.Status),
		Amount:            rec.Amount,
		Currency:          rec.Currency,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}, nil
}

func (s *OrderStore) GetByProviderReference(ctx context.Context, provider payment.Provider, providerRef string) (*payment.Order, error) {
	ref, err := s.client.Get(ctx, providerRefKey(provider, providerRef)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by provider reference: %w", err)
	}
	return s.GetByReference(ctx, ref)
}

func providerRefKey(provider payment.Provider, ref string) string {
	return providerRefKeyPrefix + string(provider) + ":" + ref
}
