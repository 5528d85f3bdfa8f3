// Package memory holds process-local stores used when no external backend
// is configured.
package memory

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
)

type OrderStore struct {
	mu          sync.RWMutex
	byReference map[string]payment.Order
	// provider|provider_reference -> reference
	byProviderRef map[string]string
	now           func() time.Time
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		byReference:   make(map[string]payment.Order),
		byProviderRef: make(map[string]string),
		now:           time.Now,
	}
}

func (s *OrderStore) Save(_ context.Context, order *payment.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := *order
	now := s.now()
	if prev, ok := s.byReference[o.Reference]; ok {
		o.CreatedAt = prev.CreatedAt
		if prev.ProviderReference != o.ProviderReference {
			delete(s.byProviderRef, providerKey(prev.Provider, prev.ProviderReference))
		}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	s.byReference[o.Reference] = o
	if o.ProviderReference != "" {
		s.byProviderRef[providerKey(o.Provider, o.ProviderReference)] = o.Reference
	}

	order.CreatedAt, order.UpdatedAt = o.CreatedAt, o.UpdatedAt
	return nil
}

func (s *OrderStore) GetByReference(_ context.Context, reference string) (*payment.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.byReference[reference]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	return &o, nil
}

func (s *OrderStore) GetByProviderReference(_ context.Context, provider payment.Provider, providerRef string) (*payment.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.byProviderRef[providerKey(provider, providerRef)]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	o := s.byReference[ref]
	return &o, nil
}

func providerKey(provider payment.Provider, ref string) string {
	return string(provider) + "|" + ref
}
