package testutil

import (
	"context"
	"sync"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
)

// --- Order Store Mock ---

// MockOrderStore is an in-memory payment.OrderStore whose methods can be
// overridden to inject failures.
type MockOrderStore struct {
	mu     sync.Mutex
	orders map[string]*payment.Order
	saves  int

	SaveFunc                   func(ctx context.Context, o *payment.Order) error
	GetByReferenceFunc         func(ctx context.Context, reference string) (*payment.Order, error)
	GetByProviderReferenceFunc func(ctx context.Context, provider payment.Provider, ref string) (*payment.Order, error)
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{orders: make(map[string]*payment.Order)}
}

func (m *MockOrderStore) Save(ctx context.Context, o *payment.Order) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.Reference] = &cp
	m.saves++
	return nil
}

func (m *MockOrderStore) GetByReference(ctx context.Context, reference string) (*payment.Order, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, reference)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[reference]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderStore) GetByProviderReference(ctx context.Context, provider payment.Provider, ref string) (*payment.Order, error) {
	if m.GetByProviderReferenceFunc != nil {
		return m.GetByProviderReferenceFunc(ctx, provider, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Provider == provider && o.ProviderReference == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrOrderNotFound
}

// Stored returns the order saved under reference, or nil.
func (m *MockOrderStore) Stored(reference string) *payment.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[reference]
}

// Saves returns how many successful saves were made.
func (m *MockOrderStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
