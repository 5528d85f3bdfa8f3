package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order records a successful initiation so later status checks can be
// resolved from the caller's reference to the provider's identifier.
type Order struct {
	Reference         string
	Provider          Provider
	ProviderReference string
	Status            Status
	Amount            decimal.Decimal
	Currency          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderStore persists orders keyed by reference. Getters return
// errors.ErrOrderNotFound when nothing matches.
type OrderStore interface {
	// Save inserts or replaces the order with the same reference.
	Save(ctx context.Context, order *Order) error

	// GetByReference retrieves an order by the caller's reference.
	GetByReference(ctx context.Context, reference string) (*Order, error)

	// GetByProviderReference retrieves an order by the provider's identifier.
	GetByProviderReference(ctx context.Context, provider Provider, providerRef string) (*Order, error)
}
