package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `reference, provider, provider_reference, status, amount::text, currency, created_at, updated_at`

// Save upserts by reference. created_at is kept from the first insert.
func (r *OrderRepository) Save(ctx context.Context, order *payment.Order) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO orders (id, reference, provider, provider_reference, status, amount, currency, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, NOW(), NOW())
		 ON CONFLICT (reference) DO UPDATE SET
		     provider = EXCLUDED.provider,
		     provider_reference = EXCLUDED.provider_reference,
		     status = EXCLUDED.status,
		     amount = EXCLUDED.amount,
		     currency = EXCLUDED.currency,
		     updated_at = NOW()
		 RETURNING created_at, updated_at`,
		uuid.New(), order.Reference, string(order.Provider), order.ProviderReference,
		string(order.Status), numericString(order.Amount), order.Currency,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*payment.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE reference = $1`, reference)
	return scanOrder(row)
}

func (r *OrderRepository) GetByProviderReference(ctx context.Context, provider payment.Provider, providerRef string) (*payment.Order, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE provider = $1 AND provider_reference = $2`,
		string(provider), providerRef)
	return scanOrder(row)
}

func scanOrder(row pgx.Row) (*payment.Order, error) {
	var (
		o        payment.Order
		provider string
		status   string
		amount   string
	)
	err := row.Scan(&o.Reference, &provider, &o.ProviderReference, &status, &amount, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	o.Provider = payment.Provider(provider)
	o.Status = payment.Status(status)
	if o.Amount, err = parseNumeric(amount); err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}
