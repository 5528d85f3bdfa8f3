package testutil

import (
	"time"

	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewTestRequest returns a request that passes the generic checks, with a
// unique reference.
func NewTestRequest(amount int64, currency string) payment.Request {
	return payment.Request{
		Amount:      decimal.NewFromInt(amount),
		Currency:    currency,
		Reference:   "ORD-" + uuid.New().String()[:8],
		Description: "Test order",
	}
}

// NewMobileMoneyRequest returns a request Relworx accepts.
func NewMobileMoneyRequest(reference string) payment.Request {
	return payment.Request{
		MSISDN:    "+256701345678",
		Amount:    decimal.NewFromInt(5000),
		Currency:  "UGX",
		Reference: reference,
	}
}

func NewTestOrder(provider payment.Provider, reference, providerRef string) *payment.Order {
	now := time.Now()
	return &payment.Order{
		Reference:         reference,
		Provider:          provider,
		ProviderReference: providerRef,
		Status:            payment.StatusPending,
		Amount:            decimal.NewFromInt(100),
		Currency:          "USD",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
