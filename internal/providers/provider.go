package providers

import (
	"context"

	"github.com/cassiomorais/paygate/internal/domain/payment"
)

// Provider is the capability every payment provider has: starting a payment.
type Provider interface {
	// Name returns the provider tag.
	Name() payment.Provider
	// Validate checks a request without any outbound call. It is run before
	// the request reaches the provider's circuit breaker.
	Validate(req payment.Request) error
	// Initiate starts a payment. Caller errors are returned before any
	// outbound call.
	Initiate(ctx context.Context, req payment.Request) (*payment.Result, error)
}

// Capturer is implemented by providers whose payments need an explicit
// capture after buyer approval.
type Capturer interface {
	Capture(ctx context.Context, providerRef string) (*payment.Result, error)
}

// StatusQuerier is implemented by providers that can report the current
// state of a payment by their own identifier.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, providerRef string) (*payment.Result, error)
}
