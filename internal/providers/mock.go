package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockProvider is an in-process provider with scripted behaviour. It
// implements every capability.
type MockProvider struct {
	name    payment.Provider
	latency time.Duration

	initiate func(ctx context.Context, req payment.Request) (*payment.Result, error)
	capture  func(ctx context.Context, providerRef string) (*payment.Result, error)
	status   func(ctx context.Context, providerRef string) (*payment.Result, error)

	calls atomic.Int64
}

type MockProviderOption func(*MockProvider)

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

func WithInitiate(fn func(ctx context.Context, req payment.Request) (*payment.Result, error)) MockProviderOption {
	return func(p *MockProvider) { p.initiate = fn }
}

func WithCapture(fn func(ctx context.Context, providerRef string) (*payment.Result, error)) MockProviderOption {
	return func(p *MockProvider) { p.capture = fn }
}

func WithStatus(fn func(ctx context.Context, providerRef string) (*payment.Result, error)) MockProviderOption {
	return func(p *MockProvider) { p.status = fn }
}

// WithFailure makes every operation fail with err.
func WithFailure(err error) MockProviderOption {
	return func(p *MockProvider) {
		p.initiate = func(context.Context, payment.Request) (*payment.Result, error) { return nil, err }
		p.capture = func(context.Context, string) (*payment.Result, error) { return nil, err }
		p.status = func(context.Context, string) (*payment.Result, error) { return nil, err }
	}
}

func NewMockProvider(name payment.Provider, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{name: name}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() payment.Provider { return p.name }

// Validate applies the checks shared by every provider.
func (p *MockProvider) Validate(req payment.Request) error { return req.Validate() }

// Calls returns how many operations have been invoked.
func (p *MockProvider) Calls() int64 { return p.calls.Load() }

func (p *MockProvider) Initiate(ctx context.Context, req payment.Request) (*payment.Result, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if p.initiate != nil {
		return p.initiate(ctx, req)
	}
	return &payment.Result{
		Success:           true,
		Provider:          p.name,
		Status:            payment.StatusPending,
		Reference:         req.Reference,
		ProviderReference: fmt.Sprintf("%s_%s", p.name, uuid.New().String()[:8]),
		Amount:            decimal.NewNullDecimal(req.Amount),
		Currency:          req.Currency,
		Message:           "Payment initiated",
	}, nil
}

func (p *MockProvider) Capture(ctx context.Context, providerRef string) (*payment.Result, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if p.capture != nil {
		return p.capture(ctx, providerRef)
	}
	return &payment.Result{
		Success:           true,
		Provider:          p.name,
		Status:            payment.StatusCompleted,
		ProviderReference: providerRef,
		TransactionID:     fmt.Sprintf("%s_txn_%s", p.name, uuid.New().String()[:8]),
		ProviderStatus:    "COMPLETED",
	}, nil
}

func (p *MockProvider) QueryStatus(ctx context.Context, providerRef string) (*payment.Result, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if p.status != nil {
		return p.status(ctx, providerRef)
	}
	return &payment.Result{
		Success:           true,
		Provider:          p.name,
		Status:            payment.StatusPending,
		ProviderReference: providerRef,
		ProviderStatus:    "PENDING",
	}, nil
}

func (p *MockProvider) wait(ctx context.Context) error {
	p.calls.Add(1)
	if p.latency == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
