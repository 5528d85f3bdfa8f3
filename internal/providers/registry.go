package providers

import (
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

// Outcome labels recorded for provider operations.
const (
	OutcomeSuccess     = "success"
	OutcomeCallerError = "caller_error"
	OutcomeConfigError = "config_error"
	OutcomeRejected    = "provider_error"
	OutcomeTransport   = "transport_error"
	OutcomeUnavailable = "unavailable"
)

// BreakerSettings configures the per-provider circuit breakers.
type BreakerSettings struct {
	// Threshold is the number of consecutive upstream failures that opens the breaker.
	Threshold uint32
	// Timeout is how long an open breaker waits before going half-open.
	Timeout time.Duration
}

// Registry resolves providers by tag and runs their operations behind a
// circuit breaker.
type Registry struct {
	providers map[payment.Provider]Provider
	breakers  map[payment.Provider]*gobreaker.CircuitBreaker[*payment.Result]
	settings  BreakerSettings
	metrics   *observability.Metrics
}

// NewRegistry creates a registry. metrics may be nil.
func NewRegistry(settings BreakerSettings, metrics *observability.Metrics, list ...Provider) *Registry {
	if settings.Threshold == 0 {
		settings.Threshold = 5
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}

	r := &Registry{
		providers: make(map[payment.Provider]Provider),
		breakers:  make(map[payment.Provider]*gobreaker.CircuitBreaker[*payment.Result]),
		settings:  settings,
		metrics:   metrics,
	}
	for _, p := range list {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	name := p.Name()
	r.providers[name] = p
	r.breakers[name] = gobreaker.NewCircuitBreaker[*payment.Result](gobreaker.Settings{
		Name:        string(name),
		MaxRequests: 1,
		Timeout:     r.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.settings.Threshold
		},
		IsSuccessful: countsAsSuccess,
		IsExcluded:   excluded,
		OnStateChange: func(name string, _, to gobreaker.State) {
			if r.metrics != nil {
				r.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	if r.metrics != nil {
		r.metrics.CircuitBreakerState.WithLabelValues(string(name)).Set(float64(gobreaker.StateClosed))
	}
}

// Get returns the provider registered for the tag.
func (r *Registry) Get(name payment.Provider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, domainErrors.Invalid(domainErrors.ErrUnsupportedProvider, "type",
			fmt.Sprintf("Unsupported payment provider: %s", name))
	}
	return p, nil
}

// Capturer returns the provider's capture capability.
func (r *Registry) Capturer(name payment.Provider) (Capturer, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	c, ok := p.(Capturer)
	if !ok {
		return nil, domainErrors.Invalid(domainErrors.ErrOperationNotSupported, "type",
			fmt.Sprintf("Capture is not supported for provider: %s", name))
	}
	return c, nil
}

// StatusQuerier returns the provider's status capability.
func (r *Registry) StatusQuerier(name payment.Provider) (StatusQuerier, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	q, ok := p.(StatusQuerier)
	if !ok {
		return nil, domainErrors.Invalid(domainErrors.ErrOperationNotSupported, "type",
			fmt.Sprintf("Status queries are not supported for provider: %s", name))
	}
	return q, nil
}

// Names lists the registered provider tags.
func (r *Registry) Names() []payment.Provider {
	names := make([]payment.Provider, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}

// Execute runs fn behind the provider's breaker and records the outcome.
// An open breaker rejects the call with ErrProviderUnavailable without
// running fn.
func (r *Registry) Execute(name payment.Provider, operation string, fn func() (*payment.Result, error)) (*payment.Result, error) {
	breaker, ok := r.breakers[name]
	if !ok {
		return nil, domainErrors.Invalid(domainErrors.ErrUnsupportedProvider, "type",
			fmt.Sprintf("Unsupported payment provider: %s", name))
	}

	start := time.Now()
	result, err := breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s circuit open", domainErrors.ErrProviderUnavailable, name)
	}

	if r.metrics != nil {
		r.metrics.ProviderRequestsTotal.WithLabelValues(string(name), operation, Outcome(err)).Inc()
		r.metrics.ProviderRequestDuration.WithLabelValues(string(name), operation).Observe(time.Since(start).Seconds())
	}
	return result, err
}

// State reports the breaker state for a provider.
func (r *Registry) State(name payment.Provider) gobreaker.State {
	if b, ok := r.breakers[name]; ok {
		return b.State()
	}
	return gobreaker.StateClosed
}

// Outcome classifies an operation error for metrics and logs.
func Outcome(err error) string {
	var validationErr *domainErrors.ValidationError
	var providerErr *domainErrors.ProviderError
	var transportErr *domainErrors.TransportError

	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &validationErr):
		return OutcomeCallerError
	case errors.Is(err, domainErrors.ErrProviderNotConfigured):
		return OutcomeConfigError
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return OutcomeUnavailable
	case errors.As(err, &providerErr):
		return OutcomeRejected
	case errors.As(err, &transportErr):
		return OutcomeTransport
	default:
		return OutcomeTransport
	}
}

// excluded reports errors that say nothing about the provider's health.
// They count neither as failures nor as successes, so a caller mistake can
// not close a half-open breaker.
func excluded(err error) bool {
	switch Outcome(err) {
	case OutcomeCallerError, OutcomeConfigError:
		return true
	}
	return false
}

// countsAsSuccess keeps 4xx provider rejections from tripping the breaker.
func countsAsSuccess(err error) bool {
	switch Outcome(err) {
	case OutcomeSuccess:
		return true
	case OutcomeRejected:
		var providerErr *domainErrors.ProviderError
		errors.As(err, &providerErr)
		return providerErr.StatusCode >= 400 && providerErr.StatusCode < 500
	}
	return false
}
