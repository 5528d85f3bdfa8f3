package service

import (
	"context"
	"errors"
	"strings"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/rs/zerolog"
)

// Operation labels used for breaker metrics.
const (
	OpInitiate = "initiate"
	OpCapture  = "capture"
	OpStatus   = "status"
)

// GatewayService is the single entry point for payment operations. It picks
// the provider by tag, runs the call through the registry's breaker and keeps
// the order store in step with what providers report.
type GatewayService struct {
	registry *providers.Registry
	orders   payment.OrderStore
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewGatewayService creates a GatewayService. metrics may be nil.
func NewGatewayService(
	registry *providers.Registry,
	orders payment.OrderStore,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *GatewayService {
	return &GatewayService{
		registry: registry,
		orders:   orders,
		metrics:  metrics,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

// Initiate starts a payment with the selected provider and records the order.
// The request is validated before the breaker is consulted.
func (s *GatewayService) Initiate(ctx context.Context, provider payment.Provider, req payment.Request) (*payment.Result, error) {
	p, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(req); err != nil {
		return nil, err
	}

	res, err := s.registry.Execute(provider, OpInitiate, func() (*payment.Result, error) {
		return p.Initiate(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	currency := res.Currency
	if currency == "" {
		currency = req.Currency
	}
	s.save(ctx, &payment.Order{
		Reference:         req.Reference,
		Provider:          provider,
		ProviderReference: res.ProviderReference,
		Status:            res.Status,
		Amount:            req.Amount,
		Currency:          currency,
	})
	return res, nil
}

// Capture completes an approved payment for providers that need it.
func (s *GatewayService) Capture(ctx context.Context, provider payment.Provider, providerRef string) (*payment.Result, error) {
	c, err := s.registry.Capturer(provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(providerRef) == "" {
		return nil, domainErrors.Invalid(domainErrors.ErrMissingFields, "order_id", "Missing required fields: order_id")
	}

	res, err := s.registry.Execute(provider, OpCapture, func() (*payment.Result, error) {
		return c.Capture(ctx, providerRef)
	})
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetByProviderReference(ctx, provider, providerRef)
	switch {
	case err == nil:
		res.Reference = order.Reference
		s.update(ctx, order, res)
	case !errors.Is(err, domainErrors.ErrOrderNotFound):
		s.storeFailed("get", err)
	}
	return res, nil
}

// Status reports the current state of a payment by the caller's reference.
// A reference with a stored order is resolved to the provider's identifier;
// any other reference is passed to the provider as given.
func (s *GatewayService) Status(ctx context.Context, q payment.StatusQuery) (*payment.Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	querier, err := s.registry.StatusQuerier(q.Provider)
	if err != nil {
		return nil, err
	}

	order := s.lookup(ctx, q)
	providerRef := q.Reference
	if order != nil && order.ProviderReference != "" {
		providerRef = order.ProviderReference
	}

	res, err := s.registry.Execute(q.Provider, OpStatus, func() (*payment.Result, error) {
		return querier.QueryStatus(ctx, providerRef)
	})
	if err != nil {
		return nil, err
	}

	res.Reference = q.Reference
	if order != nil {
		if !res.Amount.Valid {
			res.Amount.Decimal, res.Amount.Valid = order.Amount, true
		}
		if res.Currency == "" {
			res.Currency = order.Currency
		}
		s.update(ctx, order, res)
	}
	return res, nil
}

// lookup finds the stored order for a status query by either reference.
func (s *GatewayService) lookup(ctx context.Context, q payment.StatusQuery) *payment.Order {
	order, err := s.orders.GetByReference(ctx, q.Reference)
	if err == nil && order.Provider == q.Provider {
		return order
	}
	if err != nil && !errors.Is(err, domainErrors.ErrOrderNotFound) {
		s.storeFailed("get", err)
		return nil
	}

	order, err = s.orders.GetByProviderReference(ctx, q.Provider, q.Reference)
	if err != nil {
		if !errors.Is(err, domainErrors.ErrOrderNotFound) {
			s.storeFailed("get", err)
		}
		return nil
	}
	return order
}

func (s *GatewayService) update(ctx context.Context, order *payment.Order, res *payment.Result) {
	if order.Status == res.Status {
		return
	}
	order.Status = res.Status
	s.save(ctx, order)
}

// save records an order. Failures are logged and counted, never returned.
func (s *GatewayService) save(ctx context.Context, order *payment.Order) {
	if err := s.orders.Save(ctx, order); err != nil {
		s.storeFailed("save", err)
		s.logger.Warn().Str("reference", order.Reference).Str("provider", string(order.Provider)).Msg("order not recorded")
	}
}

func (s *GatewayService) storeFailed(op string, err error) {
	s.logger.Warn().Err(err).Str("operation", op).Msg("order store failure")
	if s.metrics != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	}
}
