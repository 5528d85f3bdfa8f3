package bootstrap

import (
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/providers/paypal"
	"github.com/cassiomorais/paygate/internal/providers/pesapal"
	"github.com/cassiomorais/paygate/internal/providers/relworx"
	"github.com/cassiomorais/paygate/internal/tokencache"
	"github.com/rs/zerolog"
)

// NewProviderRegistry builds every provider client on one shared outbound
// client. Providers without credentials are still registered and fail per
// call with a configuration error.
func NewProviderRegistry(cfg config.ProvidersConfig, metrics *observability.Metrics, logger zerolog.Logger) *providers.Registry {
	httpClient := providers.NewHTTPClient(cfg.RequestTimeout)

	tokenOpts := func(p payment.Provider) []tokencache.Option {
		opts := []tokencache.Option{tokencache.WithSafetyMargin(cfg.TokenSafetyMargin)}
		if metrics != nil {
			counter := metrics.TokenRefreshesTotal.WithLabelValues(string(p))
			opts = append(opts, tokencache.WithRefreshHook(counter.Inc))
		}
		return opts
	}

	paypalClient := paypal.New(paypal.Config{
		BaseURL:              cfg.PayPalBaseURL(),
		ClientID:             cfg.PayPal.ClientID,
		ClientSecret:         cfg.PayPal.ClientSecret,
		ReturnURL:            cfg.PayPal.ReturnURL,
		CancelURL:            cfg.PayPal.CancelURL,
		DefaultTokenLifetime: cfg.PayPal.DefaultTokenLifetime,
	}, httpClient, observability.ProviderLogger(logger, string(payment.ProviderPayPal)), tokenOpts(payment.ProviderPayPal)...)

	pesapalClient := pesapal.New(pesapal.Config{
		BaseURL:              cfg.PesapalBaseURL(),
		ConsumerKey:          cfg.Pesapal.ConsumerKey,
		ConsumerSecret:       cfg.Pesapal.ConsumerSecret,
		CallbackURL:          cfg.Pesapal.CallbackURL,
		DefaultTokenLifetime: cfg.Pesapal.DefaultTokenLifetime,
	}, httpClient, observability.ProviderLogger(logger, string(payment.ProviderPesapal)), tokenOpts(payment.ProviderPesapal)...)

	relworxClient := relworx.New(relworx.Config{
		BaseURL:   cfg.RelworxBaseURL(),
		APIKey:    cfg.Relworx.APIKey,
		AccountNo: cfg.Relworx.AccountNo,
	}, httpClient, observability.ProviderLogger(logger, string(payment.ProviderRelworx)))

	for _, p := range []struct {
		name       payment.Provider
		configured bool
	}{
		{payment.ProviderPayPal, cfg.PayPal.ClientID != "" && cfg.PayPal.ClientSecret != ""},
		{payment.ProviderPesapal, cfg.Pesapal.ConsumerKey != "" && cfg.Pesapal.ConsumerSecret != ""},
		{payment.ProviderRelworx, cfg.Relworx.APIKey != "" && cfg.Relworx.AccountNo != ""},
	} {
		if !p.configured {
			logger.Warn().Str("provider", string(p.name)).Msg("Provider credentials missing, calls will fail until configured")
		}
	}

	return providers.NewRegistry(providers.BreakerSettings{
		Threshold: cfg.CircuitBreakerThreshold,
		Timeout:   cfg.CircuitBreakerTimeout,
	}, metrics, paypalClient, pesapalClient, relworxClient)
}
