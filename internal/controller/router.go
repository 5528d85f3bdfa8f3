package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/idempotency"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/paygate/internal/middleware"
	"github.com/cassiomorais/paygate/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const requestTimeout = 60 * time.Second

type RouterDeps struct {
	Gateway          *service.GatewayService
	IdempotencyStore idempotency.Store
	Locker           idempotency.Locker
	IdempotencyTTL   time.Duration
	HealthChecks     map[string]Pinger
	Metrics          *observability.Metrics
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer    prometheus.Gatherer
	CORSConfig  config.CORSConfig
	RateLimit   int
	ServiceName string
	Logger      zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{customMW.HeaderReplayed},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.HealthChecks)
	paymentH := NewPaymentController(deps.Gateway)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	idempotencyMW := customMW.Idempotency(customMW.IdempotencyOptions{
		Store:  deps.IdempotencyStore,
		Locker: deps.Locker,
		TTL:    deps.IdempotencyTTL,
	})

	limiter := customMW.RateLimit(deps.RateLimit)
	payments := func(r chi.Router) {
		r.Use(limiter)

		r.With(idempotencyMW).Post("/paypal", paymentH.CreatePayPalOrder)
		r.Put("/paypal", paymentH.CapturePayPalOrder)
		r.With(idempotencyMW).Post("/pesapal", paymentH.SubmitPesapalOrder)
		r.With(idempotencyMW).Post("/relworx", paymentH.RequestRelworxPayment)
		r.Get("/status", paymentH.GetStatus)
	}
	r.Route("/payments", payments)
	r.Route("/api/payments", payments)

	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
