package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-tours/internal/app"
	"github.com/noah-isme/backend-tours/internal/booking"
	"github.com/noah-isme/backend-tours/internal/catalog"
	"github.com/noah-isme/backend-tours/internal/checkout"
	"github.com/noah-isme/backend-tours/internal/common"
	"github.com/noah-isme/backend-tours/internal/config"
	"github.com/noah-isme/backend-tours/internal/db"
	"github.com/noah-isme/backend-tours/internal/discount"
	"github.com/noah-isme/backend-tours/internal/health"
	"github.com/noah-isme/backend-tours/internal/obs"
	"github.com/noah-isme/backend-tours/internal/payment"
	"github.com/noah-isme/backend-tours/internal/ratelimit"
	"github.com/noah-isme/backend-tours/internal/resilience"
	"github.com/noah-isme/backend-tours/internal/security"
)

// handlers bundles everything the router mounts.
type handlers struct {
	checkout *checkout.Handler
	catalog  *catalog.Handler
	webhook  payment.WebhookHandler
	health   health.Handler
	idem     common.Idem
	limit    ratelimit.Handler
	body     security.BodyLimit
	metrics  *obs.HTTPMetrics
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(prometheus.DefaultRegisterer)

	tracing := cfg.Obs.TracingEnabled
	if tracing {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "tours-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracing = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := db.Up(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	deps, err := app.Connect(connectCtx, cfg, "tours-api", cfg.Obs.MetricsEnabled, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer deps.Close()

	gateway := newGateway(cfg, logger)
	dispatcher, closeTasks := newDispatcher(cfg, deps, logger)
	defer closeTasks()

	h := handlers{
		webhook: payment.WebhookHandler{
			Provider:   gateway.Name(),
			Verifier:   payment.Verifier{Secret: cfg.PaymentWebhookSecret, Tolerance: cfg.WebhookTolerance},
			Dispatcher: dispatcher,
			Replay:     deps.Redis,
			ReplayTTL:  cfg.WebhookReplayTTL,
			MaxBody:    cfg.BodyLimitBytes,
			Logger:     logger.With().Str("component", "payment_webhook").Logger(),
		},
		health: health.Handler{
			Probes: map[string]health.Probe{
				"database": health.PostgresProbe(deps.DB),
				"redis":    health.RedisProbe(deps.Redis),
			},
			Timeout: cfg.Obs.ReadyTimeout,
		},
		idem: common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL},
		body: security.BodyLimit{Max: cfg.BodyLimitBytes},
	}
	h.checkout, h.catalog = newCheckout(cfg, deps, gateway, logger)
	if store, err := ratelimit.NewRedisStore(deps.Redis, "ratelimit:checkout"); err != nil {
		logger.Error().Err(err).Msg("initialise rate limiter; checkout is unthrottled")
	} else {
		h.limit = ratelimit.Handler{
			Limiter: ratelimit.PerMinute(store, cfg.RateLimitPerMinute),
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limit_store_unavailable") },
		}
	}
	if cfg.Obs.MetricsEnabled {
		h.metrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(cfg, h, tracing, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("gateway", gateway.Name()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Obs.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, h handlers, tracing bool, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracing {
		r.Use(obs.Tracing)
	}
	r.Use(h.metrics.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	headers := security.Headers{}
	if cfg.AppEnv == "production" {
		headers.HSTSMaxAge = 365 * 24 * time.Hour
	}
	r.Use(headers.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins))

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug", obs.Pprof(cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}
	r.Get("/health/live", h.health.Live)
	r.Get("/health/ready", h.health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/tours/{id}", h.catalog.Tour)
		v.Group(func(g chi.Router) {
			g.Use(h.limit.Middleware)
			g.Use(h.body.Middleware)
			g.Post("/checkout/quote", h.checkout.Quote)
			g.With(h.idem.Middleware).Post("/checkout", h.checkout.Checkout)
		})
		v.With(h.body.Middleware).Post("/webhooks/payment", h.webhook.Handle)
	})
	return r
}

func newCheckout(cfg *config.Config, deps *app.Dependencies, gateway payment.Gateway, logger zerolog.Logger) (*checkout.Handler, *catalog.Handler) {
	meter, err := obs.NewCheckoutMeter()
	if err != nil {
		logger.Error().Err(err).Msg("initialise checkout meter")
	}
	priceBook := &catalog.PriceBook{
		Q:      deps.Queries,
		Cache:  catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
		Logger: logger.With().Str("component", "catalog").Logger(),
	}
	svc := &checkout.Service{
		Gateway:   gateway,
		Discounts: &discount.Service{Q: deps.Queries, Logger: logger.With().Str("component", "discount").Logger()},
		Engine:    app.Engine(cfg),
		Codec:     deps.Codec(cfg),
		Currency:  cfg.SettlementCurrency,
		Validate:  validator.New(validator.WithRequiredStructEnabled()),
		Meter:     meter,
		Logger:    logger.With().Str("component", "checkout").Logger(),
	}
	if cfg.CatalogPricing {
		svc.PriceBook = priceBook
	}
	return &checkout.Handler{Svc: svc, Logger: logger}, &catalog.Handler{Book: priceBook}
}

// newDispatcher queues confirmations for the worker, or reconciles inside
// the webhook request when RECONCILE_ASYNC is off.
func newDispatcher(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger) (*booking.Dispatcher, func()) {
	d := &booking.Dispatcher{Logger: logger.With().Str("component", "dispatcher").Logger()}
	if !cfg.ReconcileAsync {
		d.Reconciler = deps.Reconciler(cfg, logger)
		return d, func() {}
	}
	redisOpt, err := app.TaskRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure task queue")
	}
	tasks := asynq.NewClient(redisOpt)
	d.Tasks = tasks
	return d, func() {
		if err := tasks.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}
}

// newGateway selects the payment provider. Unknown names fall back to the
// sandbox so local runs never need credentials.
func newGateway(cfg *config.Config, logger zerolog.Logger) payment.Gateway {
	switch cfg.PaymentProvider {
	case "stripe":
		breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
			WithTarget("payment_gateway").
			WithLogger(logger)
		return payment.Stripe{
			SecretKey: cfg.StripeSecretKey,
			BaseURL:   cfg.StripeBaseURL,
			HTTP: resilience.HTTPClient{
				Client:      &http.Client{Timeout: cfg.GatewayTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
				Breaker:     breaker,
				BaseBackoff: cfg.GatewayRetryBase,
				MaxAttempts: cfg.GatewayMaxAttempts,
				Jitter:      0.2,
				Timeout:     cfg.GatewayTimeout,
			},
		}
	case "sandbox":
		return &payment.Sandbox{}
	default:
		logger.Warn().Str("provider", cfg.PaymentProvider).Msg("unknown payment provider, using sandbox")
		return &payment.Sandbox{}
	}
}
