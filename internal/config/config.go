// Package config reads service settings from the environment (and an
// optional .env file) through koanf.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// maxGatewayAttempts allows one retry of a gateway call.
const maxGatewayAttempts = 2

type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	MigrateOnStart     bool

	// Payment gateway.
	PaymentProvider      string
	StripeSecretKey      string
	StripeBaseURL        string
	PaymentWebhookSecret string
	WebhookTolerance     time.Duration
	WebhookReplayTTL     time.Duration
	GatewayTimeout       time.Duration
	GatewayMaxAttempts   int
	GatewayRetryBase     time.Duration
	BreakerMinRequests   int
	BreakerFailureRatio  float64
	BreakerOpenFor       time.Duration

	// Pricing.
	SettlementCurrency string
	ServiceFeeRate     decimal.Decimal
	TaxRate            decimal.Decimal
	CatalogPricing     bool
	CatalogCacheTTL    time.Duration

	// Metadata encoding.
	MetadataCartSlots int
	CartOverflowTTL   time.Duration

	// HTTP protections.
	IdempotencyTTL     time.Duration
	RateLimitPerMinute int
	BodyLimitBytes     int64

	// Reconciliation.
	ReconcileAsync    bool
	WorkerConcurrency int
	LockTTL           time.Duration
	LockRetryBackoff  time.Duration
	AMQPURL           string
	AMQPExchange      string

	Obs Obs
}

// Obs configures logging, metrics, tracing and debug endpoints.
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	// MetricsBuckets is a CSV of latency buckets in milliseconds.
	MetricsBuckets  string
	TracingEnabled  bool
	TracingExporter string
	OTLPEndpoint    string
	SamplingRatio   float64
	PprofEnabled    bool
	PprofUser       string
	PprofPass       string
	ReadyTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Load builds a Config from the process environment. Malformed values fall
// back to their defaults; missing required settings are reported together.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	s := source{k}

	cfg := &Config{
		AppEnv:             s.str("APP_ENV", "development"),
		Port:               s.str("PORT", "8080"),
		DatabaseURL:        s.str("DATABASE_URL", ""),
		RedisURL:           s.str("REDIS_URL", ""),
		CORSAllowedOrigins: s.list("CORS_ALLOWED_ORIGINS"),
		MigrateOnStart:     s.flag("MIGRATE_ON_START", false),

		PaymentProvider:      strings.ToLower(s.str("PAYMENT_PROVIDER", "sandbox")),
		StripeSecretKey:      s.str("STRIPE_SECRET_KEY", ""),
		StripeBaseURL:        s.str("STRIPE_BASE_URL", "https://api.stripe.com"),
		PaymentWebhookSecret: s.str("PAYMENT_WEBHOOK_SECRET", ""),
		WebhookTolerance:     s.dur("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
		WebhookReplayTTL:     s.dur("PAYMENT_WEBHOOK_REPLAY_TTL", 24*time.Hour),
		GatewayTimeout:       s.dur("GATEWAY_TIMEOUT", 10*time.Second),
		GatewayMaxAttempts:   min(max(s.num("GATEWAY_MAX_ATTEMPTS", maxGatewayAttempts), 1), maxGatewayAttempts),
		GatewayRetryBase:     s.dur("GATEWAY_RETRY_BASE", 200*time.Millisecond),
		BreakerMinRequests:   s.num("GATEWAY_BREAKER_MIN_REQUESTS", 10),
		BreakerFailureRatio:  s.ratio("GATEWAY_BREAKER_FAILURE_RATIO", 0.5),
		BreakerOpenFor:       s.dur("GATEWAY_BREAKER_OPEN_FOR", 30*time.Second),

		SettlementCurrency: strings.ToLower(s.str("SETTLEMENT_CURRENCY", "usd")),
		ServiceFeeRate:     s.rate("PRICING_SERVICE_FEE_RATE", "0.03"),
		TaxRate:            s.rate("PRICING_TAX_RATE", "0.05"),
		CatalogPricing:     s.flag("CATALOG_PRICING", false),
		CatalogCacheTTL:    s.dur("CATALOG_CACHE_TTL", 5*time.Minute),

		MetadataCartSlots: max(s.num("METADATA_CART_SLOTS", 2), 1),
		CartOverflowTTL:   s.dur("CART_OVERFLOW_TTL", 30*24*time.Hour),

		IdempotencyTTL:     s.dur("IDEMPOTENCY_TTL", 24*time.Hour),
		RateLimitPerMinute: s.num("CHECKOUT_RATE_LIMIT_PER_MINUTE", 30),
		BodyLimitBytes:     int64(s.num("CHECKOUT_BODY_LIMIT_BYTES", 256<<10)),

		ReconcileAsync:    s.flag("RECONCILE_ASYNC", true),
		WorkerConcurrency: s.num("WORKER_CONCURRENCY", 5),
		LockTTL:           s.dur("LOCK_TTL", 30*time.Second),
		LockRetryBackoff:  s.dur("LOCK_RETRY_BACKOFF", 50*time.Millisecond),
		AMQPURL:           s.str("AMQP_URL", ""),
		AMQPExchange:      s.str("AMQP_EXCHANGE", "bookings"),

		Obs: Obs{
			LogFormat:        s.str("OBS_LOG_FORMAT", "json"),
			LogLevel:         s.str("OBS_LOG_LEVEL", "info"),
			MetricsEnabled:   s.flag("OBS_ENABLE_PROMETHEUS", true),
			MetricsNamespace: s.str("OBS_METRICS_NAMESPACE", "tours"),
			MetricsBuckets:   s.str("OBS_METRICS_BUCKETS_MS", ""),
			TracingEnabled:   s.flag("OBS_ENABLE_TRACING", true),
			TracingExporter:  s.str("OBS_TRACING_EXPORTER", "otlp"),
			OTLPEndpoint:     s.str("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio:    s.ratio("OBS_TRACING_SAMPLING_RATIO", 1),
			PprofEnabled:     s.flag("OBS_ENABLE_PPROF", false),
			PprofUser:        s.str("SECURE_PPROF_BASIC_AUTH_USER", ""),
			PprofPass:        s.str("SECURE_PPROF_BASIC_AUTH_PASS", ""),
			ReadyTimeout:     s.dur("HEALTH_READY_TIMEOUT", 500*time.Millisecond),
			ShutdownTimeout:  s.dur("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.PaymentProvider == "stripe" && c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the listen address, accepting PORT as "8080" or ":8080".
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	switch {
	case port == "":
		return ":8080"
	case strings.HasPrefix(port, ":"):
		return port
	}
	return ":" + port
}

// source reads trimmed string values from koanf and converts them,
// substituting the default for blank or malformed input.
type source struct{ k *koanf.Koanf }

func (s source) str(key, def string) string {
	if v := strings.TrimSpace(s.k.String(key)); v != "" {
		return v
	}
	return def
}

func (s source) list(key string) []string {
	var out []string
	for _, part := range strings.Split(s.k.String(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s source) flag(key string, def bool) bool {
	switch strings.ToLower(s.str(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func (s source) num(key string, def int) int {
	n, err := strconv.Atoi(s.str(key, ""))
	if err != nil {
		return def
	}
	return n
}

func (s source) ratio(key string, def float64) float64 {
	f, err := strconv.ParseFloat(s.str(key, ""), 64)
	if err != nil || f <= 0 || f > 1 {
		return def
	}
	return f
}

func (s source) dur(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s.str(key, ""))
	if err != nil || d < 0 {
		return def
	}
	return d
}

func (s source) rate(key, def string) decimal.Decimal {
	d, err := decimal.NewFromString(s.str(key, ""))
	if err != nil || d.IsNegative() {
		return decimal.RequireFromString(def)
	}
	return d
}
