package obs

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	domainOnce sync.Once

	// CheckoutIntentTotal counts checkout attempts by result.
	CheckoutIntentTotal *prometheus.CounterVec
	// CheckoutAmountMinor records charged amounts in minor units.
	CheckoutAmountMinor *prometheus.HistogramVec
	// BookingReconcileTotal counts reconciler outcomes.
	BookingReconcileTotal *prometheus.CounterVec
	// GatewayMisconfigurationTotal counts credential or configuration failures at the gateway.
	GatewayMisconfigurationTotal prometheus.Counter
	// CartMetadataSlots records how many metadata slots each cart used (0 = overflow store).
	CartMetadataSlots prometheus.Histogram
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_intent_total",
			Help:      "Count of checkout intent outcomes.",
		}, []string{"provider", "result"})
		CheckoutAmountMinor = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_amount_minor",
			Help:      "Charged checkout amounts in minor units.",
			Buckets:   []float64{1000, 5000, 10000, 25000, 50000, 100000, 250000, 500000},
		}, []string{"currency"})
		BookingReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_reconcile_total",
			Help:      "Count of booking reconciliation outcomes.",
		}, []string{"outcome"})
		GatewayMisconfigurationTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_misconfiguration_total",
			Help:      "Payment gateway calls rejected for credential or configuration reasons.",
		})
		CartMetadataSlots = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_metadata_slots",
			Help:      "Metadata slots used per encoded cart; zero means the overflow store was used.",
			Buckets:   []float64{0, 1, 2, 3, 4},
		})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"})

		mustRegisterCollector(reg, CheckoutIntentTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutIntentTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutAmountMinor, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CheckoutAmountMinor = v
			}
		})
		mustRegisterCollector(reg, BookingReconcileTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BookingReconcileTotal = v
			}
		})
		mustRegisterCollector(reg, GatewayMisconfigurationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				GatewayMisconfigurationTotal = v
			}
		})
		mustRegisterCollector(reg, CartMetadataSlots, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				CartMetadataSlots = v
			}
		})
		mustRegisterCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

// IncCounter increments vec when metrics are registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

// Inc increments c when metrics are registered.
func Inc(c prometheus.Counter) {
	if c == nil {
		return
	}
	c.Inc()
}

// Observe records v when metrics are registered.
func Observe(h prometheus.Observer, v float64) {
	if h == nil {
		return
	}
	h.Observe(v)
}

// CheckoutMeter mirrors checkout amounts as OpenTelemetry instruments so
// they reach the same collector as the traces.
type CheckoutMeter struct {
	amount metric.Int64Histogram
	count  metric.Int64Counter
}

// NewCheckoutMeter creates the instruments on the global meter provider.
func NewCheckoutMeter() (*CheckoutMeter, error) {
	meter := otel.Meter("github.com/noah-isme/backend-tours/checkout")
	amount, err := meter.Int64Histogram("checkout.amount",
		metric.WithUnit("{minor_unit}"),
		metric.WithDescription("Charged checkout amount in minor units."))
	if err != nil {
		return nil, err
	}
	count, err := meter.Int64Counter("checkout.intents",
		metric.WithDescription("Created checkout intents."))
	if err != nil {
		return nil, err
	}
	return &CheckoutMeter{amount: amount, count: count}, nil
}

// Record adds one created intent of amountMinor.
func (m *CheckoutMeter) Record(ctx context.Context, currency string, amountMinor int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("currency", currency))
	m.amount.Record(ctx, amountMinor, attrs)
	m.count.Add(ctx, 1, attrs)
}
