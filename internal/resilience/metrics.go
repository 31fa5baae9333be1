package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	// BreakerState holds the gauge value of State for each target.
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_breaker_state",
		Help: "Breaker position per upstream (0 closed, 1 open, 2 half open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_breaker_transition_total",
		Help: "Breaker moves between states.",
	}, []string{"target", "from", "to"})

	// BreakerOpenedTotal counts trips, including a failed half-open probe.
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_breaker_open_total",
		Help: "Times the breaker started rejecting calls.",
	}, []string{"target"})
)

// MustRegisterMetrics registers the breaker collectors. A nil reg means the
// default registerer.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
