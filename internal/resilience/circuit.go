package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

const defaultTarget = "payment_gateway"

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// gauge encodes the state for the breaker state metric.
func (s State) gauge() float64 {
	switch s {
	case Closed, Open, HalfOpen:
		return float64(s)
	default:
		return -1
	}
}

// window counts outcomes observed while closed.
type window struct {
	total    int
	failures int
}

func (w window) ratio() float64 {
	if w.total == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.total)
}

// Breaker guards an upstream dependency. While closed it counts outcomes and
// opens once at least minRequests were seen and the failure ratio reaches
// the threshold. After openFor a single probe is let through; its outcome
// closes or reopens the breaker.
type Breaker struct {
	mu          sync.Mutex
	state       State
	win         window
	probing     bool
	openedAt    time.Time
	minRequests int
	threshold   float64
	openFor     time.Duration
	target      string
	logger      zerolog.Logger
	now         func() time.Time
}

// NewBreaker returns a closed breaker. Out-of-range arguments are clamped.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	b := &Breaker{
		minRequests: max(minRequests, 1),
		threshold:   failureRatio,
		openFor:     openFor,
		target:      defaultTarget,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	if b.threshold <= 0 {
		b.threshold = 0.5
	}
	b.threshold = min(b.threshold, 1)
	if b.openFor <= 0 {
		b.openFor = 30 * time.Second
	}
	return b
}

// WithTarget names the guarded dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := strings.TrimSpace(target); t != "" {
		b.target = t
	}
	BreakerState.WithLabelValues(b.target).Set(b.state.gauge())
	return b
}

// WithLogger sets the logger for state transitions.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. A true result must be followed
// by exactly one Report. A nil breaker allows everything.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

// Report records the outcome of an allowed call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	b.win.total++
	if !success {
		b.win.failures++
	}
	if b.win.total < b.minRequests {
		return
	}
	if b.win.ratio() >= b.threshold {
		b.moveLocked(ctx, Open)
		return
	}
	// start a fresh window so old successes cannot mask a new outage
	if b.win.total >= 4*b.minRequests {
		b.win = window{}
	}
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.win = window{}
	b.probing = false
	if next == Open {
		b.openedAt = b.now()
	}

	BreakerState.WithLabelValues(b.target).Set(next.gauge())
	BreakerTransitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}

	evt := b.logger.Warn()
	if next == Closed {
		evt = b.logger.Info()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Str("target", b.target).
		Str("from_state", prev.String()).
		Str("to_state", next.String()).
		Msg("breaker_transition")
}
