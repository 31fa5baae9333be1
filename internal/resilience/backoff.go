package resilience

import (
	"math/rand/v2"
	"time"
)

// maxBackoffShift caps the exponent so large attempt numbers cannot overflow.
const maxBackoffShift = 10

// Backoff returns base·2^(attempt-1) spread by ±jitter (a fraction, 0.2 = 20%).
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := min(max(attempt, 1)-1, maxBackoffShift)
	d := base << shift
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * min(jitter, 1)
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
