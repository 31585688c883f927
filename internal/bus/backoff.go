package bus

import (
	"math/rand"
	"time"
)

// backoff computes reconnect delays: exponential from an initial delay up
// to a cap, with ±jitterFrac random jitter applied to each step.
type backoff struct {
	initial time.Duration
	cap     time.Duration
	jitter  float64

	attempt int
}

func newBackoff(initial, cap time.Duration, jitterFrac float64) *backoff {
	return &backoff{initial: initial, cap: cap, jitter: jitterFrac}
}

// next returns the delay for the current attempt and advances state.
func (b *backoff) next() time.Duration {
	d := b.initial << b.attempt
	if d <= 0 || d > b.cap {
		d = b.cap
	}
	b.attempt++

	jitterRange := float64(d) * b.jitter
	delta := (rand.Float64()*2 - 1) * jitterRange
	result := time.Duration(float64(d) + delta)
	if result < 0 {
		result = 0
	}
	return result
}

func (b *backoff) reset() {
	b.attempt = 0
}

// defaultBackoff matches §4.2's contract: initial 1s, cap 30s, jitter ±25%.
func defaultBackoff() *backoff {
	return newBackoff(time.Second, 30*time.Second, 0.25)
}
