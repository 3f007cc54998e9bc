package usecases

import (
	"math/rand/v2"
	"time"
)

// Backoff computes capped exponential reconnect delays with jitter.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// Delay returns the wait before reconnect attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Min
	if base <= 0 {
		base = time.Second
	}
	ceiling := b.Max
	if ceiling < base {
		ceiling = base
	}

	d := base
	for range attempt {
		d *= 2
		if d >= ceiling || d <= 0 {
			d = ceiling
			break
		}
	}

	// Equal jitter: the result lies in [d/2, d].
	half := d / 2
	return half + rand.N(d-half+1)
}
