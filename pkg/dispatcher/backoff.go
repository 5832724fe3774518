package dispatcher

import (
	"math/rand"
	"time"
)

// backoff computes the wait before retry attempt n (1-based): exponential
// growth capped at max, with full jitter in [0.5, 1.5) to avoid a
// thundering herd against a degraded plugin.
func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if max > 0 && d > max {
		d = max
	}
	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(d) * jitter)
}
