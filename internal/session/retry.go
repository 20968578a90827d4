package session

import (
	"math/rand"
	"time"

	"marlin/internal/config"
)

// nextBackoffDelay computes the delay before retry attempt n (1-based):
// exponential growth from the policy's initial delay, capped at the maximum,
// with optional jitter in [0.5, 1.5) to spread synchronized retries.
func nextBackoffDelay(p config.RetryPolicy, attempt int, rng *rand.Rand) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter && rng != nil {
		d *= 0.5 + rng.Float64()
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}
