package monitor

import (
	"math/rand"
	"time"
)

// jitterPercent spreads retry times so several recovering sources do not
// hammer the same endpoint in lockstep.
const jitterPercent = 0.20

// backoffDelay returns the wait before retry number attempt (0-based):
// initial doubled per attempt, jittered by ±20%, capped at max.
func backoffDelay(initial, max time.Duration, attempt int, rng *rand.Rand) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}

	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}

	jitter := time.Duration(float64(delay) * jitterPercent)
	if jitter > 0 {
		delay += time.Duration(rng.Int63n(int64(2*jitter))) - jitter
	}

	if delay > max {
		delay = max
	}
	if delay < 0 {
		delay = initial
	}
	return delay
}
