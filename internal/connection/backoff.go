package connection

import (
	"math"
	"time"
)

// BackoffDelay returns the reconnect delay for attempt n (1-based):
// base * 2^(n-1), clamped to max when max > 0. The result never decreases
// as n grows and saturates instead of overflowing.
func BackoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
	}

	if max > 0 && delay > max {
		return max
	}
	return delay
}
