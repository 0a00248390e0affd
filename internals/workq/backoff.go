package workq

import (
	"math"
	"time"
)

type BackoffConfig struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// BackoffExponential returns a delay function keyed by attempt count.
// Attempt 1 waits Base, each further attempt multiplies by Factor, capped at
// Max. Non-positive attempts wait nothing.
func BackoffExponential(cfg BackoffConfig) func(attempt int) time.Duration {
	base := cfg.Base
	max := cfg.Max
	factor := cfg.Factor
	if factor <= 0 {
		factor = 2
	}

	return func(attempt int) time.Duration {
		if attempt <= 0 || base <= 0 {
			return 0
		}
		exponent := float64(attempt - 1)
		delay := float64(base) * math.Pow(factor, exponent)
		if delay < 0 {
			return 0
		}
		if max > 0 && delay > float64(max) {
			return max
		}
		if delay > float64(math.MaxInt64) {
			if max > 0 {
				return max
			}
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(delay)
	}
}
