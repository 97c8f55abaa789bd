// Package backoff provides delay curves for retry.Backoff.
package backoff

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Strategy returns how long to wait before the next attempt. attempts starts
// at 1.
type Strategy func(attempts uint) time.Duration

// Constant always returns interval.
func Constant(interval time.Duration) Strategy {
	return func(_ uint) time.Duration {
		return interval
	}
}

// Linear grows the delay linearly with the number of attempts.
//
// delay = baseDelay * attempts
// Ex. Linear(2*time.Seconds) = 2s, 4s, 6s, 8s, ...
func Linear(baseDelay time.Duration) Strategy {
	return func(attempts uint) time.Duration {
		if delay := baseDelay * time.Duration(attempts); delay >= 0 {
			return delay
		}

		return math.MaxInt64
	}
}

// Exponential grows the delay exponentially with the number of attempts.
//
// delay = baseDelay * base^(attempts - 1)
// Ex. Exponential(2*time.Seconds, 3) = 2s, 6s, 18s, 54s, ...
func Exponential(baseDelay time.Duration, base float64) Strategy {
	return func(attempts uint) time.Duration {
		if delay := baseDelay * time.Duration(math.Pow(base, float64(attempts-1))); delay >= 0 {
			return delay
		}

		return math.MaxInt64
	}
}

// BinaryExponential is Exponential with a base of 2.
func BinaryExponential(baseDelay time.Duration) Strategy {
	return Exponential(baseDelay, 2)
}

// FromName resolves a configured curve name ("constant", "linear" or
// "exponential") to a Strategy. An empty name or "none" returns nil, which
// callers treat as "do not back off".
func FromName(name string, baseDelay time.Duration) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "constant":
		return Constant(baseDelay), nil
	case "linear":
		return Linear(baseDelay), nil
	case "exponential":
		return BinaryExponential(baseDelay), nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy: %q", name)
	}
}
