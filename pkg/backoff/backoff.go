// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"time"
)

// Defaults used when the caller passes non-positive bounds.
const (
	DefaultInitial = 100 * time.Millisecond
	DefaultMax     = 5 * time.Second
)

// Exponential calculates exponential backoff for a given attempt, capped at
// max. Attempt 1 returns initial, attempt 2 returns initial*2, and so on.
func Exponential(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = DefaultInitial
	}
	if max <= 0 {
		max = DefaultMax
	}
	if attempt < 1 {
		return initial
	}

	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}
