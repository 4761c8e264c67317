package visit

import (
	"errors"
	"fmt"
	"time"
)

var ErrBackoffSchedule = errors.New("invalid backoff schedule")

// ExponentialSchedule returns n delays starting at base and growing by factor,
// each capped at max.
func ExponentialSchedule(n int, base time.Duration, factor float64, max time.Duration) []time.Duration {
	if n <= 0 {
		return nil
	}
	if factor < 1 {
		factor = 1
	}
	delays := make([]time.Duration, n)
	current := float64(base)
	for i := range delays {
		d := time.Duration(current)
		if max > 0 && d > max {
			d = max
		}
		delays[i] = d
		current *= factor
	}
	return delays
}

// ValidateSchedule requires one non-negative delay per permitted retry.
func ValidateSchedule(maxRetries int, delays []time.Duration) error {
	if maxRetries < 0 {
		return fmt.Errorf("%w: maxRetries must be >= 0, got %d", ErrBackoffSchedule, maxRetries)
	}
	if len(delays) < maxRetries {
		return fmt.Errorf("%w: %d delays for %d retries", ErrBackoffSchedule, len(delays), maxRetries)
	}
	for i, d := range delays {
		if d < 0 {
			return fmt.Errorf("%w: delay %d is negative (%s)", ErrBackoffSchedule, i, d)
		}
	}
	return nil
}
