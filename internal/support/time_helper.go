package support

import (
	"context"
	"math/rand/v2"
	"time"
)

// SleepContext waits for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RandomBetween returns a uniformly distributed duration in [low, high].
func RandomBetween(rng *rand.Rand, low, high time.Duration) time.Duration {
	if high <= low {
		return low
	}
	span := int64(high - low)
	if rng == nil {
		return low + time.Duration(rand.Int64N(span+1))
	}
	return low + time.Duration(rng.Int64N(span+1))
}
