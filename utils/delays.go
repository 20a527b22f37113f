package utils

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExponentialBackoff computes 2^attempt * Base scaled by a random factor in
// [1-RandomizationFactor, 1+RandomizationFactor], capped at Max.
type ExponentialBackoff struct {
	Base                time.Duration
	RandomizationFactor float64
	Max                 time.Duration
	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	rnd := b.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	f := b.RandomizationFactor
	lo, hi := 1-f, 1+f
	scale := lo + rnd()*(hi-lo)
	d := math.Pow(2, float64(attempt)) * float64(b.Base) * scale
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
