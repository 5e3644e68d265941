package stealth

import (
	"context"
	"math/rand/v2"
	"time"
)

// DefaultJitter is the relative spread applied to render delays
const DefaultJitter = 0.15

// Jitter returns base scaled by a uniform factor in [1-fraction, 1+fraction]
func Jitter(base time.Duration, fraction float64) time.Duration {
	if base <= 0 || fraction <= 0 {
		return base
	}
	if fraction > 1 {
		fraction = 1
	}
	factor := 1 + fraction*(2*rand.Float64()-1)
	return time.Duration(float64(base) * factor)
}

// Sleep waits for a jittered delay or until ctx ends
func Sleep(ctx context.Context, base time.Duration) error {
	d := Jitter(base, DefaultJitter)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
