// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrStarved is returned when a token could not be obtained within the
// site's maximum queue wait
var ErrStarved = errors.New("rate limit wait exceeded")

// Limiter gates the start of scrapes per site.
//
// Implementations keep one token bucket per site key, so conservative sites
// can have smaller or slower buckets than tolerant ones.
type Limiter interface {
	// Acquire blocks until a token for the site is available.
	// It returns an error wrapping ErrStarved when the wait would exceed
	// the site's ceiling, or the context error if ctx ends first.
	Acquire(ctx context.Context, site string) error
}

// SiteLimiter is a token-bucket limiter keyed by site identifier
type SiteLimiter struct {
	buckets map[string]*bucket
	mu      sync.RWMutex
	rps     rate.Limit    // Default refill rate for unconfigured sites
	burst   int           // Default capacity for unconfigured sites
	maxWait time.Duration // Default queue ceiling, 0 means unbounded
}

type bucket struct {
	limiter *rate.Limiter
	maxWait time.Duration
}

// BucketStats is a point-in-time view of one bucket
type BucketStats struct {
	Site    string  `json:"site"`
	RPS     float64 `json:"rps"`
	Burst   int     `json:"burst"`
	Tokens  float64 `json:"tokens"`
	MaxWait string  `json:"max_wait"`
}

// NewSiteLimiter creates a limiter whose unconfigured sites share the given
// defaults
func NewSiteLimiter(requestsPerSecond float64, burst int, maxWait time.Duration) *SiteLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 0.5
	}
	if burst <= 0 {
		burst = 1
	}

	return &SiteLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(requestsPerSecond),
		burst:   burst,
		maxWait: maxWait,
	}
}

// Configure sets the bucket parameters of a site. A zero maxWait inherits
// the limiter default.
func (l *SiteLimiter) Configure(site string, requestsPerSecond float64, burst int, maxWait time.Duration) {
	if maxWait <= 0 {
		maxWait = l.maxWait
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buckets[site] = &bucket{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		maxWait: maxWait,
	}
}

// Acquire blocks until the site's bucket yields a token
func (l *SiteLimiter) Acquire(ctx context.Context, site string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	b := l.getBucket(site)

	if b.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.maxWait)
		defer cancel()
	}

	start := time.Now()
	if err := b.limiter.Wait(ctx); err != nil {
		// rate.Limiter reports "would exceed context deadline" up front, so a
		// starved bucket fails without sleeping through the ceiling.
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: site %s (max wait %s): %v", ErrStarved, site, b.maxWait, err)
	}

	if waited := time.Since(start); waited > 10*time.Millisecond {
		log.Debug().
			Str("site", site).
			Dur("waited", waited).
			Msg("Rate limit token acquired")
	}
	return nil
}

// Stats returns a snapshot of every known bucket ordered by site
func (l *SiteLimiter) Stats() []BucketStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make([]BucketStats, 0, len(l.buckets))
	for site, b := range l.buckets {
		stats = append(stats, BucketStats{
			Site:    site,
			RPS:     float64(b.limiter.Limit()),
			Burst:   b.limiter.Burst(),
			Tokens:  b.limiter.Tokens(),
			MaxWait: b.maxWait.String(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Site < stats[j].Site })
	return stats
}

// getBucket returns or creates the bucket for the given site
func (l *SiteLimiter) getBucket(site string) *bucket {
	l.mu.RLock()
	b, exists := l.buckets[site]
	l.mu.RUnlock()

	if exists {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists := l.buckets[site]; exists {
		return b
	}

	b = &bucket{
		limiter: rate.NewLimiter(l.rps, l.burst),
		maxWait: l.maxWait,
	}
	l.buckets[site] = b

	return b
}
