package reqctx

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type key int

const scrapeKey key = 0

// ScrapeContext identifies one scrape call across log lines
type ScrapeContext struct {
	AttemptID string
	MonitorID string
	SiteID    string
	StartTime time.Time
}

// WithScrape attaches a new scrape identity to ctx
func WithScrape(ctx context.Context, monitorID, siteID string) context.Context {
	return context.WithValue(ctx, scrapeKey, &ScrapeContext{
		AttemptID: uuid.NewString(),
		MonitorID: monitorID,
		SiteID:    siteID,
		StartTime: time.Now(),
	})
}

// FromContext returns the scrape identity stored in ctx
func FromContext(ctx context.Context) *ScrapeContext {
	if sc, ok := ctx.Value(scrapeKey).(*ScrapeContext); ok {
		return sc
	}
	return &ScrapeContext{
		AttemptID: "unknown",
		StartTime: time.Now(),
	}
}

// Logger returns the global logger enriched with the scrape identity
func Logger(ctx context.Context) zerolog.Logger {
	sc := FromContext(ctx)
	return log.With().
		Str("attempt_id", sc.AttemptID).
		Str("monitor", sc.MonitorID).
		Str("site", sc.SiteID).
		Logger()
}
