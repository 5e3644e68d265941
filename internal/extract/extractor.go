// internal/extract/extractor.go
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/rs/zerolog/log"
)

// HTMLFunc returns the outer HTML of the first element matching selector
type HTMLFunc func(ctx context.Context, selector string) (string, error)

// Extractor reads listings from the rendered page
type Extractor struct {
	HTML HTMLFunc
}

// NewExtractor returns an extractor backed by chromedp
func NewExtractor() *Extractor {
	return &Extractor{HTML: func(ctx context.Context, selector string) (string, error) {
		var html string
		err := chromedp.Run(ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery))
		return html, err
	}}
}

// Extract parses the listings below container. The embedded_state strategy
// reads the whole document since the state script usually lives outside
// the results container.
func (e *Extractor) Extract(ctx context.Context, site *sites.SiteConfig, container, pageURL string, f Filters) (Result, error) {
	start := time.Now()

	target := container
	if target == "" || site.Extraction.Strategy == sites.StrategyEmbeddedState {
		target = "html"
	}

	doc, err := e.HTML(ctx, target)
	if err != nil {
		return Result{Skipped: map[string]int{}}, fmt.Errorf("failed to read %s: %w", target, err)
	}

	res, err := ParseAds(doc, pageURL, site, f)
	if err != nil {
		return res, err
	}

	log.Debug().
		Str("site", site.ID).
		Str("strategy", site.Extraction.Strategy).
		Int("raw", res.Raw).
		Int("valid", len(res.Ads)).
		Dur("duration", time.Since(start)).
		Msg("Listings parsed")

	return res, nil
}
