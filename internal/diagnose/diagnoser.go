// internal/diagnose/diagnoser.go
package diagnose

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/pkg/models"
)

// SignalExtractor reads the current document from a browser tab
type SignalExtractor interface {
	Extract(ctx context.Context) (RawPage, error)
}

// pageProbe runs inside the page. Visibility uses computed styles, which a
// static HTML walk cannot see.
const pageProbe = `(() => {
  let visible = 0;
  const all = document.body ? document.body.getElementsByTagName('*') : [];
  for (const el of all) {
    const tag = el.tagName;
    if (tag === 'SCRIPT' || tag === 'STYLE' || tag === 'NOSCRIPT' || tag === 'TEMPLATE') continue;
    const s = window.getComputedStyle(el);
    if (s.display === 'none' || s.visibility === 'hidden') continue;
    if (el.offsetWidth === 0 && el.offsetHeight === 0) continue;
    visible++;
  }
  return {
    url: location.href,
    title: document.title,
    html: document.documentElement ? document.documentElement.outerHTML : '',
    visible: visible
  };
})()`

// ChromeExtractor evaluates pageProbe in a chromedp tab
type ChromeExtractor struct{}

// Extract implements SignalExtractor
func (ChromeExtractor) Extract(ctx context.Context) (RawPage, error) {
	var page RawPage
	if err := chromedp.Run(ctx, chromedp.Evaluate(pageProbe, &page)); err != nil {
		return RawPage{}, fmt.Errorf("failed to read page signals: %w", err)
	}
	return page, nil
}

// Diagnoser classifies the page currently loaded in a tab
type Diagnoser struct {
	Extractor SignalExtractor
	Timeout   time.Duration
}

// New returns a diagnoser backed by chromedp
func New() *Diagnoser {
	return &Diagnoser{Extractor: ChromeExtractor{}, Timeout: 10 * time.Second}
}

// Diagnose reads the page and classifies it
func (d *Diagnoser) Diagnose(ctx context.Context, site *sites.SiteConfig, requestedURL string) (models.PageDiagnosis, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	page, err := d.Extractor.Extract(ctx)
	if err != nil {
		return models.PageDiagnosis{}, err
	}
	return Build(page, site, requestedURL), nil
}

// Build computes signals and the classification for a raw page
func Build(page RawPage, site *sites.SiteConfig, requestedURL string) models.PageDiagnosis {
	sig := ComputeSignals(page, site)
	finalURL := page.URL
	if finalURL == "" {
		finalURL = requestedURL
	}

	return models.PageDiagnosis{
		PageType:     Classify(sig, finalURL, site),
		RequestedURL: requestedURL,
		FinalURL:     finalURL,
		Title:        page.Title,
		BodyLength:   sig.BodyLength,
		Signals:      sig,
		DiagnosedAt:  time.Now(),
	}
}
