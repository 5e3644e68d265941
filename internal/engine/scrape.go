// internal/engine/scrape.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/law-makers/marketwatch/internal/auth"
	"github.com/law-makers/marketwatch/internal/browser"
	"github.com/law-makers/marketwatch/internal/dom"
	"github.com/law-makers/marketwatch/internal/extract"
	"github.com/law-makers/marketwatch/internal/reqctx"
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/internal/stealth"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog"
)

// attempt carries the state of one run of the inner flow
type attempt struct {
	site    *sites.SiteConfig
	monitor models.Monitor
	lease   *browser.Lease
	auth    *auth.Context
	metrics models.ExtractionMetrics
	log     zerolog.Logger
}

func (a *attempt) tab() context.Context {
	return a.auth.Ctx
}

func (a *attempt) result(ads []models.ScrapedAd, diag models.PageDiagnosis) models.ExtractionResult {
	if ads == nil {
		ads = []models.ScrapedAd{}
	}
	return models.ExtractionResult{Ads: ads, Diagnosis: diag, Metrics: a.metrics}
}

// scrapeInternal runs one attempt under a single leased browser context
func (e *Engine) scrapeInternal(ctx context.Context, site *sites.SiteConfig, m models.Monitor) (_ models.ExtractionResult, err error) {
	logger := reqctx.Logger(ctx)

	lease, err := e.browser.Acquire(ctx)
	if err != nil {
		return models.ExtractionResult{}, err
	}
	defer lease.Release()
	// tabs hang off the browser context, not ctx
	stop := context.AfterFunc(ctx, lease.Release)
	defer stop()

	ac, err := e.auth.Resolve(lease.Ctx, m.UserID, site)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("failed to resolve auth: %w", err)
	}
	defer func() {
		if cerr := ac.Cleanup(lease.Ctx); cerr != nil {
			logger.Warn().Err(cerr).Msg("Auth cleanup failed")
		}
	}()

	a := &attempt{
		site:    site,
		monitor: m,
		lease:   lease,
		auth:    ac,
		log:     logger,
		metrics: models.ExtractionMetrics{
			Authenticated: ac.Authenticated,
			AuthSource:    ac.Source,
			SkipReasons:   map[string]int{},
		},
	}
	defer func() {
		if err != nil {
			err = withMetrics(e.classify(ctx, err), a.metrics)
		}
	}()
	tab := a.tab()

	if err := e.stealth.Apply(tab, site); err != nil {
		return models.ExtractionResult{}, err
	}

	if err := e.navigate(tab, a); err != nil {
		return models.ExtractionResult{}, err
	}

	if err := stealth.Sleep(tab, site.Timeouts.RenderDelay); err != nil {
		return models.ExtractionResult{}, err
	}
	if site.RenderIndicator != "" {
		budget := []time.Duration{site.Timeouts.RenderIndicator}
		if _, err := e.waiter.Wait(tab, []string{site.RenderIndicator}, budget); err != nil {
			if !errors.Is(err, dom.ErrNoContainer) {
				return models.ExtractionResult{}, err
			}
			logger.Debug().Str("selector", site.RenderIndicator).Msg("Render indicator not seen, continuing")
		}
	}

	diag, err := e.diagnoser.Diagnose(tab, site, m.SearchURL)
	if err != nil {
		return models.ExtractionResult{}, err
	}
	logger.Debug().
		Str("page_type", string(diag.PageType)).
		Str("final_url", diag.FinalURL).
		Int("body_length", diag.BodyLength).
		Msg("Page diagnosed")

	switch diag.PageType {
	case models.PageLoginRequired, models.PageCheckpoint:
		e.auth.ReportResult(ac, diag.PageType)
		return models.ExtractionResult{}, withDiagnosis(
			newError(KindAuthRequired, diag.PageType, "session not usable", nil), diag)

	case models.PageCaptcha:
		diag, err = e.solveCaptcha(a, diag)
		if err != nil {
			return models.ExtractionResult{}, err
		}

	case models.PageBlocked:
		lease.ProxyFailed()
		msg := "blocked by bot mitigation"
		if diag.Signals.WAFProvider != "" {
			msg = "blocked by " + diag.Signals.WAFProvider
		}
		return models.ExtractionResult{}, withDiagnosis(newError(KindBlocked, diag.PageType, msg, nil), diag)
	}

	switch diag.PageType {
	case models.PageNoResults:
		e.auth.ReportResult(ac, diag.PageType)
		lease.ProxySucceeded()
		return a.result(nil, diag), nil

	case models.PageEmpty:
		diag.ScreenshotPath = e.capture(a, "empty")
		return a.result(nil, diag), nil
	}

	selector, err := e.waiter.Wait(tab, site.ContainerSelectors, site.ContainerTimeouts)
	if err != nil {
		if !errors.Is(err, dom.ErrNoContainer) {
			return models.ExtractionResult{}, err
		}
		logger.Warn().Strs("selectors", site.ContainerSelectors).Msg("No results container matched")
		diag.PageType = models.PageUnknown
		diag.ScreenshotPath = e.capture(a, "no-container")
		return a.result(nil, diag), nil
	}
	diag.MatchedSelector = selector
	a.metrics.SelectorUsed = selector

	iterations, err := e.scroller.Scroll(tab, site.Scroll, site.Extraction.Item)
	if err != nil {
		if tab.Err() != nil {
			return models.ExtractionResult{}, err
		}
		logger.Warn().Err(err).Int("iterations", iterations).Msg("Scrolling stopped early")
	}
	a.metrics.ScrollIterations = iterations

	pageURL := diag.FinalURL
	if pageURL == "" {
		pageURL = m.SearchURL
	}
	extracted, err := e.extractor.Extract(tab, site, selector, pageURL, extract.FiltersFor(m))
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("extraction failed: %w", err)
	}
	a.metrics.AdsRaw = extracted.Raw
	a.metrics.AdsValid = len(extracted.Ads)
	for reason, n := range extracted.Skipped {
		a.metrics.SkipReasons[reason] += n
	}

	e.auth.ReportResult(ac, diag.PageType)
	lease.ProxySucceeded()

	return a.result(extracted.Ads, diag), nil
}

// navigate loads the monitor URL under the site navigation timeout
func (e *Engine) navigate(tab context.Context, a *attempt) error {
	nctx := tab
	if t := a.site.Timeouts.Navigation; t > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(tab, t)
		defer cancel()
	}

	finalURL, status, err := e.navigator.Navigate(nctx, a.monitor.SearchURL)
	if err != nil {
		if tab.Err() == nil && errors.Is(nctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation timed out after %s: %w", a.site.Timeouts.Navigation, err)
		}
		return err
	}

	a.log.Info().
		Str("url", a.monitor.SearchURL).
		Str("final_url", finalURL).
		Int("status", status).
		Msg("Navigated")
	return nil
}

// solveCaptcha runs the solver and re-diagnoses. Only CONTENT and
// NO_RESULTS let the flow continue.
func (e *Engine) solveCaptcha(a *attempt, diag models.PageDiagnosis) (models.PageDiagnosis, error) {
	tab := a.tab()
	provider := diag.Signals.CaptchaProvider

	if !e.captcha.Enabled() {
		diag.ScreenshotPath = e.capture(a, "captcha")
		return diag, withDiagnosis(newError(KindCaptchaFailed, diag.PageType, "captcha not solved", ErrNoSolver), diag)
	}

	res := e.captcha.AutoSolve(tab)
	if !res.Success {
		diag.ScreenshotPath = e.capture(a, "captcha")
		return diag, withDiagnosis(newError(KindCaptchaFailed, diag.PageType, "captcha solve failed", res.Err), diag)
	}
	a.metrics.CaptchaSolved = true

	if err := stealth.Sleep(tab, a.site.Timeouts.CaptchaSettle); err != nil {
		return diag, err
	}

	next, err := e.diagnoser.Diagnose(tab, a.site, a.monitor.SearchURL)
	if err != nil {
		return diag, err
	}
	switch next.PageType {
	case models.PageContent, models.PageNoResults:
		a.log.Info().Str("provider", provider).Msg("Captcha solved")
		return next, nil
	}

	next.ScreenshotPath = e.capture(a, "captcha-persists")
	return next, withDiagnosis(newError(KindCaptchaFailed, next.PageType, "captcha persists", ErrCaptchaPersists), next)
}

// capture stores a screenshot, returning "" when forensics are off or fail
func (e *Engine) capture(a *attempt, label string) string {
	path, err := e.forensics.Capture(a.tab(), a.site.ID, label)
	if err != nil {
		a.log.Warn().Err(err).Str("label", label).Msg("Forensic capture failed")
		return ""
	}
	return path
}
