// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/law-makers/marketwatch/internal/auth"
	"github.com/law-makers/marketwatch/internal/browser"
	"github.com/law-makers/marketwatch/internal/captcha"
	"github.com/law-makers/marketwatch/internal/diagnose"
	"github.com/law-makers/marketwatch/internal/dom"
	"github.com/law-makers/marketwatch/internal/extract"
	"github.com/law-makers/marketwatch/internal/ratelimit"
	"github.com/law-makers/marketwatch/internal/reqctx"
	"github.com/law-makers/marketwatch/internal/retry"
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/internal/stealth"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog"
)

// DefaultMaxCrashRecoveries bounds immediate relaunch-and-retry cycles
const DefaultMaxCrashRecoveries = 2

// Browser hands out isolated browser contexts on a shared browser
type Browser interface {
	Acquire(ctx context.Context) (*browser.Lease, error)
	EnsureAlive(ctx context.Context, force bool) error
	Connected() bool
}

// Authenticator resolves the identity a scrape runs under
type Authenticator interface {
	Resolve(tab context.Context, userID string, site *sites.SiteConfig) (*auth.Context, error)
	ReportResult(c *auth.Context, pageType models.PageType)
}

// Disguiser mutates a fresh context before its first navigation
type Disguiser interface {
	Apply(ctx context.Context, site *sites.SiteConfig) error
}

// PageDiagnoser classifies the page loaded in a tab
type PageDiagnoser interface {
	Diagnose(ctx context.Context, site *sites.SiteConfig, requestedURL string) (models.PageDiagnosis, error)
}

// ContainerWaiter waits for the first visible selector of a fallback list
type ContainerWaiter interface {
	Wait(ctx context.Context, selectors []string, budgets []time.Duration) (string, error)
}

// PageScroller triggers lazy loading
type PageScroller interface {
	Scroll(ctx context.Context, cfg sites.ScrollConfig, itemSelector string) (int, error)
}

// AdExtractor reads listings below the matched container
type AdExtractor interface {
	Extract(ctx context.Context, site *sites.SiteConfig, container, pageURL string, f extract.Filters) (extract.Result, error)
}

// EvidenceCollector stores forensic screenshots
type EvidenceCollector interface {
	Capture(ctx context.Context, siteID, label string) (string, error)
}

// Options wires the engine. Sites, Browser and Limiter are required; every
// other collaborator defaults to its chromedp implementation.
type Options struct {
	Sites   *sites.Registry
	Browser Browser
	Limiter ratelimit.Limiter

	Auth      Authenticator
	Stealth   Disguiser
	Navigator Navigator
	Diagnoser PageDiagnoser
	Waiter    ContainerWaiter
	Scroller  PageScroller
	Extractor AdExtractor
	Captcha   captcha.Solver
	Forensics EvidenceCollector

	// Retry is the generic policy around scrape attempts; zero means
	// retry.Scraping()
	Retry              retry.Config
	MaxCrashRecoveries int
}

// Engine runs scrapes of monitors against their marketplace sites
type Engine struct {
	sites   *sites.Registry
	browser Browser
	limiter ratelimit.Limiter

	auth      Authenticator
	stealth   Disguiser
	navigator Navigator
	diagnoser PageDiagnoser
	waiter    ContainerWaiter
	scroller  PageScroller
	extractor AdExtractor
	captcha   captcha.Solver
	forensics EvidenceCollector

	retry      retry.Config
	maxCrashes int
}

// New validates the options and fills defaults
func New(opts Options) (*Engine, error) {
	if opts.Sites == nil {
		return nil, fmt.Errorf("engine: site registry is required")
	}
	if opts.Browser == nil {
		return nil, fmt.Errorf("engine: browser is required")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("engine: rate limiter is required")
	}

	e := &Engine{
		sites:      opts.Sites,
		browser:    opts.Browser,
		limiter:    opts.Limiter,
		auth:       opts.Auth,
		stealth:    opts.Stealth,
		navigator:  opts.Navigator,
		diagnoser:  opts.Diagnoser,
		waiter:     opts.Waiter,
		scroller:   opts.Scroller,
		extractor:  opts.Extractor,
		captcha:    opts.Captcha,
		forensics:  opts.Forensics,
		retry:      opts.Retry,
		maxCrashes: opts.MaxCrashRecoveries,
	}

	if e.auth == nil {
		e.auth = &auth.Strategy{}
	}
	if e.stealth == nil {
		e.stealth = &stealth.Applier{}
	}
	if e.navigator == nil {
		e.navigator = ChromeNavigator{}
	}
	if e.diagnoser == nil {
		e.diagnoser = diagnose.New()
	}
	if e.waiter == nil {
		e.waiter = dom.NewWaiter()
	}
	if e.scroller == nil {
		e.scroller = dom.NewScroller()
	}
	if e.extractor == nil {
		e.extractor = extract.NewExtractor()
	}
	if e.captcha == nil {
		e.captcha = captcha.Disabled{}
	}
	if e.forensics == nil {
		e.forensics = dom.NewForensics("")
	}
	if e.retry.MaxAttempts == 0 {
		e.retry = retry.Scraping()
	}
	if e.maxCrashes <= 0 {
		e.maxCrashes = DefaultMaxCrashRecoveries
	}

	// crashes have their own recovery loop and unsupported URLs never heal
	base := e.retry.ShouldRetry
	e.retry.ShouldRetry = func(err error) bool {
		switch KindOf(err) {
		case KindCrash, KindUnsupported:
			return false
		}
		if errors.Is(err, browser.ErrClosed) {
			return false
		}
		if base != nil {
			return base(err)
		}
		return true
	}

	return e, nil
}

// Sites returns the registry the engine resolves monitors against
func (e *Engine) Sites() *sites.Registry {
	return e.sites
}

// Scrape runs one monitor. It never returns an error and never panics:
// every outcome, failures included, is described by the result's
// diagnosis. The DiagnosisRecord is the persistence projection of the
// result.
func (e *Engine) Scrape(ctx context.Context, m models.Monitor) (res models.ExtractionResult, rec models.DiagnosisRecord) {
	start := time.Now()
	ctx = reqctx.WithScrape(ctx, m.ID, m.SiteID)
	logger := reqctx.Logger(ctx)

	var attempts, crashes int

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Scrape panicked")
			res = failureResult(m, newError(KindPanic, models.PageUnknown, "internal error", fmt.Errorf("panic: %v", r)))
		}
		res.Metrics.Attempts = attempts
		res.Metrics.CrashRecoveries = crashes
		res.Metrics.Duration = time.Since(start)
		if res.Metrics.SkipReasons == nil {
			res.Metrics.SkipReasons = map[string]int{}
		}
		rec = models.NewDiagnosisRecord(m, res)
		logResult(logger, m, res)
	}()

	site, err := e.resolveSite(m)
	if err != nil {
		return failureResult(m, err), rec
	}

	if err := e.limiter.Acquire(ctx, site.ID); err != nil {
		return failureResult(m, newError(KindTransient, models.PageUnknown, "rate limit wait failed", err)), rec
	}

	var out models.ExtractionResult
	for {
		err = retry.WithRetry(ctx, e.retry, func() error {
			attempts++
			r, err := e.scrapeInternal(ctx, site, m)
			if err != nil {
				return e.classify(ctx, err)
			}
			out = r
			return nil
		})
		if err == nil {
			return out, rec
		}

		if KindOf(err) != KindCrash || crashes >= e.maxCrashes || ctx.Err() != nil {
			break
		}

		crashes++
		logger.Warn().Err(err).Int("recovery", crashes).Msg("Browser crash detected, relaunching")
		if rerr := e.browser.EnsureAlive(ctx, true); rerr != nil {
			logger.Error().Err(rerr).Msg("Browser relaunch failed")
			err = newError(KindCrash, models.PageUnknown, "browser relaunch failed", errors.Join(rerr, err))
			break
		}
	}

	return failureResult(m, err), rec
}

func (e *Engine) resolveSite(m models.Monitor) (*sites.SiteConfig, error) {
	site, err := e.sites.Get(m.SiteID)
	if err != nil {
		return nil, newError(KindUnsupported, models.PageUnknown, "unknown site", err)
	}
	if !site.Supports(m.SearchURL) {
		return nil, newError(KindUnsupported, models.PageUnknown,
			fmt.Sprintf("%s does not accept %s", site.ID, m.SearchURL), ErrUnsupportedURL)
	}
	return site, nil
}

// classify tags an error from the inner flow. Untagged errors are CRASH
// when the browser is gone or the message carries a disconnect signature,
// TRANSIENT otherwise.
func (e *Engine) classify(ctx context.Context, err error) error {
	var se *ScrapeError
	if errors.As(err, &se) {
		return err
	}
	if ctx.Err() != nil {
		return newError(KindTransient, models.PageUnknown, "scrape cancelled", err)
	}
	if errors.Is(err, browser.ErrClosed) {
		return newError(KindTransient, models.PageUnknown, "browser shut down", err)
	}
	if errors.Is(err, browser.ErrDisconnected) || !e.browser.Connected() || looksLikeCrash(err) {
		return newError(KindCrash, models.PageUnknown, "browser crashed", err)
	}
	return newError(KindTransient, models.PageUnknown, "scrape attempt failed", err)
}

// failureResult describes an unrecoverable failure. Authentication
// failures keep their LOGIN_REQUIRED or CHECKPOINT page type; every other
// failure is UNKNOWN. Metrics of the failed attempt are kept when known.
func failureResult(m models.Monitor, err error) models.ExtractionResult {
	diag := models.PageDiagnosis{RequestedURL: m.SearchURL}
	metrics := models.ExtractionMetrics{AuthSource: models.AuthAnonymous}

	var se *ScrapeError
	if errors.As(err, &se) {
		if se.Diagnosis != nil {
			diag = *se.Diagnosis
		}
		if se.Metrics != nil {
			metrics = *se.Metrics
		}
	}
	if metrics.SkipReasons == nil {
		metrics.SkipReasons = map[string]int{}
	}

	diag.PageType = models.PageUnknown
	if KindOf(err) == KindAuthRequired {
		diag.PageType = models.PageLoginRequired
		if se != nil && se.PageType.IsAuthFailure() {
			diag.PageType = se.PageType
		}
	}

	diag.ErrorKind = string(KindOf(err))
	diag.ErrorMessage = err.Error()
	if diag.DiagnosedAt.IsZero() {
		diag.DiagnosedAt = time.Now()
	}

	return models.ExtractionResult{Diagnosis: diag, Metrics: metrics}
}

func logResult(logger zerolog.Logger, m models.Monitor, res models.ExtractionResult) {
	ev := logger.Info()
	if res.Failed() {
		ev = logger.Warn().Str("error_kind", res.Diagnosis.ErrorKind).Str("error", res.Diagnosis.ErrorMessage)
	}
	ev.Str("user", m.UserID).
		Str("page_type", string(res.Diagnosis.PageType)).
		Int("ads_raw", res.Metrics.AdsRaw).
		Int("ads_valid", res.Metrics.AdsValid).
		Dur("duration", res.Metrics.Duration).
		Str("auth_source", string(res.Metrics.AuthSource)).
		Str("selector", res.Metrics.SelectorUsed).
		Str("skip_reasons", models.FormatSkipReasons(res.Metrics.SkipReasons)).
		Int("scroll_iterations", res.Metrics.ScrollIterations).
		Int("attempts", res.Metrics.Attempts).
		Int("crash_recoveries", res.Metrics.CrashRecoveries).
		Msg("Scrape finished")
}
