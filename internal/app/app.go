// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/law-makers/marketwatch/internal/auth"
	"github.com/law-makers/marketwatch/internal/batch"
	"github.com/law-makers/marketwatch/internal/browser"
	"github.com/law-makers/marketwatch/internal/captcha"
	"github.com/law-makers/marketwatch/internal/config"
	"github.com/law-makers/marketwatch/internal/diagstore"
	"github.com/law-makers/marketwatch/internal/dom"
	"github.com/law-makers/marketwatch/internal/engine"
	"github.com/law-makers/marketwatch/internal/proxy"
	"github.com/law-makers/marketwatch/internal/ratelimit"
	"github.com/law-makers/marketwatch/internal/retry"
	"github.com/law-makers/marketwatch/internal/server"
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/internal/stealth"
	"github.com/law-makers/marketwatch/internal/utils/headers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands. The
// browser and the diagnosis sink are started on demand, so commands that
// only read sites or sessions never launch Chrome or dial a database.
// Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config      *config.Config
	Logger      *zerolog.Logger
	Sites       *sites.Registry
	Limiter     *ratelimit.SiteLimiter
	Proxies     *proxy.Pool
	Sessions    auth.Store
	SessionPool *auth.Pool
	// Captcha is handed to the engine; replace it before EnsureEngine to
	// plug in another provider
	Captcha captcha.Solver

	mu      sync.Mutex
	browser *browser.Manager
	engine  *engine.Engine
	sink    diagstore.Sink

	startTime time.Time
}

// SetupLogging configures the global zerolog logger from the config and
// returns it
func SetupLogging(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logWriter io.Writer
	if cfg.JSONLog {
		// JSON logs to stderr
		logWriter = os.Stderr
	} else {
		// Human-friendly console output otherwise
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(logWriter).With().Timestamp().Logger()
	return log.Logger
}

// New creates the application: logging, the site registry, per-site rate
// limits, the proxy pool and the session store. If any step fails, an
// error is returned and no resources are allocated.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := SetupLogging(cfg)
	logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Msg("Logger initialized")

	registry, err := sites.Load(cfg.SitesFile)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewSiteLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.MaxQueueWait)
	for _, id := range registry.IDs() {
		site, err := registry.Get(id)
		if err != nil {
			return nil, err
		}
		limiter.Configure(site.ID, site.RateLimit.RPS, site.RateLimit.Burst, site.RateLimit.MaxWait)
	}
	logger.Debug().
		Int("sites", registry.Len()).
		Dur("max_queue_wait", cfg.RateLimit.MaxQueueWait).
		Msg("Rate limiter initialized")

	proxies := proxy.NewPool(proxy.ParseList(strings.Join(cfg.Browser.Proxies, ",")), cfg.Browser.ProxyCooldown)

	store, err := openSessionStore(cfg.Sessions.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	pool := auth.NewPool(store, auth.PoolOptions{
		MaxFailures: cfg.Sessions.MaxFailures,
		BaseBackoff: cfg.Sessions.BaseBackoff,
	})

	solver, err := captcha.New(cfg.Scrape.CaptchaSolver, cfg.Scrape.CaptchaWait)
	if err != nil {
		return nil, err
	}

	a := &Application{
		Config:      cfg,
		Logger:      &logger,
		Sites:       registry,
		Limiter:     limiter,
		Proxies:     proxies,
		Sessions:    store,
		SessionPool: pool,
		Captcha:     solver,
		startTime:   time.Now(),
	}

	logger.Info().
		Strs("sites", registry.IDs()).
		Int("proxies", proxies.Len()).
		Msg("Application initialized successfully")
	return a, nil
}

func forensicsDir(dir string) string {
	if strings.EqualFold(dir, "none") {
		return ""
	}
	return dir
}

func openSessionStore(dir string) (auth.Store, error) {
	switch dir {
	case "":
		return auth.NewStore("")
	case "memory":
		return auth.NewMemoryStore(), nil
	default:
		return auth.NewFileStore(dir)
	}
}

// EnsureEngine lazily launches the shared browser and builds the scrape
// engine. Callers should provide a context with an appropriate timeout;
// it only bounds the launch.
func (a *Application) EnsureEngine(ctx context.Context) (*engine.Engine, error) {
	if a == nil {
		return nil, fmt.Errorf("application is nil")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine != nil {
		return a.engine, nil
	}

	cfg := a.Config
	extra, err := headers.Parse(cfg.Browser.ExtraHeaders)
	if err != nil {
		return nil, err
	}

	a.Logger.Debug().Msg("Launching browser on demand")
	launchCtx, cancel := context.WithTimeout(ctx, cfg.Browser.StartupTimeout)
	defer cancel()

	mgr, err := browser.New(launchCtx, browser.Options{
		MaxContexts: cfg.Browser.MaxContexts,
		Headless:    cfg.Browser.Headless,
		ChromePath:  cfg.Browser.ChromePath,
		Proxies:     a.Proxies,
	})
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to launch browser")
		return nil, err
	}

	policy := retry.Scraping()
	policy.MaxAttempts = cfg.Scrape.RetryAttempts

	eng, err := engine.New(engine.Options{
		Sites:   a.Sites,
		Browser: mgr,
		Limiter: a.Limiter,
		Auth: auth.NewStrategy(a.SessionPool, map[string]auth.LoginProvider{
			"form": auth.NewFormLogin(),
		}),
		Stealth:            &stealth.Applier{ExtraHeaders: extra},
		Forensics:          dom.NewForensics(forensicsDir(cfg.Scrape.ForensicsDir)),
		Captcha:            a.Captcha,
		Retry:              policy,
		MaxCrashRecoveries: cfg.Scrape.CrashRecoveries,
	})
	if err != nil {
		_ = mgr.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}

	a.browser = mgr
	a.engine = eng
	a.Logger.Info().Int("max_contexts", mgr.MaxContexts()).Msg("Engine ready")
	return eng, nil
}

// Browser returns the browser manager, or nil before EnsureEngine
func (a *Application) Browser() *browser.Manager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.browser
}

// Sink lazily opens the configured diagnosis sink
func (a *Application) Sink(ctx context.Context) (diagstore.Sink, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sink != nil {
		return a.sink, nil
	}
	sink, err := diagstore.Open(ctx, a.Config.Diagnosis.Sink, *a.Logger)
	if err != nil {
		return nil, err
	}
	a.sink = sink
	return sink, nil
}

// Runner builds a batch runner over the engine and the diagnosis sink
func (a *Application) Runner(ctx context.Context) (*batch.Runner, error) {
	eng, err := a.EnsureEngine(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.Sink(ctx)
	if err != nil {
		return nil, err
	}

	concurrency := a.Config.Scrape.Concurrency
	if concurrency == 0 {
		concurrency = batch.OptimalConcurrency(a.Config.Browser.MaxContexts)
	}
	return batch.New(eng, sink, concurrency), nil
}

// Server builds the worker HTTP surface over the engine
func (a *Application) Server(ctx context.Context) (*server.Server, error) {
	eng, err := a.EnsureEngine(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.Sink(ctx)
	if err != nil {
		return nil, err
	}

	return server.New(server.Options{
		Scraper:       eng,
		Sites:         a.Sites,
		Browser:       a.Browser(),
		Limiter:       a.Limiter,
		Sessions:      a.SessionPool,
		Proxies:       a.Proxies,
		Sink:          sink,
		ScrapeTimeout: a.Config.Server.ScrapeTimeout,
		Logger:        *a.Logger,
	})
}

// Close gracefully shuts down the application and all its resources.
//
// It performs the following cleanup steps in order:
//   - Waits for leased browser contexts, then closes the browser
//   - Closes the diagnosis sink
//
// A context with a timeout should be provided to prevent indefinite blocking.
// Any errors during shutdown are logged and returned together.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application")

	a.mu.Lock()
	mgr, sink := a.browser, a.sink
	a.browser, a.engine, a.sink = nil, nil, nil
	a.mu.Unlock()

	var errs []error
	if mgr != nil {
		if err := mgr.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing browser")
			errs = append(errs, err)
		}
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing diagnosis sink")
			errs = append(errs, err)
		}
	}

	a.Logger.Info().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")
	return errors.Join(errs...)
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
