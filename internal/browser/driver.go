// internal/browser/driver.go
package browser

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// Session is a running browser process
type Session struct {
	Ctx     context.Context // browser-level chromedp context
	Cancel  context.CancelFunc
	PID     int
	Version string
}

// Driver starts browsers and opens isolated tabs on them
type Driver interface {
	Launch(ctx context.Context) (*Session, error)
	OpenTab(s *Session, proxyServer string) (context.Context, context.CancelFunc, error)
	Ping(ctx context.Context, s *Session) error
}

// ChromeDriver drives a local Chrome through chromedp
type ChromeDriver struct {
	Headless     bool
	ChromePath   string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	ExtraArgs    []chromedp.ExecAllocatorOption
}

func (d *ChromeDriver) allocatorOptions() []chromedp.ExecAllocatorOption {
	width, height := d.WindowWidth, d.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("safebrowsing-disable-auto-update", true),
		chromedp.Flag("log-level", "3"),
		chromedp.Flag("disable-features", "TranslateUI,BlinkGenPropertyTrees"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.WindowSize(width, height),
	}

	if d.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.UserAgent))
	}
	if path, err := FindChrome(d.ChromePath); err == nil {
		opts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(path)}, opts...)
	} else {
		log.Warn().Err(err).Msg("Falling back to chromedp default executable lookup")
	}
	if d.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	return append(opts, d.ExtraArgs...)
}

// Launch starts a browser process that outlives ctx only through the
// returned Session
func (d *ChromeDriver) Launch(ctx context.Context) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// The first Run allocates the process; it must not carry a deadline or
	// the browser dies with it.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
	case <-ctx.Done():
		cancel()
		return nil, fmt.Errorf("chrome launch aborted: %w", ctx.Err())
	}

	s := &Session{Ctx: browserCtx, Cancel: cancel}
	if c := chromedp.FromContext(browserCtx); c != nil && c.Browser != nil {
		if p := c.Browser.Process(); p != nil {
			s.PID = p.Pid
		}
	}
	if _, product, _, _, _, err := d.version(ctx, s); err == nil {
		s.Version = product
	}

	log.Info().Int("pid", s.PID).Str("version", s.Version).Msg("Browser launched")
	return s, nil
}

// OpenTab creates an isolated browser context with one tab. A non-empty
// proxyServer applies to that context only.
func (d *ChromeDriver) OpenTab(s *Session, proxyServer string) (context.Context, context.CancelFunc, error) {
	var bcOpts []chromedp.CreateBrowserContextOption
	if proxyServer != "" {
		bcOpts = append(bcOpts, func(p *target.CreateBrowserContextParams) *target.CreateBrowserContextParams {
			return p.WithProxyServer(proxyServer)
		})
	}

	tabCtx, cancel := chromedp.NewContext(s.Ctx, chromedp.WithNewBrowserContext(bcOpts...))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, err
	}
	return tabCtx, cancel, nil
}

// Ping asks the browser for its version over the CDP connection
func (d *ChromeDriver) Ping(ctx context.Context, s *Session) error {
	_, _, _, _, _, err := d.version(ctx, s)
	return err
}

func (d *ChromeDriver) version(ctx context.Context, s *Session) (string, string, string, string, string, error) {
	if s == nil || s.Ctx.Err() != nil {
		return "", "", "", "", "", ErrDisconnected
	}
	c := chromedp.FromContext(s.Ctx)
	if c == nil || c.Browser == nil {
		return "", "", "", "", "", ErrDisconnected
	}
	return browser.GetVersion().Do(cdp.WithExecutor(ctx, c.Browser))
}

func (s *Session) String() string {
	if s == nil {
		return "<nil>"
	}
	return "chrome[pid=" + strconv.Itoa(s.PID) + "]"
}
