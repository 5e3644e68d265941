// internal/auth/login.go
package auth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/law-makers/marketwatch/internal/browser"
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/rs/zerolog/log"
)

// DefaultLoginTimeout bounds a scripted form login
const DefaultLoginTimeout = 60 * time.Second

// RunFunc executes chromedp actions against ctx
type RunFunc func(ctx context.Context, actions ...chromedp.Action) error

// FormLogin fills a plain username/password form described by the site's
// auth.form block. Credentials come from the environment variables it names.
type FormLogin struct {
	Getenv  func(string) string
	Run     RunFunc
	Jar     CookieJar
	Timeout time.Duration
}

// NewFormLogin returns a form login reading the process environment
func NewFormLogin() *FormLogin {
	return &FormLogin{
		Getenv:  os.Getenv,
		Run:     chromedp.Run,
		Jar:     ChromeJar{},
		Timeout: DefaultLoginTimeout,
	}
}

// Login submits the form in the tab bound to ctx and captures the cookies
func (f *FormLogin) Login(ctx context.Context, userID string, site *sites.SiteConfig) (*SessionData, error) {
	form := site.Auth.Form
	if form == nil || form.URL == "" {
		return nil, fmt.Errorf("site %s has no login form configured", site.ID)
	}

	username, password := f.Getenv(form.UsernameEnv), f.Getenv(form.PasswordEnv)
	if username == "" || password == "" {
		return nil, fmt.Errorf("credentials for %s not set (%s, %s)", site.ID, form.UsernameEnv, form.PasswordEnv)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().Str("site", site.ID).Str("user", userID).Str("url", form.URL).Msg("Submitting login form")

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.Navigate(form.URL),
		chromedp.WaitVisible(form.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(form.UsernameSelector, username, chromedp.ByQuery),
		chromedp.SendKeys(form.PasswordSelector, password, chromedp.ByQuery),
		chromedp.Click(form.SubmitSelector, chromedp.ByQuery),
	}
	if form.SuccessSelector != "" {
		actions = append(actions, chromedp.WaitVisible(form.SuccessSelector, chromedp.ByQuery))
	}
	if err := f.Run(lctx, actions...); err != nil {
		return nil, fmt.Errorf("login form failed: %w", err)
	}

	cookies, err := f.Jar.GetCookies(lctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract cookies: %w", err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("no cookies found - login may have failed")
	}

	session := &SessionData{
		UserID:    userID,
		SiteID:    site.ID,
		URL:       form.URL,
		CreatedAt: time.Now(),
	}
	session.SetCookies(cookies)
	return session, nil
}

// LoginOptions configures the interactive login behavior
type LoginOptions struct {
	UserID string
	SiteID string
	// URL to navigate to for login
	URL string
	// WaitSelector is the CSS selector to wait for after login (e.g., "#dashboard")
	WaitSelector string
	// Timeout for the entire login process
	Timeout    time.Duration
	ChromePath string
	Headers    map[string]string
	// RemoteDebuggingPort enables Chrome DevTools on this port (e.g., 9222)
	RemoteDebuggingPort int
}

// InteractiveLogin launches a visible browser for manual login
func InteractiveLogin(ctx context.Context, opts LoginOptions) (*SessionData, error) {
	if opts.UserID == "" || opts.SiteID == "" {
		return nil, fmt.Errorf("user and site are required")
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}

	if os.Getenv("DISPLAY") == "" && opts.RemoteDebuggingPort == 0 {
		return nil, fmt.Errorf("interactive login requires a display server (DISPLAY not set)\n\n" +
			"In headless environments use:\n" +
			"   marketwatch sessions import <site> --user=<id> --file=cookies.json\n\n" +
			"   or pass --remote-debugging-port and drive the browser from chrome://inspect.")
	}

	chromePath, err := browser.FindChrome(opts.ChromePath)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("site", opts.SiteID).
		Str("user", opts.UserID).
		Str("url", opts.URL).
		Msg("Starting interactive login")

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(chromePath),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-gpu", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("log-level", "3"),
		chromedp.WindowSize(1280, 720),
	}
	if opts.RemoteDebuggingPort > 0 {
		allocOpts = append(allocOpts,
			chromedp.Flag("remote-debugging-port", fmt.Sprintf("%d", opts.RemoteDebuggingPort)),
			chromedp.Flag("remote-debugging-address", "0.0.0.0"),
		)
		log.Info().Int("port", opts.RemoteDebuggingPort).Msg("Remote debugging enabled")
		fmt.Printf("\nRemote debugging enabled on port %d\n", opts.RemoteDebuggingPort)
		fmt.Printf("   Open chrome://inspect in your local Chrome and add localhost:%d\n", opts.RemoteDebuggingPort)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))
	defer browserCancel()

	fmt.Println("\nBrowser opened. Please complete the login process manually.")

	actions := []chromedp.Action{network.Enable()}
	if len(opts.Headers) > 0 {
		headers := make(network.Headers, len(opts.Headers))
		for k, v := range opts.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions, chromedp.Navigate(opts.URL))
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	if opts.WaitSelector != "" {
		log.Info().Str("selector", opts.WaitSelector).Msg("Waiting for login completion...")
		if err := chromedp.Run(browserCtx, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("login timeout or failed: %w", err)
		}
	} else {
		fmt.Println("\n   Press Enter once you have completed login...")
		fmt.Scanln()
	}

	cookies, err := ChromeJar{}.GetCookies(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract cookies: %w", err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("no cookies found - login may have failed")
	}

	log.Info().Int("cookie_count", len(cookies)).Msg("Cookies extracted")

	session := &SessionData{
		UserID:    opts.UserID,
		SiteID:    opts.SiteID,
		URL:       opts.URL,
		Headers:   opts.Headers,
		CreatedAt: time.Now(),
	}
	session.SetCookies(cookies)
	return session, nil
}
