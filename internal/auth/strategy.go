// internal/auth/strategy.go
package auth

import (
	"context"
	"fmt"

	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog/log"
)

// LoginProvider performs a fresh login inside the tab bound to ctx and
// returns the resulting session material
type LoginProvider interface {
	Login(ctx context.Context, userID string, site *sites.SiteConfig) (*SessionData, error)
}

// Context is the resolved authentication state of one scrape
type Context struct {
	Ctx           context.Context
	Authenticated bool
	Source        models.AuthSource
	SessionID     string

	cleanup func(ctx context.Context) error
}

// Cleanup releases the auth context. Pooled sessions get their refreshed
// cookies written back to the store.
func (c *Context) Cleanup(ctx context.Context) error {
	if c == nil || c.cleanup == nil {
		return nil
	}
	fn := c.cleanup
	c.cleanup = nil
	return fn(ctx)
}

// Strategy decides per site whether a scrape reuses a stored session,
// performs a fresh login or stays anonymous
type Strategy struct {
	Pool      *Pool
	Jar       CookieJar
	Providers map[string]LoginProvider
}

// NewStrategy returns a strategy using the chromedp cookie jar
func NewStrategy(pool *Pool, providers map[string]LoginProvider) *Strategy {
	return &Strategy{Pool: pool, Jar: ChromeJar{}, Providers: providers}
}

func anonymous(tab context.Context) *Context {
	return &Context{Ctx: tab, Source: models.AuthAnonymous}
}

// Resolve prepares the tab for (userID, site). Only cancellation of ctx is
// returned as an error; every other failure degrades to anonymous.
func (s *Strategy) Resolve(tab context.Context, userID string, site *sites.SiteConfig) (*Context, error) {
	if err := tab.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.Pool == nil || userID == "" || site.Auth.Mode == sites.AuthAnonymous {
		return anonymous(tab), nil
	}

	logger := log.With().Str("site", site.ID).Str("user", userID).Logger()

	if sess, ok := s.Pool.Checkout(userID, site.ID); ok {
		if err := s.Jar.SetCookies(tab, sess.Data.Cookies); err != nil {
			if tab.Err() != nil {
				return nil, tab.Err()
			}
			logger.Warn().Err(err).Msg("Failed to inject session cookies, continuing anonymously")
			return anonymous(tab), nil
		}
		logger.Debug().Str("session", sess.ID).Int("cookies", len(sess.Data.Cookies)).Msg("Using pooled session")
		return s.authenticated(tab, sess, models.AuthSessionPool), nil
	}

	if site.Auth.Mode != sites.AuthSessionRequired {
		return anonymous(tab), nil
	}

	provider, ok := s.Providers[site.Auth.Provider]
	if !ok {
		logger.Warn().Str("provider", site.Auth.Provider).Msg("No login provider for site, continuing anonymously")
		return anonymous(tab), nil
	}

	data, err := provider.Login(tab, userID, site)
	if err != nil {
		if tab.Err() != nil {
			return nil, tab.Err()
		}
		logger.Warn().Err(err).Msg("Fresh login failed, continuing anonymously")
		return anonymous(tab), nil
	}

	sess, err := s.Pool.Add(data)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to store fresh session")
		return &Context{Ctx: tab, Authenticated: true, Source: models.AuthFreshLogin}, nil
	}

	logger.Info().Str("session", sess.ID).Msg("Fresh login succeeded")
	return s.authenticated(tab, sess, models.AuthFreshLogin), nil
}

func (s *Strategy) authenticated(tab context.Context, sess *Session, source models.AuthSource) *Context {
	return &Context{
		Ctx:           tab,
		Authenticated: true,
		Source:        source,
		SessionID:     sess.ID,
		cleanup: func(ctx context.Context) error {
			cookies, err := s.Jar.GetCookies(ctx)
			if err != nil {
				return fmt.Errorf("failed to capture session cookies: %w", err)
			}
			return s.Pool.Update(sess.ID, cookies)
		},
	}
}

// ReportResult forwards a page outcome to the pool when a pooled session
// was used
func (s *Strategy) ReportResult(c *Context, pageType models.PageType) {
	if s == nil || s.Pool == nil || c == nil || c.SessionID == "" {
		return
	}
	s.Pool.ReportResult(c.SessionID, pageType)
}
