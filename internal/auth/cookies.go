// internal/auth/cookies.go
package auth

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// CookieJar moves cookies in and out of a browsing context
type CookieJar interface {
	SetCookies(ctx context.Context, cookies []Cookie) error
	GetCookies(ctx context.Context) ([]Cookie, error)
}

// ChromeJar is the chromedp cookie jar of the tab bound to ctx
type ChromeJar struct{}

// SetCookies injects cookies before the first navigation
func (ChromeJar) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	return chromedp.Run(ctx,
		network.Enable(),
		network.SetCookies(ToParams(cookies)),
	)
}

// GetCookies reads every cookie of the context
func (ChromeJar) GetCookies(ctx context.Context) ([]Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return FromNetwork(cookies), nil
}

// ToParams converts stored cookies to CDP parameters
func ToParams(cookies []Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(ExpiryFromCookies([]Cookie{c}))
			p.Expires = &exp
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax":
			p.SameSite = network.CookieSameSiteLax
		case "none":
			p.SameSite = network.CookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}

// FromNetwork converts CDP cookies to the stored format
func FromNetwork(cookies []*network.Cookie) []Cookie {
	out := make([]Cookie, len(cookies))
	for i, c := range cookies {
		out[i] = Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
	}
	return out
}
