// internal/stealth/stealth.go
package stealth

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	rodstealth "github.com/go-rod/stealth"
	"github.com/law-makers/marketwatch/internal/sites"
)

// Profile is a consistent desktop browser identity
type Profile struct {
	Name                string
	UserAgent           string
	Platform            string
	AcceptLanguage      string
	Languages           []string
	Width               int64
	Height              int64
	DeviceScaleFactor   float64
	HardwareConcurrency int
	DeviceMemory        int
}

// Profiles is the pool identities are drawn from
var Profiles = []Profile{
	{
		Name:                "win-chrome",
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
		Platform:            "Win32",
		AcceptLanguage:      "en-US,en;q=0.9",
		Languages:           []string{"en-US", "en"},
		Width:               1920,
		Height:              1080,
		DeviceScaleFactor:   1,
		HardwareConcurrency: 8,
		DeviceMemory:        8,
	},
	{
		Name:                "mac-chrome",
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
		Platform:            "MacIntel",
		AcceptLanguage:      "en-US,en;q=0.9",
		Languages:           []string{"en-US", "en"},
		Width:               1440,
		Height:              900,
		DeviceScaleFactor:   2,
		HardwareConcurrency: 10,
		DeviceMemory:        8,
	},
	{
		Name:                "linux-chrome",
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
		Platform:            "Linux x86_64",
		AcceptLanguage:      "en-US,en;q=0.8",
		Languages:           []string{"en-US", "en"},
		Width:               1366,
		Height:              768,
		DeviceScaleFactor:   1,
		HardwareConcurrency: 4,
		DeviceMemory:        4,
	},
}

// PickProfile draws a random profile from Profiles
func PickProfile() Profile {
	return Profiles[rand.IntN(len(Profiles))]
}

// ForLocale adapts the language settings of a profile to a site locale
// such as "fr_FR"
func (p Profile) ForLocale(locale string) Profile {
	if locale == "" {
		return p
	}
	tag := strings.ReplaceAll(locale, "_", "-")
	primary := strings.SplitN(tag, "-", 2)[0]

	p.Languages = []string{tag, primary, "en"}
	p.AcceptLanguage = fmt.Sprintf("%s,%s;q=0.9,en;q=0.7", tag, primary)
	return p
}

// Applier mutates fresh browser contexts before their first navigation
type Applier struct {
	// ExtraHeaders are sent with every request of the context
	ExtraHeaders map[string]string
	// Pick chooses the identity per context; PickProfile when nil
	Pick func() Profile
}

// Apply runs the stealth actions for the site's level against a tab context
func (a *Applier) Apply(ctx context.Context, site *sites.SiteConfig) error {
	pick := a.Pick
	if pick == nil {
		pick = PickProfile
	}
	p := pick().ForLocale(site.Locale)

	actions := Actions(site.Stealth, p, site.Timezone, a.ExtraHeaders)
	if len(actions) == 0 {
		return nil
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("failed to apply %s stealth: %w", site.Stealth, err)
	}
	return nil
}

// Actions builds the CDP actions for a stealth level. Each level includes
// the mutations of the levels below it.
func Actions(level sites.StealthLevel, p Profile, timezone string, extraHeaders map[string]string) []chromedp.Action {
	if level == sites.StealthNone || level == "" {
		if len(extraHeaders) == 0 {
			return nil
		}
		return []chromedp.Action{network.Enable(), network.SetExtraHTTPHeaders(toHeaders(extraHeaders, ""))}
	}

	actions := []chromedp.Action{
		network.Enable(),
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(p.AcceptLanguage).
			WithPlatform(p.Platform),
		emulation.SetDeviceMetricsOverride(p.Width, p.Height, p.DeviceScaleFactor, false),
		network.SetExtraHTTPHeaders(toHeaders(extraHeaders, p.AcceptLanguage)),
	}
	if timezone != "" {
		actions = append(actions, emulation.SetTimezoneOverride(timezone))
	}

	if level == sites.StealthBasic {
		return actions
	}

	actions = append(actions, addScript(NavigatorScript(p)))

	if level == sites.StealthAggressive {
		actions = append(actions, addScript(rodstealth.JS))
	}

	return actions
}

func addScript(src string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx)
		return err
	})
}

func toHeaders(extra map[string]string, acceptLanguage string) network.Headers {
	h := network.Headers{}
	if acceptLanguage != "" {
		h["Accept-Language"] = acceptLanguage
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

// NavigatorScript hides the usual automation fingerprints and aligns
// navigator properties with the profile
func NavigatorScript(p Profile) string {
	langs := make([]string, len(p.Languages))
	for i, l := range p.Languages {
		langs[i] = fmt.Sprintf("%q", l)
	}

	return fmt.Sprintf(`(() => {
  const define = (obj, prop, value) => {
    try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
  };
  define(Navigator.prototype, 'webdriver', undefined);
  define(Navigator.prototype, 'languages', [%s]);
  define(Navigator.prototype, 'platform', %q);
  define(Navigator.prototype, 'hardwareConcurrency', %d);
  define(Navigator.prototype, 'deviceMemory', %d);
  define(Navigator.prototype, 'plugins', [1, 2, 3, 4, 5].map(i => ({ name: 'Plugin ' + i })));
  if (!window.chrome) { window.chrome = { runtime: {} }; }
  const query = window.navigator.permissions && window.navigator.permissions.query;
  if (query) {
    window.navigator.permissions.query = (params) =>
      params && params.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : query.call(window.navigator.permissions, params);
  }
})();`, strings.Join(langs, ", "), p.Platform, p.HardwareConcurrency, p.DeviceMemory)
}
