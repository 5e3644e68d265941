// internal/sites/site.go
package sites

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// StealthLevel selects how aggressively a browsing context is disguised
type StealthLevel string

const (
	StealthNone       StealthLevel = "none"
	StealthBasic      StealthLevel = "basic"
	StealthStandard   StealthLevel = "standard"
	StealthAggressive StealthLevel = "aggressive"
)

// AuthMode decides whether scrapes of a site use stored sessions
type AuthMode string

const (
	AuthAnonymous       AuthMode = "anonymous"
	AuthSessionPool     AuthMode = "session_pool"
	AuthSessionRequired AuthMode = "session_required"
)

// ScrollStrategy selects how lazy-loaded listings are triggered
type ScrollStrategy string

const (
	ScrollNone     ScrollStrategy = "none"
	ScrollWindow   ScrollStrategy = "window"
	ScrollInfinite ScrollStrategy = "infinite"
)

// Extraction strategies
const (
	StrategyDOM           = "dom"
	StrategyEmbeddedState = "embedded_state"
)

// SiteConfig is the static description of one target marketplace. It is
// compiled once at load time and shared read-only by every scrape.
type SiteConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Domain      string   `yaml:"domain"`
	URLPatterns []string `yaml:"url_patterns"`
	Locale      string   `yaml:"locale"`
	Timezone    string   `yaml:"timezone"`
	Currency    string   `yaml:"currency"`

	ContainerSelectors []string        `yaml:"container_selectors"`
	ContainerTimeouts  []time.Duration `yaml:"container_timeouts"`
	RenderIndicator    string          `yaml:"render_indicator"`

	Patterns   TextPatterns `yaml:"patterns"`
	LoginPaths []string     `yaml:"login_paths"`

	Timeouts   Timeouts        `yaml:"timeouts"`
	Scroll     ScrollConfig    `yaml:"scroll"`
	Stealth    StealthLevel    `yaml:"stealth"`
	Auth       AuthConfig      `yaml:"auth"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Diagnosis  DiagnosisConfig `yaml:"diagnosis"`
	Extraction ExtractionSpec  `yaml:"extraction"`

	urlPatterns []*regexp.Regexp
	loginPaths  []*regexp.Regexp
}

// TextPatterns are case-insensitive substrings searched in the page text
type TextPatterns struct {
	NoResults  []string `yaml:"no_results"`
	Login      []string `yaml:"login"`
	Checkpoint []string `yaml:"checkpoint"`
	Captcha    []string `yaml:"captcha"`
	Blocked    []string `yaml:"blocked"`
}

// Timeouts bounds the browser-side waits of one scrape
type Timeouts struct {
	Navigation      time.Duration `yaml:"navigation"`
	RenderDelay     time.Duration `yaml:"render_delay"`
	RenderIndicator time.Duration `yaml:"render_indicator"`
	CaptchaSettle   time.Duration `yaml:"captcha_settle"`
}

// ScrollConfig configures the Scroller
type ScrollConfig struct {
	Strategy      ScrollStrategy `yaml:"strategy"`
	MaxIterations int            `yaml:"max_iterations"`
	Wait          time.Duration  `yaml:"wait"`
}

// AuthConfig configures session handling for a site
type AuthConfig struct {
	Mode     AuthMode   `yaml:"mode"`
	Provider string     `yaml:"provider"`
	Form     *LoginForm `yaml:"form,omitempty"`
}

// LoginForm describes a plain username/password login page. Credentials
// are read from the named environment variables at login time.
type LoginForm struct {
	URL              string `yaml:"url"`
	UsernameSelector string `yaml:"username_selector"`
	PasswordSelector string `yaml:"password_selector"`
	SubmitSelector   string `yaml:"submit_selector"`
	SuccessSelector  string `yaml:"success_selector"`
	UsernameEnv      string `yaml:"username_env"`
	PasswordEnv      string `yaml:"password_env"`
}

// RateLimitConfig sizes the token bucket of a site
type RateLimitConfig struct {
	RPS     float64       `yaml:"rps"`
	Burst   int           `yaml:"burst"`
	MaxWait time.Duration `yaml:"max_wait"`
}

// DiagnosisConfig holds the thresholds used by page classification
type DiagnosisConfig struct {
	MinBodyLength      int `yaml:"min_body_length"`
	MinContentLength   int `yaml:"min_content_length"`
	MinVisibleElements int `yaml:"min_visible_elements"`
}

// ExtractionSpec is the versioned, data-driven description of how listings
// are read from a results page.
type ExtractionSpec struct {
	Version    int        `yaml:"version"`
	Strategy   string     `yaml:"strategy"`
	Item       string     `yaml:"item"`
	Fields     FieldSet   `yaml:"fields"`
	State      *StateSpec `yaml:"state,omitempty"`
	DateLayout string     `yaml:"date_layout"`
}

// FieldSet maps listing attributes to field rules
type FieldSet struct {
	ID          Field `yaml:"id"`
	Title       Field `yaml:"title"`
	Price       Field `yaml:"price"`
	URL         Field `yaml:"url"`
	Image       Field `yaml:"image"`
	Location    Field `yaml:"location"`
	Description Field `yaml:"description"`
	Published   Field `yaml:"published"`
}

// Field reads one value. Selector is a CSS selector for the dom strategy and
// a jsonquery path for embedded_state. An empty Selector targets the item
// itself. Attr reads an attribute instead of text. Regex keeps the first
// capture group (or the whole match).
type Field struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
	Regex    string `yaml:"regex"`

	re *regexp.Regexp
}

// StateSpec locates listings serialized into an inline script
type StateSpec struct {
	Script   string `yaml:"script"`
	Variable string `yaml:"variable"`
	Items    string `yaml:"items"`
}

// IsZero reports whether the field has no rule at all
func (f Field) IsZero() bool {
	return f.Selector == "" && f.Attr == "" && f.Regex == ""
}

// Apply runs the field regex over a raw value
func (f Field) Apply(value string) string {
	value = strings.TrimSpace(value)
	if f.re == nil || value == "" {
		return value
	}
	m := f.re.FindStringSubmatch(value)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return strings.TrimSpace(m[1])
	default:
		return strings.TrimSpace(m[0])
	}
}

// Supports reports whether a URL is allowed by the site's patterns
func (s *SiteConfig) Supports(rawURL string) bool {
	for _, re := range s.urlPatterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// IsLoginPath reports whether a URL looks like the site's login page
func (s *SiteConfig) IsLoginPath(rawURL string) bool {
	for _, re := range s.loginPaths {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Compile applies defaults, validates the config and compiles its patterns
func (s *SiteConfig) Compile() error {
	if s.ID == "" {
		return fmt.Errorf("site id is required")
	}
	if len(s.URLPatterns) == 0 {
		return fmt.Errorf("site %s: at least one url pattern is required", s.ID)
	}
	if len(s.ContainerSelectors) == 0 {
		return fmt.Errorf("site %s: at least one container selector is required", s.ID)
	}

	s.applyDefaults()

	if err := s.validate(); err != nil {
		return fmt.Errorf("site %s: %w", s.ID, err)
	}

	s.urlPatterns = s.urlPatterns[:0]
	for _, p := range s.URLPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("site %s: invalid url pattern %q: %w", s.ID, p, err)
		}
		s.urlPatterns = append(s.urlPatterns, re)
	}

	s.loginPaths = s.loginPaths[:0]
	for _, p := range s.LoginPaths {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("site %s: invalid login path %q: %w", s.ID, p, err)
		}
		s.loginPaths = append(s.loginPaths, re)
	}

	fields := []*Field{
		&s.Extraction.Fields.ID, &s.Extraction.Fields.Title, &s.Extraction.Fields.Price,
		&s.Extraction.Fields.URL, &s.Extraction.Fields.Image, &s.Extraction.Fields.Location,
		&s.Extraction.Fields.Description, &s.Extraction.Fields.Published,
	}
	for _, f := range fields {
		if f.Regex == "" {
			continue
		}
		re, err := regexp.Compile(f.Regex)
		if err != nil {
			return fmt.Errorf("site %s: invalid field regex %q: %w", s.ID, f.Regex, err)
		}
		f.re = re
	}

	return nil
}

func (s *SiteConfig) applyDefaults() {
	if s.Name == "" {
		s.Name = s.ID
	}
	if len(s.ContainerTimeouts) == 0 {
		s.ContainerTimeouts = []time.Duration{DefaultContainerTimeout, DefaultContainerTimeout / 2}
	}
	if s.Timeouts.Navigation <= 0 {
		s.Timeouts.Navigation = DefaultNavigationTimeout
	}
	if s.Timeouts.RenderDelay <= 0 {
		s.Timeouts.RenderDelay = DefaultRenderDelay
	}
	if s.Timeouts.RenderIndicator <= 0 {
		s.Timeouts.RenderIndicator = DefaultRenderIndicatorTimeout
	}
	if s.Timeouts.CaptchaSettle <= 0 {
		s.Timeouts.CaptchaSettle = DefaultCaptchaSettle
	}
	if s.Scroll.Strategy == "" {
		s.Scroll.Strategy = ScrollNone
	}
	if s.Scroll.MaxIterations <= 0 {
		s.Scroll.MaxIterations = DefaultScrollIterations
	}
	if s.Scroll.Wait <= 0 {
		s.Scroll.Wait = DefaultScrollWait
	}
	if s.Stealth == "" {
		s.Stealth = StealthStandard
	}
	if s.Auth.Mode == "" {
		s.Auth.Mode = AuthAnonymous
	}
	if s.RateLimit.RPS <= 0 {
		s.RateLimit.RPS = DefaultRateLimitRPS
	}
	if s.RateLimit.Burst <= 0 {
		s.RateLimit.Burst = DefaultRateLimitBurst
	}
	if s.Diagnosis.MinBodyLength <= 0 {
		s.Diagnosis.MinBodyLength = DefaultMinBodyLength
	}
	if s.Diagnosis.MinContentLength <= 0 {
		s.Diagnosis.MinContentLength = DefaultMinContentLength
	}
	if s.Diagnosis.MinVisibleElements <= 0 {
		s.Diagnosis.MinVisibleElements = DefaultMinVisibleElements
	}
	if s.Extraction.Version == 0 {
		s.Extraction.Version = 1
	}
	if s.Extraction.Strategy == "" {
		s.Extraction.Strategy = StrategyDOM
	}
}

func (s *SiteConfig) validate() error {
	switch s.Stealth {
	case StealthNone, StealthBasic, StealthStandard, StealthAggressive:
	default:
		return fmt.Errorf("unknown stealth level %q", s.Stealth)
	}
	switch s.Auth.Mode {
	case AuthAnonymous, AuthSessionPool, AuthSessionRequired:
	default:
		return fmt.Errorf("unknown auth mode %q", s.Auth.Mode)
	}
	switch s.Scroll.Strategy {
	case ScrollNone, ScrollWindow, ScrollInfinite:
	default:
		return fmt.Errorf("unknown scroll strategy %q", s.Scroll.Strategy)
	}
	switch s.Extraction.Strategy {
	case StrategyDOM:
		if s.Extraction.Item == "" {
			return fmt.Errorf("extraction item selector is required")
		}
	case StrategyEmbeddedState:
		if s.Extraction.State == nil || s.Extraction.State.Items == "" {
			return fmt.Errorf("embedded_state extraction requires state.items")
		}
	default:
		return fmt.Errorf("unknown extraction strategy %q", s.Extraction.Strategy)
	}
	if s.Diagnosis.MinContentLength < s.Diagnosis.MinBodyLength {
		return fmt.Errorf("min_content_length must be >= min_body_length")
	}
	for _, d := range s.ContainerTimeouts {
		if d <= 0 {
			return fmt.Errorf("container timeouts must be > 0")
		}
	}
	return nil
}
