package models

import "time"

// PageType is the classification of a page the engine navigated to
type PageType string

const (
	PageContent       PageType = "CONTENT"
	PageNoResults     PageType = "NO_RESULTS"
	PageLoginRequired PageType = "LOGIN_REQUIRED"
	PageCheckpoint    PageType = "CHECKPOINT"
	PageCaptcha       PageType = "CAPTCHA"
	PageBlocked       PageType = "BLOCKED"
	PageEmpty         PageType = "EMPTY"
	PageUnknown       PageType = "UNKNOWN"
)

// IsAuthFailure reports whether the page type means the session is not usable
func (p PageType) IsAuthFailure() bool {
	return p == PageLoginRequired || p == PageCheckpoint
}

// AuthSource describes where the browsing identity of a scrape came from
type AuthSource string

const (
	AuthAnonymous   AuthSource = "anonymous"
	AuthSessionPool AuthSource = "session-pool"
	AuthFreshLogin  AuthSource = "fresh-login"
)

// MonitorMode defines how the caller treats the results of a monitor
type MonitorMode string

const (
	ModeLive   MonitorMode = "live"
	ModeDryRun MonitorMode = "dry_run"
)

// Monitor is a user's watch definition against one site
type Monitor struct {
	ID        string      `json:"id" yaml:"id"`
	UserID    string      `json:"user_id" yaml:"user_id"`
	SiteID    string      `json:"site" yaml:"site"`
	SearchURL string      `json:"search_url" yaml:"search_url"`
	MinPrice  *float64    `json:"min_price,omitempty" yaml:"min_price,omitempty"`
	MaxPrice  *float64    `json:"max_price,omitempty" yaml:"max_price,omitempty"`
	Locations []string    `json:"locations,omitempty" yaml:"locations,omitempty"`
	Keywords  []string    `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Mode      MonitorMode `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// Signals is the bundle of DOM and text markers read from a rendered page
type Signals struct {
	HasCaptcha        bool   `json:"has_captcha"`
	CaptchaProvider   string `json:"captcha_provider,omitempty"`
	HasWAF            bool   `json:"has_waf"`
	WAFProvider       string `json:"waf_provider,omitempty"`
	HasLoginForm      bool   `json:"has_login_form"`
	HasLoginText      bool   `json:"has_login_text"`
	HasCheckpointText bool   `json:"has_checkpoint_text"`
	HasNoResultsText  bool   `json:"has_no_results_text"`
	BodyLength        int    `json:"body_length"`
	VisibleElements   int    `json:"visible_elements"`
}

// PageDiagnosis is the classification of one scrape attempt
type PageDiagnosis struct {
	PageType        PageType  `json:"page_type"`
	RequestedURL    string    `json:"requested_url"`
	FinalURL        string    `json:"final_url,omitempty"`
	Title           string    `json:"title,omitempty"`
	BodyLength      int       `json:"body_length"`
	Signals         Signals   `json:"signals"`
	MatchedSelector string    `json:"matched_selector,omitempty"`
	ScreenshotPath  string    `json:"screenshot_path,omitempty"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	DiagnosedAt     time.Time `json:"diagnosed_at"`
}

// ExtractionMetrics describes the work done by one scrape call
type ExtractionMetrics struct {
	Duration         time.Duration  `json:"duration"`
	Authenticated    bool           `json:"authenticated"`
	AuthSource       AuthSource     `json:"auth_source"`
	SelectorUsed     string         `json:"selector_used,omitempty"`
	AdsRaw           int            `json:"ads_raw"`
	AdsValid         int            `json:"ads_valid"`
	SkipReasons      map[string]int `json:"skip_reasons,omitempty"`
	ScrollIterations int            `json:"scroll_iterations"`
	Attempts         int            `json:"attempts"`
	CrashRecoveries  int            `json:"crash_recoveries"`
	CaptchaSolved    bool           `json:"captcha_solved"`
}

// ScrapedAd is one listing extracted from a results page
type ScrapedAd struct {
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Price       *float64   `json:"price,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	URL         string     `json:"url"`
	Description string     `json:"description,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Location    string     `json:"location,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// ExtractionResult is the only output of a scrape. Absence of ads is always
// explained by Diagnosis.PageType.
type ExtractionResult struct {
	Ads       []ScrapedAd       `json:"ads"`
	Diagnosis PageDiagnosis     `json:"diagnosis"`
	Metrics   ExtractionMetrics `json:"metrics"`
}

// Failed reports whether the result carries an error classification
func (r ExtractionResult) Failed() bool {
	return r.Diagnosis.ErrorKind != ""
}
