package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// DiagnosisRecord is a flat projection of one scrape, suitable for storage
type DiagnosisRecord struct {
	MonitorID        string    `json:"monitor_id"`
	UserID           string    `json:"user_id"`
	SiteID           string    `json:"site"`
	Mode             string    `json:"mode,omitempty"`
	PageType         string    `json:"page_type"`
	RequestedURL     string    `json:"requested_url"`
	FinalURL         string    `json:"final_url,omitempty"`
	Title            string    `json:"title,omitempty"`
	BodyLength       int       `json:"body_length"`
	CaptchaProvider  string    `json:"captcha_provider,omitempty"`
	WAFProvider      string    `json:"waf_provider,omitempty"`
	VisibleElements  int       `json:"visible_elements"`
	SelectorUsed     string    `json:"selector_used,omitempty"`
	ScreenshotPath   string    `json:"screenshot_path,omitempty"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	AuthSource       string    `json:"auth_source"`
	Authenticated    bool      `json:"authenticated"`
	AdsRaw           int       `json:"ads_raw"`
	AdsValid         int       `json:"ads_valid"`
	SkipReasons      string    `json:"skip_reasons,omitempty"`
	ScrollIterations int       `json:"scroll_iterations"`
	Attempts         int       `json:"attempts"`
	CrashRecoveries  int       `json:"crash_recoveries"`
	DurationMs       int64     `json:"duration_ms"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// NewDiagnosisRecord maps a monitor and its scrape result to a record.
// Neither argument is modified.
func NewDiagnosisRecord(m Monitor, r ExtractionResult) DiagnosisRecord {
	d := r.Diagnosis
	recordedAt := d.DiagnosedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	return DiagnosisRecord{
		MonitorID:        m.ID,
		UserID:           m.UserID,
		SiteID:           m.SiteID,
		Mode:             string(m.Mode),
		PageType:         string(d.PageType),
		RequestedURL:     d.RequestedURL,
		FinalURL:         d.FinalURL,
		Title:            d.Title,
		BodyLength:       d.BodyLength,
		CaptchaProvider:  d.Signals.CaptchaProvider,
		WAFProvider:      d.Signals.WAFProvider,
		VisibleElements:  d.Signals.VisibleElements,
		SelectorUsed:     r.Metrics.SelectorUsed,
		ScreenshotPath:   d.ScreenshotPath,
		ErrorKind:        d.ErrorKind,
		ErrorMessage:     d.ErrorMessage,
		AuthSource:       string(r.Metrics.AuthSource),
		Authenticated:    r.Metrics.Authenticated,
		AdsRaw:           r.Metrics.AdsRaw,
		AdsValid:         r.Metrics.AdsValid,
		SkipReasons:      FormatSkipReasons(r.Metrics.SkipReasons),
		ScrollIterations: r.Metrics.ScrollIterations,
		Attempts:         r.Metrics.Attempts,
		CrashRecoveries:  r.Metrics.CrashRecoveries,
		DurationMs:       r.Metrics.Duration.Milliseconds(),
		RecordedAt:       recordedAt,
	}
}

// FormatSkipReasons renders skip reasons as "reason=count" pairs in key order
func FormatSkipReasons(reasons map[string]int) string {
	if len(reasons) == 0 {
		return ""
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Itoa(reasons[k]))
	}
	return strings.Join(parts, ",")
}
