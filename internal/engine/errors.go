// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/law-makers/marketwatch/pkg/models"
)

// Kind classifies why a scrape attempt failed. It decides the recovery
// path: auth errors go back to the caller, crashes relaunch the browser,
// everything else goes through the retry preset.
type Kind string

const (
	KindUnsupported   Kind = "UNSUPPORTED"
	KindAuthRequired  Kind = "AUTH_REQUIRED"
	KindCrash         Kind = "CRASH"
	KindBlocked       Kind = "BLOCKED"
	KindCaptchaFailed Kind = "CAPTCHA_FAILED"
	KindAmbiguous     Kind = "AMBIGUOUS"
	KindTransient     Kind = "TRANSIENT"
	KindPanic         Kind = "PANIC"
)

var (
	// ErrUnsupportedURL means no site pattern accepts the monitor URL
	ErrUnsupportedURL = errors.New("url not supported by site")
	// ErrCaptchaPersists means a solved CAPTCHA was followed by another
	// non-content page
	ErrCaptchaPersists = errors.New("captcha persists")
	// ErrNoSolver means a CAPTCHA was met with no solver configured
	ErrNoSolver = errors.New("no captcha solver configured")
)

// ScrapeError is a failure tagged at the point it was detected
type ScrapeError struct {
	Kind     Kind
	PageType models.PageType
	Message  string
	Err      error

	// Diagnosis is the last page diagnosis taken before the failure, if any
	Diagnosis *models.PageDiagnosis
	// Metrics are those of the attempt that failed, once auth was resolved
	Metrics *models.ExtractionMetrics
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Is matches another ScrapeError of the same kind
func (e *ScrapeError) Is(target error) bool {
	if t, ok := target.(*ScrapeError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// AuthRequired lets the retry helper stop on authentication failures
func (e *ScrapeError) AuthRequired() bool {
	return e.Kind == KindAuthRequired
}

func newError(kind Kind, pageType models.PageType, message string, err error) *ScrapeError {
	return &ScrapeError{Kind: kind, PageType: pageType, Message: message, Err: err}
}

func withDiagnosis(e *ScrapeError, d models.PageDiagnosis) *ScrapeError {
	e.Diagnosis = &d
	return e
}

// withMetrics attaches the failed attempt's metrics to the tagged error
// inside err. The first attempt to tag an error wins.
func withMetrics(err error, m models.ExtractionMetrics) error {
	var se *ScrapeError
	if !errors.As(err, &se) || se.Metrics != nil {
		return err
	}
	m.SkipReasons = maps.Clone(m.SkipReasons)
	se.Metrics = &m
	return err
}

// KindOf returns the kind of err. Untagged errors are TRANSIENT.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// crashSignatures are error fragments chromedp and Chrome produce when the
// browser process or its connection is gone
var crashSignatures = []string{
	"target closed",
	"session closed",
	"browser closed",
	"browser has disconnected",
	"websocket: close",
	"websocket: bad handshake",
	"could not dial",
	"chrome failed to start",
	"no such target",
	"target crashed",
	"invalid context",
}

func looksLikeCrash(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, sig := range crashSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
