// internal/diagnose/signals.go
package diagnose

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/pkg/models"
	"golang.org/x/net/html"
)

// RawPage is what the browser reports about the current document
type RawPage struct {
	URL             string `json:"url"`
	Title           string `json:"title"`
	HTML            string `json:"html"`
	VisibleElements int    `json:"visible"`
}

type marker struct {
	name      string
	selectors string
	html      []string
	titles    []string
}

// captchaMarkers are matched against DOM selectors, raw HTML substrings and
// the page title
var captchaMarkers = []marker{
	{name: "recaptcha", selectors: `iframe[src*="recaptcha/api2/anchor"], iframe[src*="recaptcha/api2/bframe"], iframe[src*="recaptcha/enterprise/anchor"], .g-recaptcha`},
	{name: "hcaptcha", selectors: `iframe[src*="hcaptcha.com"], .h-captcha`},
	{name: "turnstile", selectors: `.cf-turnstile, iframe[src*="challenges.cloudflare.com/cdn-cgi/challenge-platform"]`},
	{name: "arkose", selectors: `iframe[src*="arkoselabs.com"], #FunCaptcha, #arkose-iframe`},
	{name: "perimeterx", selectors: `#px-captcha`},
	{name: "geetest", selectors: `.geetest_panel, .geetest_holder, .geetest_captcha`},
	{name: "datadome", selectors: `iframe[src*="captcha-delivery.com"]`, html: []string{"geo.captcha-delivery.com/captcha"}},
}

// wafMarkers identify bot-mitigation interstitials and block pages
var wafMarkers = []marker{
	{
		name:      "cloudflare",
		selectors: `#cf-wrapper, #challenge-form, #cf-challenge-running, .cf-error-details`,
		titles:    []string{"just a moment...", "attention required! | cloudflare"},
	},
	{name: "akamai", html: []string{"errors.edgesuite.net"}, titles: []string{"access denied"}},
	{name: "imperva", html: []string{"_incapsula_resource", "incapsula incident id"}},
	{name: "perimeterx", selectors: `#px-block, .px-block`},
	{name: "sucuri", html: []string{"sucuri website firewall"}},
	{name: "aws-waf", html: []string{"awswafintegration", "aws-waf-token"}},
}

// blockTexts are generic block-page phrases, only trusted on thin pages
var blockTexts = []string{
	"you have been blocked",
	"request unsuccessful",
	"pardon our interruption",
	"access to this page has been denied",
}

// ComputeSignals derives the signal bundle of a rendered page. It is pure so
// classification can be tested against HTML fixtures.
func ComputeSignals(page RawPage, site *sites.SiteConfig) models.Signals {
	var sig models.Signals

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return sig
	}

	text := normalizeText(doc.Find("body").Text())
	lowerHTML := strings.ToLower(page.HTML)
	lowerTitle := strings.ToLower(strings.TrimSpace(page.Title))
	if lowerTitle == "" {
		lowerTitle = strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	}

	sig.BodyLength = len([]rune(text))
	sig.VisibleElements = page.VisibleElements
	if sig.VisibleElements <= 0 {
		sig.VisibleElements = countVisible(doc)
	}

	if name, ok := matchMarkers(doc, lowerHTML, lowerTitle, captchaMarkers); ok {
		sig.HasCaptcha, sig.CaptchaProvider = true, name
	} else if containsAny(text, site.Patterns.Captcha) {
		sig.HasCaptcha, sig.CaptchaProvider = true, "site-pattern"
	}

	if name, ok := matchMarkers(doc, lowerHTML, lowerTitle, wafMarkers); ok {
		sig.HasWAF, sig.WAFProvider = true, name
	} else if containsAny(text, site.Patterns.Blocked) {
		sig.HasWAF, sig.WAFProvider = true, "site-pattern"
	} else if sig.BodyLength < site.Diagnosis.MinContentLength && containsAny(text, blockTexts) {
		sig.HasWAF, sig.WAFProvider = true, "generic"
	}

	sig.HasLoginForm = doc.Find(`input[type="password"]`).Length() > 0
	sig.HasLoginText = containsAny(text, site.Patterns.Login)
	sig.HasCheckpointText = containsAny(text, site.Patterns.Checkpoint)
	sig.HasNoResultsText = containsAny(text, site.Patterns.NoResults)

	return sig
}

func matchMarkers(doc *goquery.Document, lowerHTML, lowerTitle string, markers []marker) (string, bool) {
	for _, m := range markers {
		if m.selectors != "" && doc.Find(m.selectors).Length() > 0 {
			return m.name, true
		}
		for _, s := range m.html {
			if strings.Contains(lowerHTML, s) {
				return m.name, true
			}
		}
		for _, t := range m.titles {
			if lowerTitle == t {
				return m.name, true
			}
		}
	}
	return "", false
}

func containsAny(lowerText string, patterns []string) bool {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lowerText, p) {
			return true
		}
	}
	return false
}

// normalizeText lowercases and collapses whitespace
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var invisibleTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"meta": true, "link": true, "head": true, "title": true, "br": true,
}

// countVisible counts body elements that are not hidden by attribute or
// inline style. Hidden subtrees are skipped entirely.
func countVisible(doc *goquery.Document) int {
	body := doc.Find("body").Nodes
	if len(body) == 0 {
		return 0
	}

	var walk func(n *html.Node) int
	walk = func(n *html.Node) int {
		count := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if invisibleTags[c.Data] || isHidden(c) {
				continue
			}
			count += 1 + walk(c)
		}
		return count
	}
	return walk(body[0])
}

func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if a.Val == "true" {
				return true
			}
		case "type":
			if n.Data == "input" && strings.EqualFold(a.Val, "hidden") {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}
