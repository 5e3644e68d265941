package diagnose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSite(t *testing.T) *sites.SiteConfig {
	t.Helper()
	s := &sites.SiteConfig{
		ID:                 "shop",
		URLPatterns:        []string{`^https://shop\.example/`},
		ContainerSelectors: []string{"#results"},
		LoginPaths:         []string{`/login`},
		Patterns: sites.TextPatterns{
			NoResults:  []string{"No results for your search"},
			Login:      []string{"Please sign in to continue"},
			Checkpoint: []string{"Confirm your identity"},
		},
		Diagnosis:  sites.DiagnosisConfig{MinBodyLength: 50, MinContentLength: 400, MinVisibleElements: 20},
		Extraction: sites.ExtractionSpec{Item: ".ad"},
	}
	require.NoError(t, s.Compile())
	return s
}

func TestClassifyPriorityOrder(t *testing.T) {
	site := testSite(t)

	tests := []struct {
		name string
		sig  models.Signals
		url  string
		want models.PageType
	}{
		{"checkpoint beats everything", models.Signals{HasCheckpointText: true, HasLoginText: true, HasCaptcha: true, HasWAF: true, BodyLength: 5000}, "", models.PageCheckpoint},
		{"login text beats captcha", models.Signals{HasLoginText: true, HasCaptcha: true}, "", models.PageLoginRequired},
		{"login beats no results", models.Signals{HasLoginText: true, HasNoResultsText: true}, "", models.PageLoginRequired},
		{"login form on login path", models.Signals{HasLoginForm: true, BodyLength: 5000}, "https://shop.example/login?next=/", models.PageLoginRequired},
		{"login form elsewhere is content", models.Signals{HasLoginForm: true, BodyLength: 5000}, "https://shop.example/search", models.PageContent},
		{"captcha beats waf", models.Signals{HasCaptcha: true, HasWAF: true}, "", models.PageCaptcha},
		{"waf beats no results", models.Signals{HasWAF: true, HasNoResultsText: true}, "", models.PageBlocked},
		{"no results beats empty", models.Signals{HasNoResultsText: true, BodyLength: 10}, "", models.PageNoResults},
		{"empty", models.Signals{BodyLength: 10, VisibleElements: 500}, "", models.PageEmpty},
		{"content by length", models.Signals{BodyLength: 400}, "", models.PageContent},
		{"content by elements", models.Signals{BodyLength: 100, VisibleElements: 20}, "", models.PageContent},
		{"unknown in between", models.Signals{BodyLength: 100, VisibleElements: 5}, "", models.PageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.sig, tt.url, site))
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	site := testSite(t)
	sig := models.Signals{HasLoginText: true, HasNoResultsText: true, HasCaptcha: true}
	for i := 0; i < 100; i++ {
		require.Equal(t, models.PageLoginRequired, Classify(sig, "", site))
	}
}

func listingPage(n int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Bikes for sale</title><script>var x = 1;</script></head><body><div id=\"results\">")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div class="ad"><a href="/item/%d">Road bike number %d in great condition</a><span class="price">%d €</span></div>`, i, i, 100+i)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func TestComputeSignalsFixtures(t *testing.T) {
	site := testSite(t)

	tests := []struct {
		name string
		page RawPage
		want models.PageType
	}{
		{"listing", RawPage{URL: "https://shop.example/search", HTML: listingPage(30)}, models.PageContent},
		{"recaptcha", RawPage{HTML: `<html><body><iframe src="https://www.google.com/recaptcha/api2/anchor?k=abc"></iframe></body></html>`}, models.PageCaptcha},
		{"datadome", RawPage{HTML: `<html><body><iframe src="https://geo.captcha-delivery.com/captcha/?initialCid=x"></iframe></body></html>`}, models.PageCaptcha},
		{"cloudflare title", RawPage{Title: "Just a moment...", HTML: `<html><head><title>Just a moment...</title></head><body><p>Checking your browser</p></body></html>`}, models.PageBlocked},
		{"imperva", RawPage{HTML: `<html><body><iframe src="/_Incapsula_Resource?x=1"></iframe>Request unsuccessful. Incapsula incident ID: 123</body></html>`}, models.PageBlocked},
		{"no results", RawPage{HTML: `<html><body><h1>No results for your search</h1></body></html>`}, models.PageNoResults},
		{"login text", RawPage{HTML: `<html><body><p>Please sign in to continue</p><p>No results for your search</p></body></html>`}, models.PageLoginRequired},
		{"login form on login url", RawPage{URL: "https://shop.example/login", HTML: `<html><body><form><input name="u"><input type="password" name="p"></form>` + strings.Repeat("<p>filler text here</p>", 10) + `</body></html>`}, models.PageLoginRequired},
		{"checkpoint", RawPage{HTML: `<html><body><h2>Confirm your identity</h2><div class="g-recaptcha"></div></body></html>`}, models.PageCheckpoint},
		{"empty", RawPage{HTML: `<html><body><div></div></body></html>`}, models.PageEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Build(tt.page, site, "https://shop.example/search")
			assert.Equal(t, tt.want, d.PageType)
		})
	}
}

func TestGenericBlockTextOnlyOnThinPages(t *testing.T) {
	site := testSite(t)

	thin := ComputeSignals(RawPage{HTML: `<html><body>You have been blocked.</body></html>`}, site)
	assert.True(t, thin.HasWAF)
	assert.Equal(t, "generic", thin.WAFProvider)

	rich := ComputeSignals(RawPage{HTML: listingPage(30) + `<p>You have been blocked</p>`}, site)
	assert.False(t, rich.HasWAF)
}

func TestCountVisibleSkipsHiddenSubtrees(t *testing.T) {
	site := testSite(t)
	page := RawPage{HTML: `<html><body>
		<div><span>a</span><span>b</span></div>
		<div style="display: none"><span>c</span><span>d</span></div>
		<div hidden><p>e</p></div>
		<input type="hidden" name="csrf">
		<script>1</script>
	</body></html>`}

	sig := ComputeSignals(page, site)
	assert.Equal(t, 3, sig.VisibleElements)
}

func TestBrowserVisibleCountWins(t *testing.T) {
	site := testSite(t)
	sig := ComputeSignals(RawPage{HTML: `<html><body><div></div></body></html>`, VisibleElements: 77}, site)
	assert.Equal(t, 77, sig.VisibleElements)
}

type fakeExtractor struct {
	page RawPage
	err  error
}

func (f fakeExtractor) Extract(ctx context.Context) (RawPage, error) { return f.page, f.err }

func TestDiagnoserUsesExtractor(t *testing.T) {
	site := testSite(t)
	d := &Diagnoser{Extractor: fakeExtractor{page: RawPage{URL: "https://shop.example/search?page=2", Title: "Bikes", HTML: listingPage(40)}}}

	diag, err := d.Diagnose(context.Background(), site, "https://shop.example/search")
	require.NoError(t, err)
	assert.Equal(t, models.PageContent, diag.PageType)
	assert.Equal(t, "https://shop.example/search", diag.RequestedURL)
	assert.Equal(t, "https://shop.example/search?page=2", diag.FinalURL)
	assert.Equal(t, "Bikes", diag.Title)
	assert.False(t, diag.DiagnosedAt.IsZero())

	d.Extractor = fakeExtractor{err: errors.New("target closed")}
	_, err = d.Diagnose(context.Background(), site, "https://shop.example/search")
	assert.Error(t, err)
}
