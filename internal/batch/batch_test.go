package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockScraper struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (s *mockScraper) Scrape(ctx context.Context, m models.Monitor) (models.ExtractionResult, models.DiagnosisRecord) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	res := models.ExtractionResult{Diagnosis: models.PageDiagnosis{PageType: models.PageContent}}
	if m.SearchURL == "error" {
		res.Diagnosis.PageType = models.PageUnknown
		res.Diagnosis.ErrorKind = "BLOCKED"
	} else {
		res.Ads = []models.ScrapedAd{{ExternalID: m.ID}}
	}
	return res, models.NewDiagnosisRecord(m, res)
}

type memorySink struct {
	mu   sync.Mutex
	recs []models.DiagnosisRecord
}

func (s *memorySink) Write(_ context.Context, rec models.DiagnosisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memorySink) Close() error { return nil }

func TestRunner(t *testing.T) {
	scraper := &mockScraper{}
	sink := &memorySink{}
	runner := New(scraper, sink, 2)

	monitors := []models.Monitor{
		{ID: "a1", SiteID: "a", SearchURL: "url1", Mode: models.ModeLive},
		{ID: "a2", SiteID: "a", SearchURL: "url2", Mode: models.ModeLive},
		{ID: "b1", SiteID: "b", SearchURL: "error", Mode: models.ModeLive},
		{ID: "b2", SiteID: "b", SearchURL: "url3", Mode: models.ModeDryRun},
		{ID: "c1", SiteID: "c", SearchURL: "url4", Mode: models.ModeLive},
	}

	outcomes := collect(runner.Run(context.Background(), monitors))

	require.Len(t, outcomes, 5)
	assert.LessOrEqual(t, scraper.peak.Load(), int32(2))
	assert.Len(t, sink.recs, 4, "dry-run monitors are not recorded")

	s := Summarize(outcomes)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 4, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 4, s.Ads)
	assert.Equal(t, map[string]int{"CONTENT": 4, "UNKNOWN": 1}, s.PageTypes)
	assert.Equal(t, map[string]int{"BLOCKED": 1}, s.ErrorKinds)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := collect(New(&mockScraper{}, nil, 1).Run(ctx, []models.Monitor{
		{ID: "a1", SiteID: "a"}, {ID: "a2", SiteID: "a"}, {ID: "a3", SiteID: "a"},
	}))

	// the first send may race the cancelled context
	if len(outcomes) > 1 {
		t.Errorf("Expected at most 1 outcome after cancel, got %d", len(outcomes))
	}
}

func TestInterleave(t *testing.T) {
	groups := GroupBySite([]models.Monitor{
		{ID: "a1", SiteID: "a"}, {ID: "a2", SiteID: "a"}, {ID: "a3", SiteID: "a"},
		{ID: "b1", SiteID: "b"},
		{ID: "c1", SiteID: "c"}, {ID: "c2", SiteID: "c"},
	})

	var ids []string
	for _, m := range Interleave(groups) {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a1", "b1", "c1", "a2", "c2", "a3"}, ids)
}

func TestOptimalConcurrency(t *testing.T) {
	assert.GreaterOrEqual(t, OptimalConcurrency(3), 3)
	assert.LessOrEqual(t, OptimalConcurrency(3), 6)
	assert.GreaterOrEqual(t, OptimalConcurrency(0), 1)
}

const monitorsYAML = `
monitors:
  - id: bikes
    user_id: u1
    search_url: https://shop.example/search?q=bike
    max_price: 500
    locations: [Lyon]
  - id: lamps
    user_id: u2
    site: shop
    search_url: https://shop.example/search?q=lamp
    mode: dry_run
`

func testRegistry(t *testing.T) *sites.Registry {
	t.Helper()
	reg, err := sites.NewRegistry(&sites.SiteConfig{
		ID:                 "shop",
		Domain:             "shop.example",
		URLPatterns:        []string{`^https://shop\.example/search`},
		ContainerSelectors: []string{"main"},
		Extraction:         sites.ExtractionSpec{Item: ".ad"},
	})
	require.NoError(t, err)
	return reg
}

func TestParseMonitors(t *testing.T) {
	monitors, err := ParseMonitors([]byte(monitorsYAML), testRegistry(t))
	require.NoError(t, err)
	require.Len(t, monitors, 2)

	assert.Equal(t, "shop", monitors[0].SiteID)
	assert.Equal(t, models.ModeLive, monitors[0].Mode)
	require.NotNil(t, monitors[0].MaxPrice)
	assert.Equal(t, 500.0, *monitors[0].MaxPrice)
	assert.Equal(t, []string{"Lyon"}, monitors[0].Locations)
	assert.Equal(t, models.ModeDryRun, monitors[1].Mode)
}

func TestParseMonitorsRejects(t *testing.T) {
	reg := testRegistry(t)
	cases := map[string]string{
		"empty":         "monitors: []",
		"missing id":    "monitors:\n  - search_url: https://shop.example/search\n",
		"duplicate":     "monitors:\n  - {id: a, search_url: https://shop.example/search}\n  - {id: a, search_url: https://shop.example/search}\n",
		"no site":       "monitors:\n  - {id: a, search_url: https://other.example/}\n",
		"bad mode":      "monitors:\n  - {id: a, search_url: https://shop.example/search, mode: loud}\n",
		"inverted":      "monitors:\n  - {id: a, search_url: https://shop.example/search, min_price: 10, max_price: 5}\n",
		"unknown field": "monitors:\n  - {id: a, search_url: https://shop.example/search, colour: red}\n",
		"not http":      "monitors:\n  - {id: a, search_url: 'ftp://shop.example/search'}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMonitors([]byte(doc), reg)
			assert.Error(t, err)
		})
	}
}

func collect(ch <-chan Outcome) []Outcome {
	var out []Outcome
	for o := range ch {
		out = append(out, o)
	}
	return out
}

func TestExampleMonitorsLoad(t *testing.T) {
	reg, err := sites.Load("../../configs/sites.example.yaml")
	require.NoError(t, err)

	monitors, err := LoadMonitors("../../configs/monitors.example.yaml", reg)
	require.NoError(t, err)
	require.Len(t, monitors, 3)
	assert.Equal(t, "leboncoin", monitors[0].SiteID)
	assert.Equal(t, "kufar", monitors[1].SiteID)
	assert.Equal(t, "marketplace-social", monitors[2].SiteID)
	assert.Equal(t, models.ModeDryRun, monitors[2].Mode)
}
