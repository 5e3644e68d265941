package sites

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalSite(id string) *SiteConfig {
	return &SiteConfig{
		ID:                 id,
		Domain:             id + ".example",
		URLPatterns:        []string{`^https://` + id + `\.example/search`},
		ContainerSelectors: []string{"#results", "main"},
		Extraction:         ExtractionSpec{Item: ".ad"},
	}
}

func TestLoadExampleSites(t *testing.T) {
	reg, err := Load("testdata/sites.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"kufar", "leboncoin", "marketplace-social"}, reg.IDs())

	lbc, err := reg.Get("leboncoin")
	require.NoError(t, err)
	assert.Equal(t, StealthAggressive, lbc.Stealth)
	assert.Equal(t, ScrollWindow, lbc.Scroll.Strategy)
	assert.Equal(t, 45*time.Second, lbc.Timeouts.Navigation)
	assert.Equal(t, 2500*time.Millisecond, lbc.Timeouts.RenderDelay)
	assert.Equal(t, 3*time.Minute, lbc.RateLimit.MaxWait)
	assert.True(t, lbc.Supports("https://www.leboncoin.fr/recherche?text=velo"))
	assert.False(t, lbc.Supports("https://www.leboncoin.fr/compte"))
	assert.True(t, lbc.IsLoginPath("https://www.leboncoin.fr/connexion?redirect=x"))

	fb, err := reg.Get("marketplace-social")
	require.NoError(t, err)
	assert.Equal(t, AuthSessionRequired, fb.Auth.Mode)
	require.NotNil(t, fb.Auth.Form)
	assert.Equal(t, "#email", fb.Auth.Form.UsernameSelector)

	kufar, err := reg.Get("kufar")
	require.NoError(t, err)
	assert.Equal(t, StrategyEmbeddedState, kufar.Extraction.Strategy)
}

func TestCompileAppliesDefaults(t *testing.T) {
	s := minimalSite("shop")
	require.NoError(t, s.Compile())

	assert.Equal(t, StealthStandard, s.Stealth)
	assert.Equal(t, AuthAnonymous, s.Auth.Mode)
	assert.Equal(t, ScrollNone, s.Scroll.Strategy)
	assert.Equal(t, DefaultRateLimitRPS, s.RateLimit.RPS)
	assert.Equal(t, DefaultNavigationTimeout, s.Timeouts.Navigation)
	assert.Equal(t, StrategyDOM, s.Extraction.Strategy)
	assert.Equal(t, 1, s.Extraction.Version)
}

func TestCompileRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SiteConfig)
	}{
		{"no patterns", func(s *SiteConfig) { s.URLPatterns = nil }},
		{"bad pattern", func(s *SiteConfig) { s.URLPatterns = []string{"("} }},
		{"no containers", func(s *SiteConfig) { s.ContainerSelectors = nil }},
		{"bad stealth", func(s *SiteConfig) { s.Stealth = "paranoid" }},
		{"bad auth", func(s *SiteConfig) { s.Auth.Mode = "oauth" }},
		{"no item", func(s *SiteConfig) { s.Extraction.Item = "" }},
		{"state without items", func(s *SiteConfig) { s.Extraction.Strategy = StrategyEmbeddedState }},
		{"bad field regex", func(s *SiteConfig) { s.Extraction.Fields.ID.Regex = "[" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := minimalSite("shop")
			tt.mutate(s)
			assert.Error(t, s.Compile())
		})
	}
}

func TestRegistryGetAndMatch(t *testing.T) {
	reg, err := NewRegistry(minimalSite("alpha"), minimalSite("beta"))
	require.NoError(t, err)

	_, err = reg.Get("gamma")
	assert.ErrorIs(t, err, ErrUnknownSite)

	s, ok := reg.Match("https://www.beta.example/search?q=1")
	require.True(t, ok)
	assert.Equal(t, "beta", s.ID)

	_, ok = reg.Match("https://other.example/")
	assert.False(t, ok)

	assert.Error(t, reg.Register(minimalSite("alpha")))
}

func TestFieldApply(t *testing.T) {
	s := minimalSite("shop")
	s.Extraction.Fields.ID = Field{Attr: "href", Regex: `/item/(\d+)`}
	s.Extraction.Fields.Title = Field{Regex: `\w+`}
	require.NoError(t, s.Compile())

	assert.Equal(t, "42", s.Extraction.Fields.ID.Apply(" /item/42?ref=x "))
	assert.Equal(t, "", s.Extraction.Fields.ID.Apply("/about"))
	assert.Equal(t, "Bike", s.Extraction.Fields.Title.Apply("Bike!"))
	assert.Equal(t, "raw", s.Extraction.Fields.Price.Apply(" raw "))
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("sites:\n  - id: x\n    bogus: 1\n"))
	assert.Error(t, err)
}
