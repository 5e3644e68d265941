package stealth

import (
	"context"
	"testing"
	"time"

	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/stretchr/testify/assert"
)

func TestJitterStaysWithinBounds(t *testing.T) {
	base := time.Second
	for i := 0; i < 1000; i++ {
		d := Jitter(base, DefaultJitter)
		assert.GreaterOrEqual(t, d, 850*time.Millisecond)
		assert.LessOrEqual(t, d, 1150*time.Millisecond)
	}
}

func TestJitterVaries(t *testing.T) {
	seen := map[time.Duration]bool{}
	for i := 0; i < 50; i++ {
		seen[Jitter(time.Second, DefaultJitter)] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestJitterEdgeCases(t *testing.T) {
	assert.Equal(t, time.Duration(0), Jitter(0, 0.15))
	assert.Equal(t, time.Second, Jitter(time.Second, 0))
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestActionsGrowWithLevel(t *testing.T) {
	p := Profiles[0]

	assert.Empty(t, Actions(sites.StealthNone, p, "", nil))
	assert.Len(t, Actions(sites.StealthNone, p, "", map[string]string{"X-Test": "1"}), 2)

	basic := Actions(sites.StealthBasic, p, "", nil)
	standard := Actions(sites.StealthStandard, p, "", nil)
	aggressive := Actions(sites.StealthAggressive, p, "", nil)

	assert.Len(t, basic, 4)
	assert.Len(t, standard, len(basic)+1)
	assert.Len(t, aggressive, len(standard)+1)

	assert.Len(t, Actions(sites.StealthBasic, p, "Europe/Paris", nil), 5)
}

func TestForLocale(t *testing.T) {
	p := Profiles[0].ForLocale("fr_FR")
	assert.Equal(t, []string{"fr-FR", "fr", "en"}, p.Languages)
	assert.Equal(t, "fr-FR,fr;q=0.9,en;q=0.7", p.AcceptLanguage)

	assert.Equal(t, Profiles[0].Languages, Profiles[0].ForLocale("").Languages)
}

func TestNavigatorScriptMentionsProfile(t *testing.T) {
	script := NavigatorScript(Profiles[1])
	assert.Contains(t, script, `"MacIntel"`)
	assert.Contains(t, script, `'webdriver'`)
	assert.Contains(t, script, `"en-US", "en"`)
}

func TestToHeadersMergesExtra(t *testing.T) {
	h := toHeaders(map[string]string{"X-Forwarded-Proto": "https"}, "de-DE")
	assert.Equal(t, "de-DE", h["Accept-Language"])
	assert.Equal(t, "https", h["X-Forwarded-Proto"])
}
