package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/law-makers/marketwatch/internal/auth"
	"github.com/law-makers/marketwatch/internal/captcha"
	"github.com/law-makers/marketwatch/internal/config"
	"github.com/law-makers/marketwatch/internal/diagstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sitesYAML = `
sites:
  - id: shop
    domain: shop.example
    url_patterns: ['^https://shop\.example/search']
    container_selectors: [main]
    rate_limit:
      rps: 2
      burst: 3
    extraction:
      item: .ad
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	sitesPath := filepath.Join(dir, "sites.yaml")
	require.NoError(t, os.WriteFile(sitesPath, []byte(sitesYAML), 0o600))

	cfg := config.Defaults()
	cfg.SitesFile = sitesPath
	cfg.Sessions.Dir = filepath.Join(dir, "sessions")
	cfg.Diagnosis.Sink = "sqlite:" + filepath.Join(dir, "diag.db")
	cfg.LogLevel = "error"
	return &cfg
}

func TestNewWiresRegistryAndLimiter(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, []string{"shop"}, a.Sites.IDs())
	stats := a.Limiter.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "shop", stats[0].Site)
	assert.Equal(t, 2.0, stats[0].RPS)
	assert.Equal(t, 3, stats[0].Burst)

	sessions, err := a.Sessions.List()
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Nil(t, a.Browser())
}

func TestMemorySessionStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sessions.Dir = "memory"
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	_, ok := a.Sessions.(*auth.MemoryStore)
	assert.True(t, ok)
}

func TestCaptchaSolverFromConfig(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, captcha.Disabled{}, a.Captcha)
	a.Close(context.Background())

	cfg := testConfig(t)
	cfg.Browser.Headless = false
	cfg.Scrape.CaptchaSolver = "manual"
	cfg.Scrape.CaptchaWait = time.Minute
	a, err = New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())
	assert.Equal(t, captcha.Manual{Wait: time.Minute}, a.Captcha)

	cfg = testConfig(t)
	cfg.Scrape.CaptchaSolver = "oracle"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown captcha solver")
}

func TestForensicsDir(t *testing.T) {
	assert.Equal(t, "./forensics", forensicsDir(config.DefaultForensicsDir))
	assert.Empty(t, forensicsDir("none"))
	assert.Empty(t, forensicsDir(""))
}

func TestNewFailsOnMissingSites(t *testing.T) {
	cfg := testConfig(t)
	cfg.SitesFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestSinkIsOpenedOnce(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	first, err := a.Sink(context.Background())
	require.NoError(t, err)
	_, ok := first.(*diagstore.SQLiteSink)
	assert.True(t, ok)

	second, err := a.Sink(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.NoError(t, a.Close(context.Background()))
}

func TestSetupLoggingFallsBackToInfo(t *testing.T) {
	cfg := config.Defaults()
	cfg.LogLevel = "nonsense"
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	SetupLogging(&cfg)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
