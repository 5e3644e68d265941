package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if c.SitesFile == "" {
		return fmt.Errorf("sites file is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Browser.MaxContexts <= 0 || c.Browser.MaxContexts > DefaultMaxContextsCap {
		return fmt.Errorf("max contexts must be between 1 and %d", DefaultMaxContextsCap)
	}
	if c.Browser.StartupTimeout <= 0 {
		return fmt.Errorf("browser startup timeout must be > 0")
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate limit rps must be > 0")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit burst must be > 0")
	}
	if c.RateLimit.MaxQueueWait < 0 {
		return fmt.Errorf("max queue wait must not be negative")
	}
	if c.Scrape.RetryAttempts <= 0 {
		return fmt.Errorf("retry attempts must be > 0")
	}
	if c.Scrape.CrashRecoveries < 0 {
		return fmt.Errorf("crash recoveries must not be negative")
	}
	if c.Scrape.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	switch strings.ToLower(c.Scrape.CaptchaSolver) {
	case "", "none":
	case "manual":
		if c.Browser.Headless {
			return fmt.Errorf("manual captcha solving needs a headful browser")
		}
	default:
		return fmt.Errorf("unknown captcha solver %q", c.Scrape.CaptchaSolver)
	}
	if c.Server.ScrapeTimeout <= 0 {
		return fmt.Errorf("server scrape timeout must be > 0")
	}
	return nil
}
