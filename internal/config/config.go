package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"
)

// EnvConfigFile names the configuration file when --config is not given
const EnvConfigFile = "MARKETWATCH_CONFIG"

// Config holds application configuration values
type Config struct {
	SitesFile string `yaml:"sites_file" env:"MARKETWATCH_SITES_FILE"`

	// Logging
	LogLevel string `yaml:"log_level" env:"MARKETWATCH_LOG_LEVEL"`
	JSONLog  bool   `yaml:"json_log" env:"MARKETWATCH_JSON_LOG"`

	Browser   BrowserConfig   `yaml:"browser"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Sessions  SessionConfig   `yaml:"sessions"`
	Diagnosis DiagnosisConfig `yaml:"diagnosis"`
	Server    ServerConfig    `yaml:"server"`
}

// BrowserConfig sizes the shared browser
type BrowserConfig struct {
	Headless       bool          `yaml:"headless" env:"MARKETWATCH_HEADLESS"`
	ChromePath     string        `yaml:"chrome_path" env:"MARKETWATCH_CHROME_PATH"`
	MaxContexts    int           `yaml:"max_contexts" env:"MARKETWATCH_MAX_CONTEXTS"`
	StartupTimeout time.Duration `yaml:"startup_timeout" env:"MARKETWATCH_BROWSER_STARTUP_TIMEOUT"`
	Proxies        []string      `yaml:"proxies" env:"MARKETWATCH_PROXIES"`
	ProxyCooldown  time.Duration `yaml:"proxy_cooldown" env:"MARKETWATCH_PROXY_COOLDOWN"`
	// ExtraHeaders are "Key: Value" pairs sent with every request
	ExtraHeaders []string `yaml:"extra_headers" env:"MARKETWATCH_EXTRA_HEADERS"`
}

// RateLimitConfig holds the bucket defaults of sites without their own
type RateLimitConfig struct {
	RPS          float64       `yaml:"rps" env:"MARKETWATCH_RATE_RPS"`
	Burst        int           `yaml:"burst" env:"MARKETWATCH_RATE_BURST"`
	MaxQueueWait time.Duration `yaml:"max_queue_wait" env:"MARKETWATCH_MAX_QUEUE_WAIT"`
}

// ScrapeConfig tunes the engine
type ScrapeConfig struct {
	RetryAttempts   int `yaml:"retry_attempts" env:"MARKETWATCH_RETRY_ATTEMPTS"`
	CrashRecoveries int `yaml:"crash_recoveries" env:"MARKETWATCH_CRASH_RECOVERIES"`
	// Concurrency of batch runs; 0 derives it from the context cap
	Concurrency int `yaml:"concurrency" env:"MARKETWATCH_CONCURRENCY"`
	// ForensicsDir receives screenshots of ambiguous pages; "none" disables
	ForensicsDir string `yaml:"forensics_dir" env:"MARKETWATCH_FORENSICS_DIR"`
	// CaptchaSolver is "none" or "manual", the latter needs a headful browser
	CaptchaSolver string        `yaml:"captcha_solver" env:"MARKETWATCH_CAPTCHA_SOLVER"`
	CaptchaWait   time.Duration `yaml:"captcha_wait" env:"MARKETWATCH_CAPTCHA_WAIT"`
}

// SessionConfig locates stored sessions and tunes pool backoff
type SessionConfig struct {
	// Dir forces a file store; "memory" keeps sessions in process only and
	// empty uses the OS keyring when available
	Dir         string        `yaml:"dir" env:"MARKETWATCH_SESSION_DIR"`
	MaxFailures int           `yaml:"max_failures" env:"MARKETWATCH_SESSION_MAX_FAILURES"`
	BaseBackoff time.Duration `yaml:"base_backoff" env:"MARKETWATCH_SESSION_BACKOFF"`
}

// DiagnosisConfig selects where diagnosis records are written
type DiagnosisConfig struct {
	Sink string `yaml:"sink" env:"MARKETWATCH_DIAGNOSIS_SINK"`
}

// ServerConfig configures the worker HTTP surface
type ServerConfig struct {
	Addr          string        `yaml:"addr" env:"MARKETWATCH_ADDR"`
	ScrapeTimeout time.Duration `yaml:"scrape_timeout" env:"MARKETWATCH_SCRAPE_TIMEOUT"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" env:"MARKETWATCH_SHUTDOWN_GRACE"`
}

// Load builds a Config by combining defaults, an optional config file, environment variables, and CLI flags.
// Caller should pass the root *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	path := os.Getenv(EnvConfigFile)
	if cmd != nil {
		if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
			path = f.Value.String()
		}
	}

	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if cmd != nil {
		applyFlags(cmd, cfg)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Read loads defaults, then the YAML file at path if any, then the
// environment. It does not validate.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()

	if f := flags.Lookup("sites"); f != nil && f.Changed {
		cfg.SitesFile = f.Value.String()
	}
	if f := flags.Lookup("verbose"); f != nil && f.Value.String() == "true" {
		cfg.LogLevel = "debug"
	}
	if f := flags.Lookup("quiet"); f != nil && f.Value.String() == "true" {
		cfg.LogLevel = "error"
	}
	if f := flags.Lookup("json"); f != nil && f.Value.String() == "true" {
		cfg.JSONLog = true
	}
	if f := flags.Lookup("proxy"); f != nil && f.Value.String() != "" {
		cfg.Browser.Proxies = strings.Split(f.Value.String(), ",")
	}
	if n, err := flags.GetInt("max-contexts"); err == nil && n > 0 {
		cfg.Browser.MaxContexts = n
	}
	if f := flags.Lookup("headful"); f != nil && f.Value.String() == "true" {
		cfg.Browser.Headless = false
	}
	if f := flags.Lookup("diagnosis-sink"); f != nil && f.Value.String() != "" {
		cfg.Diagnosis.Sink = f.Value.String()
	}
	if f := flags.Lookup("forensics-dir"); f != nil && f.Value.String() != "" {
		cfg.Scrape.ForensicsDir = f.Value.String()
	}
	if f := flags.Lookup("captcha-solver"); f != nil && f.Value.String() != "" {
		cfg.Scrape.CaptchaSolver = f.Value.String()
	}
}
