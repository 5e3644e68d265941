package config

import "time"

// Default constants for application configuration
const (
	DefaultSitesFile       = "sites.yaml"
	DefaultLogLevel        = "info"
	DefaultJSONLog         = false
	DefaultHeadless        = true
	DefaultMaxContexts     = 3
	DefaultMaxContextsCap  = 32
	DefaultProxyCooldown   = 2 * time.Minute
	DefaultDiagnosisSink   = "log"
	DefaultRateLimitRPS    = 0.5
	DefaultRateLimitBurst  = 1
	DefaultMaxQueueWait    = 2 * time.Minute
	DefaultRetryAttempts   = 3
	DefaultCrashRecoveries = 2
	DefaultForensicsDir    = "./forensics"
	DefaultCaptchaSolver   = "none"
	DefaultCaptchaWait     = 2 * time.Minute
	DefaultSessionFailures = 3
	DefaultSessionBackoff  = 5 * time.Minute
	DefaultServerAddr      = "127.0.0.1:8080"
	DefaultScrapeTimeout   = 3 * time.Minute
	DefaultShutdownGrace   = 15 * time.Second
	DefaultStartupTimeout  = 45 * time.Second
)

// Defaults returns a Config holding every default value
func Defaults() Config {
	return Config{
		SitesFile: DefaultSitesFile,
		LogLevel:  DefaultLogLevel,
		JSONLog:   DefaultJSONLog,
		Browser: BrowserConfig{
			Headless:       DefaultHeadless,
			MaxContexts:    DefaultMaxContexts,
			ProxyCooldown:  DefaultProxyCooldown,
			StartupTimeout: DefaultStartupTimeout,
		},
		RateLimit: RateLimitConfig{
			RPS:          DefaultRateLimitRPS,
			Burst:        DefaultRateLimitBurst,
			MaxQueueWait: DefaultMaxQueueWait,
		},
		Scrape: ScrapeConfig{
			RetryAttempts:   DefaultRetryAttempts,
			CrashRecoveries: DefaultCrashRecoveries,
			ForensicsDir:    DefaultForensicsDir,
			CaptchaSolver:   DefaultCaptchaSolver,
			CaptchaWait:     DefaultCaptchaWait,
		},
		Sessions: SessionConfig{
			MaxFailures: DefaultSessionFailures,
			BaseBackoff: DefaultSessionBackoff,
		},
		Diagnosis: DiagnosisConfig{
			Sink: DefaultDiagnosisSink,
		},
		Server: ServerConfig{
			Addr:          DefaultServerAddr,
			ScrapeTimeout: DefaultScrapeTimeout,
			ShutdownGrace: DefaultShutdownGrace,
		},
	}
}
