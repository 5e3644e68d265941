package sites

import "time"

// Defaults applied to fields a site file leaves empty
const (
	DefaultContainerTimeout       = 10 * time.Second
	DefaultNavigationTimeout      = 45 * time.Second
	DefaultRenderDelay            = 2 * time.Second
	DefaultRenderIndicatorTimeout = 5 * time.Second
	DefaultCaptchaSettle          = 3 * time.Second
	DefaultScrollIterations       = 10
	DefaultScrollWait             = 1500 * time.Millisecond
	DefaultRateLimitRPS           = 0.5
	DefaultRateLimitBurst         = 2
	DefaultMinBodyLength          = 200
	DefaultMinContentLength       = 2000
	DefaultMinVisibleElements     = 40
)
