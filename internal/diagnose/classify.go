package diagnose

import (
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/pkg/models"
)

// Classify maps signals to a page type. The first matching rule wins:
// checkpoint and login outrank captcha and WAF signals because those often
// co-occur on account-gated pages.
func Classify(sig models.Signals, finalURL string, site *sites.SiteConfig) models.PageType {
	switch {
	case sig.HasCheckpointText:
		return models.PageCheckpoint
	case sig.HasLoginText || (sig.HasLoginForm && site.IsLoginPath(finalURL)):
		return models.PageLoginRequired
	case sig.HasCaptcha:
		return models.PageCaptcha
	case sig.HasWAF:
		return models.PageBlocked
	case sig.HasNoResultsText:
		return models.PageNoResults
	case sig.BodyLength < site.Diagnosis.MinBodyLength:
		return models.PageEmpty
	case sig.BodyLength >= site.Diagnosis.MinContentLength ||
		sig.VisibleElements >= site.Diagnosis.MinVisibleElements:
		return models.PageContent
	default:
		return models.PageUnknown
	}
}
