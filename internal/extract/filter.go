// internal/extract/filter.go
package extract

import (
	"strings"
	"unicode"

	"github.com/law-makers/marketwatch/pkg/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Skip reasons reported in ExtractionMetrics.SkipReasons
const (
	SkipMissingID        = "missing_id"
	SkipMissingTitle     = "missing_title"
	SkipMissingURL       = "missing_url"
	SkipPriceBelowMin    = "price_below_min"
	SkipPriceAboveMax    = "price_above_max"
	SkipLocationMismatch = "location_mismatch"
	SkipKeywordMismatch  = "keyword_mismatch"
	SkipDuplicate        = "duplicate"
)

// Filters are the monitor criteria applied to every parsed listing
type Filters struct {
	MinPrice  *float64
	MaxPrice  *float64
	Locations []string
	Keywords  []string
}

// FiltersFor returns the filters of a monitor
func FiltersFor(m models.Monitor) Filters {
	return Filters{
		MinPrice:  m.MinPrice,
		MaxPrice:  m.MaxPrice,
		Locations: m.Locations,
		Keywords:  m.Keywords,
	}
}

// check returns the reason an ad is rejected, or "" when it passes.
// Listings without a readable price are kept even when bounds are set.
func (f Filters) check(ad models.ScrapedAd) string {
	switch {
	case ad.ExternalID == "":
		return SkipMissingID
	case ad.Title == "":
		return SkipMissingTitle
	case ad.URL == "":
		return SkipMissingURL
	}

	if ad.Price != nil {
		if f.MinPrice != nil && *ad.Price < *f.MinPrice {
			return SkipPriceBelowMin
		}
		if f.MaxPrice != nil && *ad.Price > *f.MaxPrice {
			return SkipPriceAboveMax
		}
	}

	if len(f.Locations) > 0 && !containsAny(ad.Location, f.Locations) {
		return SkipLocationMismatch
	}

	if len(f.Keywords) > 0 && !containsAny(ad.Title+" "+ad.Description, f.Keywords) {
		return SkipKeywordMismatch
	}

	return ""
}

func containsAny(haystack string, needles []string) bool {
	h := fold(haystack)
	for _, n := range needles {
		n = fold(n)
		if n != "" && strings.Contains(h, n) {
			return true
		}
	}
	return false
}

// fold lowercases and strips diacritics so "Île-de-France" matches
// "ile-de-france"
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
