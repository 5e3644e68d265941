// internal/extract/parse.go
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/marketwatch/internal/sites"
	urlutil "github.com/law-makers/marketwatch/internal/utils/url"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog/log"
)

// Result is the outcome of parsing one results page
type Result struct {
	Ads     []models.ScrapedAd
	Raw     int
	Skipped map[string]int
}

// item is one listing candidate, backed by a DOM node or a JSON node
type item interface {
	value(f sites.Field, defaultAttr string) string
	description(f sites.Field) string
}

// ParseAds maps a results page to listings using the site's extraction
// rules, then applies the monitor filters. Relative links are resolved
// against baseURL.
func ParseAds(document, baseURL string, site *sites.SiteConfig, f Filters) (Result, error) {
	var (
		items []item
		err   error
	)

	switch site.Extraction.Strategy {
	case sites.StrategyEmbeddedState:
		items, err = stateItems(document, site.Extraction.State)
	case sites.StrategyDOM, "":
		items, err = domItems(document, site.Extraction.Item)
	default:
		err = fmt.Errorf("unknown extraction strategy %q", site.Extraction.Strategy)
	}
	if err != nil {
		return Result{Skipped: map[string]int{}}, err
	}

	return collect(items, baseURL, site, f), nil
}

func collect(items []item, baseURL string, site *sites.SiteConfig, f Filters) Result {
	res := Result{Skipped: map[string]int{}}
	seen := make(map[string]struct{}, len(items))

	for _, it := range items {
		res.Raw++
		ad := buildAd(it, baseURL, site)

		if reason := f.check(ad); reason != "" {
			res.Skipped[reason]++
			continue
		}
		if _, dup := seen[ad.ExternalID]; dup {
			res.Skipped[SkipDuplicate]++
			continue
		}
		seen[ad.ExternalID] = struct{}{}
		res.Ads = append(res.Ads, ad)
	}

	return res
}

func buildAd(it item, baseURL string, site *sites.SiteConfig) models.ScrapedAd {
	fields := site.Extraction.Fields

	ad := models.ScrapedAd{
		Title:    collapseSpace(fields.Title.Apply(it.value(fields.Title, ""))),
		Location: collapseSpace(fields.Location.Apply(it.value(fields.Location, ""))),
		Currency: site.Currency,
	}

	if href := fields.URL.Apply(it.value(fields.URL, "href")); href != "" {
		ad.URL = urlutil.StripTracking(urlutil.ResolveURL(baseURL, href))
	}
	if src := fields.Image.Apply(it.value(fields.Image, "src")); src != "" {
		ad.ImageURL = urlutil.ResolveURL(baseURL, src)
	}

	// without an id rule the canonical URL identifies the listing
	if fields.ID.IsZero() {
		ad.ExternalID = ad.URL
	} else {
		ad.ExternalID = fields.ID.Apply(it.value(fields.ID, ""))
	}

	if raw := fields.Price.Apply(it.value(fields.Price, "")); raw != "" {
		if p, ok := ParsePrice(raw); ok {
			ad.Price = &p
		}
	}

	ad.Description = fields.Description.Apply(it.description(fields.Description))

	if raw := fields.Published.Apply(it.value(fields.Published, "")); raw != "" {
		t, err := ParseDate(raw, site.Extraction.DateLayout, site.Locale, site.Timezone)
		if err != nil {
			log.Debug().Str("site", site.ID).Str("value", raw).Err(err).Msg("Unparsed publication date")
		} else {
			ad.PublishedAt = &t
		}
	}

	return ad
}

type domItem struct {
	sel *goquery.Selection
}

func domItems(document, itemSelector string) ([]item, error) {
	if itemSelector == "" {
		return nil, fmt.Errorf("item selector is required")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results HTML: %w", err)
	}

	var items []item
	doc.Find(itemSelector).Each(func(i int, s *goquery.Selection) {
		items = append(items, domItem{sel: s})
	})
	return items, nil
}

func (d domItem) value(f sites.Field, defaultAttr string) string {
	if f.IsZero() && defaultAttr == "" {
		return ""
	}

	sel := d.sel
	if f.Selector != "" {
		sel = sel.Find(f.Selector).First()
	}
	if sel.Length() == 0 {
		return ""
	}

	attr := f.Attr
	if attr == "" {
		attr = defaultAttr
	}
	if attr != "" {
		return strings.TrimSpace(sel.AttrOr(attr, ""))
	}
	return collapseSpace(sel.Text())
}

func (d domItem) description(f sites.Field) string {
	if f.IsZero() {
		return ""
	}
	if f.Attr != "" {
		return d.value(f, "")
	}

	sel := d.sel
	if f.Selector != "" {
		sel = sel.Find(f.Selector).First()
	}
	if sel.Length() == 0 {
		return ""
	}

	inner, err := sel.Html()
	if err != nil {
		return collapseSpace(sel.Text())
	}
	return Markdown(inner)
}
