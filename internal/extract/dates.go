// internal/extract/dates.go
package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodsign/monday"
)

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate reads a publication date. Machine formats (RFC 3339, ISO dates,
// unix seconds or milliseconds) are tried first, then the site layout in the
// site locale. A missing timezone falls back to UTC.
func ParseDate(value, layout, locale, timezone string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		loc = l
	}

	for _, l := range isoLayouts {
		if t, err := time.ParseInLocation(l, value, loc); err == nil {
			return t, nil
		}
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).In(loc), nil
		}
		return time.Unix(n, 0).In(loc), nil
	}

	if layout == "" {
		return time.Time{}, fmt.Errorf("unrecognized date %q", value)
	}

	mLocale := "en_US"
	if locale != "" {
		mLocale = locale
	}
	t, err := monday.ParseInLocation(layout, value, loc, monday.Locale(mLocale))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", value, err)
	}
	return t, nil
}
