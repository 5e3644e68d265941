// internal/extract/price.go
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var numberRun = regexp.MustCompile(`\d[\d\s.,\x{00a0}\x{202f}']*`)

// ParsePrice reads the first number of a display price. Grouping and
// decimal separators are inferred: "1 234,56 €", "$1,234.56" and "1.234 kr"
// are all understood. It returns false when no number is present.
func ParsePrice(raw string) (float64, bool) {
	run := numberRun.FindString(raw)
	if run == "" {
		return 0, false
	}

	var b strings.Builder
	for _, r := range run {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		}
	}
	num := strings.TrimRight(b.String(), ".,")

	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// the separator seen last is the decimal one
		if lastComma > lastDot {
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case lastComma >= 0:
		num = normalizeSingle(num, ",")
	case lastDot >= 0:
		num = normalizeSingle(num, ".")
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalizeSingle handles numbers using a single kind of separator. A
// repeated separator or exactly three trailing digits means grouping.
func normalizeSingle(num, sep string) string {
	if strings.Count(num, sep) > 1 {
		return strings.ReplaceAll(num, sep, "")
	}
	idx := strings.Index(num, sep)
	if len(num)-idx-1 == 3 {
		return strings.ReplaceAll(num, sep, "")
	}
	return strings.Replace(num, sep, ".", 1)
}
