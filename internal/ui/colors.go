package ui

import "github.com/law-makers/marketwatch/pkg/models"

// ANSI color and style constants for CLI output
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorDim   = "\033[2m"

	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[97m"
	ColorRed    = "\033[31m"
)

func Bold(s string) string {
	return ColorBold + s + ColorReset
}

func Success(s string) string {
	return ColorGreen + s + ColorReset
}

func Warn(s string) string {
	return ColorYellow + s + ColorReset
}

func Error(s string) string {
	return ColorRed + s + ColorReset
}

// PageType colors a page type by the outcome it stands for
func PageType(pt models.PageType) string {
	switch pt {
	case models.PageContent:
		return Success(string(pt))
	case models.PageNoResults, models.PageEmpty:
		return Warn(string(pt))
	default:
		return Error(string(pt))
	}
}
