// internal/engine/navigate.go
package engine

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// Navigator loads a URL in the tab bound to ctx. HTTP error statuses are
// not errors here: the page diagnosis decides what they mean.
type Navigator interface {
	Navigate(ctx context.Context, url string) (finalURL string, status int, err error)
}

// ChromeNavigator navigates with chromedp and reports the main response
type ChromeNavigator struct{}

// Navigate implements Navigator
func (ChromeNavigator) Navigate(ctx context.Context, url string) (string, int, error) {
	resp, err := chromedp.RunResponse(ctx, chromedp.Navigate(url))
	if err != nil {
		return "", 0, fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	status := 0
	if resp != nil {
		status = int(resp.Status)
	}

	var final string
	if err := chromedp.Run(ctx, chromedp.Location(&final)); err != nil {
		return "", status, fmt.Errorf("failed to read final URL: %w", err)
	}
	return final, status, nil
}
