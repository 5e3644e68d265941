// internal/dom/waiter.go
package dom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// ErrNoContainer is returned when none of the container selectors became
// visible within their budgets
var ErrNoContainer = errors.New("no results container matched")

// DefaultBudget is used when no budgets are configured
const DefaultBudget = 10 * time.Second

// VisibleFunc blocks until selector is visible or ctx ends
type VisibleFunc func(ctx context.Context, selector string) error

// Waiter waits for the first visible selector of an ordered fallback list
type Waiter struct {
	Visible VisibleFunc
}

// NewWaiter returns a waiter backed by chromedp
func NewWaiter() *Waiter {
	return &Waiter{Visible: chromeVisible}
}

func chromeVisible(ctx context.Context, selector string) error {
	return chromedp.Run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Wait tries each selector in order. Selector i gets budgets[i], or the
// last budget when the list is shorter than the selectors. It returns the
// first selector that became visible. Only an expired budget counts as a
// miss; any other error ends the wait.
func (w *Waiter) Wait(ctx context.Context, selectors []string, budgets []time.Duration) (string, error) {
	if len(selectors) == 0 {
		return "", ErrNoContainer
	}

	for i, sel := range selectors {
		budget := budgetFor(budgets, i)

		sctx, cancel := context.WithTimeout(ctx, budget)
		err := w.Visible(sctx, sel)
		expired := errors.Is(sctx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			log.Debug().Str("selector", sel).Int("index", i).Msg("Container visible")
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("container wait aborted: %w", ctx.Err())
		}
		if !expired && !errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("waiting for %s: %w", sel, err)
		}

		log.Debug().
			Str("selector", sel).
			Dur("budget", budget).
			Err(err).
			Msg("Container selector did not match, trying next")
	}

	return "", ErrNoContainer
}

func budgetFor(budgets []time.Duration, i int) time.Duration {
	if len(budgets) == 0 {
		return DefaultBudget
	}
	if i >= len(budgets) {
		i = len(budgets) - 1
	}
	if budgets[i] <= 0 {
		return DefaultBudget
	}
	return budgets[i]
}
