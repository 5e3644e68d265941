// internal/dom/scroller.go
package dom

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/rs/zerolog/log"
)

// maxStalls is the number of consecutive scrolls without growth after
// which scrolling stops
const maxStalls = 3

// EvalFunc evaluates a JS expression in the page and decodes its result
type EvalFunc func(ctx context.Context, expr string, res any) error

// Scroller triggers lazy-loaded content
type Scroller struct {
	Eval EvalFunc
}

// NewScroller returns a scroller backed by chromedp
func NewScroller() *Scroller {
	return &Scroller{Eval: func(ctx context.Context, expr string, res any) error {
		return chromedp.Run(ctx, chromedp.Evaluate(expr, res))
	}}
}

// Scroll runs the configured strategy and returns the number of scroll
// iterations performed. Growth is measured by item count when itemSelector
// is set and by document height otherwise.
func (s *Scroller) Scroll(ctx context.Context, cfg sites.ScrollConfig, itemSelector string) (int, error) {
	var step string
	switch cfg.Strategy {
	case sites.ScrollNone, "":
		return 0, nil
	case sites.ScrollWindow:
		step = `window.scrollBy(0, window.innerHeight)`
	case sites.ScrollInfinite:
		step = `window.scrollTo(0, document.documentElement.scrollHeight)`
	default:
		return 0, fmt.Errorf("unknown scroll strategy %q", cfg.Strategy)
	}

	measure := `document.documentElement.scrollHeight`
	if itemSelector != "" {
		measure = `document.querySelectorAll(` + strconv.Quote(itemSelector) + `).length`
	}
	expr := `(() => { ` + step + `; return ` + measure + `; })()`

	var last float64
	if err := s.Eval(ctx, measure, &last); err != nil {
		return 0, fmt.Errorf("failed to measure page: %w", err)
	}

	iterations, stalls := 0, 0
	for iterations < cfg.MaxIterations && stalls < maxStalls {
		var ignored float64
		if err := s.Eval(ctx, expr, &ignored); err != nil {
			return iterations, fmt.Errorf("scroll step %d failed: %w", iterations+1, err)
		}
		iterations++

		if err := sleep(ctx, cfg.Wait); err != nil {
			return iterations, err
		}

		var current float64
		if err := s.Eval(ctx, measure, &current); err != nil {
			return iterations, fmt.Errorf("failed to measure page: %w", err)
		}
		if current > last {
			stalls = 0
			last = current
		} else {
			stalls++
		}
	}

	log.Debug().
		Str("strategy", string(cfg.Strategy)).
		Int("iterations", iterations).
		Float64("size", last).
		Msg("Scrolling finished")

	return iterations, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
