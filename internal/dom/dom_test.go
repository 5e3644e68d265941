package dom

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type budgetCall struct {
	selector string
	budget   time.Duration
}

func recordingVisible(match string, calls *[]budgetCall) VisibleFunc {
	return func(ctx context.Context, selector string) error {
		deadline, _ := ctx.Deadline()
		*calls = append(*calls, budgetCall{selector, time.Until(deadline).Round(time.Second)})
		if selector == match {
			return nil
		}
		return context.DeadlineExceeded
	}
}

func TestWaiterFallsBackInOrder(t *testing.T) {
	var calls []budgetCall
	w := &Waiter{Visible: recordingVisible("#third", &calls)}

	sel, err := w.Wait(context.Background(), []string{"#first", "#second", "#third"}, []time.Duration{10 * time.Second, 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "#third", sel)

	require.Len(t, calls, 3)
	assert.Equal(t, budgetCall{"#first", 10 * time.Second}, calls[0])
	assert.Equal(t, budgetCall{"#second", 5 * time.Second}, calls[1])
	assert.Equal(t, budgetCall{"#third", 5 * time.Second}, calls[2], "selectors past the budget list reuse the last budget")
}

func TestWaiterStopsAtFirstMatch(t *testing.T) {
	var calls []budgetCall
	w := &Waiter{Visible: recordingVisible("#first", &calls)}

	sel, err := w.Wait(context.Background(), []string{"#first", "#second"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "#first", sel)
	assert.Len(t, calls, 1)
	assert.Equal(t, DefaultBudget, calls[0].budget)
}

func TestWaiterExhausted(t *testing.T) {
	var calls []budgetCall
	w := &Waiter{Visible: recordingVisible("", &calls)}

	_, err := w.Wait(context.Background(), []string{"#a", "#b"}, []time.Duration{time.Second})
	assert.ErrorIs(t, err, ErrNoContainer)
	assert.Len(t, calls, 2)

	_, err = w.Wait(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoContainer)
}

func TestWaiterParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Waiter{Visible: func(ctx context.Context, selector string) error {
		cancel()
		return ctx.Err()
	}}

	_, err := w.Wait(ctx, []string{"#a", "#b"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNoContainer)
}

func TestWaiterSurfacesBrowserErrors(t *testing.T) {
	disconnect := errors.New("websocket: close 1006 (abnormal closure)")
	calls := 0
	w := &Waiter{Visible: func(ctx context.Context, selector string) error {
		calls++
		return disconnect
	}}

	_, err := w.Wait(context.Background(), []string{"#a", "#b"}, []time.Duration{time.Second})
	assert.ErrorIs(t, err, disconnect)
	assert.NotErrorIs(t, err, ErrNoContainer)
	assert.Contains(t, err.Error(), "#a")
	assert.Equal(t, 1, calls)
}

// fakePage simulates a page whose measure grows per scroll step
type fakePage struct {
	sizes []float64
	pos   int
	steps int
}

func (p *fakePage) eval(ctx context.Context, expr string, res any) error {
	out := res.(*float64)
	if strings.Contains(expr, "window.scroll") {
		p.steps++
		if p.pos < len(p.sizes)-1 {
			p.pos++
		}
	}
	*out = p.sizes[p.pos]
	return nil
}

func TestScrollerStopsAfterStalls(t *testing.T) {
	page := &fakePage{sizes: []float64{10, 20, 30}}
	s := &Scroller{Eval: page.eval}

	n, err := s.Scroll(context.Background(), sites.ScrollConfig{Strategy: sites.ScrollInfinite, MaxIterations: 20}, ".ad")
	require.NoError(t, err)
	// two growing steps, then three stalls
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, page.steps)
}

func TestScrollerRespectsMaxIterations(t *testing.T) {
	sizes := make([]float64, 50)
	for i := range sizes {
		sizes[i] = float64(i * 100)
	}
	page := &fakePage{sizes: sizes}
	s := &Scroller{Eval: page.eval}

	n, err := s.Scroll(context.Background(), sites.ScrollConfig{Strategy: sites.ScrollWindow, MaxIterations: 4}, "")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestScrollerNone(t *testing.T) {
	s := &Scroller{Eval: func(context.Context, string, any) error {
		t.Fatal("eval must not be called")
		return nil
	}}
	n, err := s.Scroll(context.Background(), sites.ScrollConfig{Strategy: sites.ScrollNone}, ".ad")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScrollerEvalError(t *testing.T) {
	s := &Scroller{Eval: func(context.Context, string, any) error { return errors.New("target closed") }}
	_, err := s.Scroll(context.Background(), sites.ScrollConfig{Strategy: sites.ScrollWindow, MaxIterations: 3}, "")
	assert.Error(t, err)
}

func TestForensicsCapture(t *testing.T) {
	dir := t.TempDir()
	f := NewForensics(dir)
	f.Screenshot = func(ctx context.Context) ([]byte, error) { return []byte("png"), nil }
	f.now = func() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }

	path, err := f.Capture(context.Background(), "shop/fr", "container not found")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "shop_fr"), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "20260504T030201-container_not_found-"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestForensicsDisabled(t *testing.T) {
	f := NewForensics("")
	path, err := f.Capture(context.Background(), "shop", "empty")
	require.NoError(t, err)
	assert.Empty(t, path)

	var nilF *Forensics
	assert.False(t, nilF.Enabled())
}
