package captcha

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultManualWait is how long the manual solver leaves the page to a human
const DefaultManualWait = 2 * time.Minute

// Manual hands a visible browser to a human and reports success once the
// wait is over. The caller re-diagnoses the page to see if it worked.
type Manual struct {
	Wait time.Duration
}

// Enabled reports true
func (Manual) Enabled() bool { return true }

// AutoSolve waits for the human, or fails when ctx ends first
func (m Manual) AutoSolve(ctx context.Context) Result {
	wait := m.Wait
	if wait <= 0 {
		wait = DefaultManualWait
	}
	log.Warn().Dur("wait", wait).Msg("Captcha shown, solve it in the browser window")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case <-timer.C:
		return Result{Success: true}
	}
}

// New returns the solver named by a config value: "" or "none" disables
// solving and "manual" waits for a human
func New(name string, wait time.Duration) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return Disabled{}, nil
	case "manual":
		return Manual{Wait: wait}, nil
	default:
		return nil, fmt.Errorf("unknown captcha solver %q", name)
	}
}
