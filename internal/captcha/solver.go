// internal/captcha/solver.go
package captcha

import (
	"context"
	"errors"
)

// ErrDisabled is reported by the disabled solver
var ErrDisabled = errors.New("captcha solving disabled")

// Result is the pass/fail outcome of one solving attempt
type Result struct {
	Success bool
	Err     error
}

// Solver attempts to clear a CAPTCHA on the page bound to ctx. Provider
// internals live behind this contract.
type Solver interface {
	Enabled() bool
	AutoSolve(ctx context.Context) Result
}

// Disabled never solves anything
type Disabled struct{}

// Enabled reports false
func (Disabled) Enabled() bool { return false }

// AutoSolve always fails
func (Disabled) AutoSolve(ctx context.Context) Result {
	return Result{Err: ErrDisabled}
}

// Func adapts a function to the Solver interface
type Func func(ctx context.Context) Result

// Enabled reports true when a function is set
func (f Func) Enabled() bool { return f != nil }

// AutoSolve calls f
func (f Func) AutoSolve(ctx context.Context) Result {
	if f == nil {
		return Result{Err: ErrDisabled}
	}
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}
	return f(ctx)
}
