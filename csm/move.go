package csm

import (
	"github.com/openflexure/camstage/tracker"
)

// Default closed-loop move parameters.
const (
	DefaultTolerance     = 1.0 // pixels
	DefaultMaxIterations = 10
)

// MoveInPixelsFunc moves the stage such that the image shifts by
// (dx, dy) pixels, open loop, trusting the calibration alone.
type MoveInPixelsFunc func(dx, dy float64) error

// MoveOptions control closed-loop convergence.
type MoveOptions struct {
	// Tolerance is the residual magnitude, in pixels, below which the
	// move is considered converged.  Defaults to DefaultTolerance.
	Tolerance float64

	// MaxIterations caps the number of correction cycles.  Defaults to
	// DefaultMaxIterations.
	MaxIterations int
}

func (o MoveOptions) withDefaults() MoveOptions {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// ClosedLoopMove moves the stage so the image shifts by target pixels,
// measuring through tk before each move so every correction is relative to
// where the stage actually is, until the residual is within tolerance or
// the iteration budget is exhausted.
//
// tk must hold the reference template the target is relative to; callers
// acquire it before the first closed-loop move.  Because the loop opens
// with a measurement, the stage need not be at the template position:
// consecutive targets against one template, as in a scan, are reached by
// incremental moves.  Iterations are strictly sequential: each correction
// depends on the measured outcome of the one before it.
//
// Exhausting the iteration budget is not an error.  The returned
// displacement is the last achieved measurement, and its distance from
// target communicates the shortfall; callers decide whether to retry.
func ClosedLoopMove(tk *tracker.Tracker, move MoveInPixelsFunc, settle func(), target tracker.PixelDisplacement, opt MoveOptions) (tracker.PixelDisplacement, error) {
	opt = opt.withDefaults()
	if settle == nil {
		settle = func() {}
	}
	achieved, err := tk.Measure()
	if err != nil {
		return achieved, err
	}
	for i := 0; i < opt.MaxIterations; i++ {
		residual := target.Sub(achieved)
		if residual.Norm() <= opt.Tolerance {
			break
		}
		if err := move(residual.X, residual.Y); err != nil {
			return achieved, err
		}
		settle()
		achieved, err = tk.Measure()
		if err != nil {
			return achieved, err
		}
	}
	return achieved, nil
}
