package csm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/openflexure/camstage/stage"
	"github.com/openflexure/camstage/tracker"
)

// Default calibration parameters; overridable per AxisCalibrator.
const (
	DefaultStepSize = 100
	DefaultRepeats  = 8
)

// CalibrationState is the phase an axis calibration is in.  It exists so
// long-running calibrations can report progress.
type CalibrationState int

const (
	StateIdle CalibrationState = iota
	StateMovingPositive
	StateMeasuring
	StateMovingNegative
	StateDone
	StateFailed
)

func (s CalibrationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMovingPositive:
		return "moving positive"
	case StateMeasuring:
		return "measuring"
	case StateMovingNegative:
		return "moving negative"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("CalibrationState(%d)", int(s))
}

// DirectionFit is the linear fit of pixel displacement against steps
// traveled for one direction of travel along one axis.
type DirectionFit struct {
	// PixelsPerStep is the fitted slope per image axis.
	PixelsPerStep [2]float64 `json:"pixels_per_step"`

	// Residual is the RMS fit residual per image axis, in pixels.  It is
	// surfaced for callers to judge fit quality; no pass/fail threshold
	// is applied.
	Residual [2]float64 `json:"residual"`
}

// AxisCalibration is the immutable result of calibrating one stage axis
// against the camera.  Forward and Reverse capture backlash-induced
// asymmetry between the two directions of travel.
type AxisCalibration struct {
	Direction stage.Displacement `json:"direction"`
	StepSize  int                `json:"step_size"`
	Forward   DirectionFit       `json:"forward"`
	Reverse   DirectionFit       `json:"reverse"`

	// History is the raw move trajectory from the run, kept for duration
	// diagnostics.  It is not persisted.
	History MoveHistory `json:"-"`
}

// MeanPixelsPerStep averages the forward and reverse slopes per image axis.
func (a AxisCalibration) MeanPixelsPerStep() [2]float64 {
	return [2]float64{
		(a.Forward.PixelsPerStep[0] + a.Reverse.PixelsPerStep[0]) / 2,
		(a.Forward.PixelsPerStep[1] + a.Reverse.PixelsPerStep[1]) / 2,
	}
}

// AxisCalibrator drives one stage axis back and forth, measures the
// resulting pixel displacement through the tracker, and fits the
// step-to-pixel relationship separately per direction of travel.
type AxisCalibrator struct {
	// Tracker measures pixel displacements.  Its template is acquired at
	// the start of the run.
	Tracker *tracker.Tracker

	// Move issues absolute stage moves.  It is wrapped in a LoggingMove
	// for the duration of the run.
	Move MoveFunc

	// GetPosition reads the current stage position.
	GetPosition func() (stage.Position, error)

	// Settle is called after each move, before measuring.
	Settle func()

	// Direction is the signed unit axis to calibrate, e.g. {1, 0, 0}.
	Direction stage.Displacement

	// StepSize is the size of each relative move in steps; defaults to
	// DefaultStepSize.
	StepSize int

	// Repeats is the number of moves per direction; defaults to
	// DefaultRepeats.
	Repeats int

	state CalibrationState
}

// State reports the calibrator's current phase.
func (c *AxisCalibrator) State() CalibrationState {
	return c.state
}

// Run performs the calibration.  The stage finishes where it started: the
// negative phase retraces the positive phase's moves.  A fit is returned
// even when the response is noisy or non-monotonic; callers should judge
// the coefficients by the surfaced residuals.
func (c *AxisCalibrator) Run() (AxisCalibration, error) {
	step := c.StepSize
	if step <= 0 {
		step = DefaultStepSize
	}
	// a slope needs at least two samples per direction
	repeats := c.Repeats
	if repeats < 2 {
		repeats = DefaultRepeats
	}
	settle := c.Settle
	if settle == nil {
		settle = func() {}
	}

	cal := AxisCalibration{Direction: c.Direction, StepSize: step}
	fail := func(err error) (AxisCalibration, error) {
		c.state = StateFailed
		return cal, err
	}

	if err := c.Tracker.AcquireTemplate(); err != nil {
		return fail(err)
	}
	start, err := c.GetPosition()
	if err != nil {
		return fail(err)
	}
	lm := NewLoggingMove(c.Move)
	lm.Seed(start)

	// the template is the zero point for both directions
	steps := []float64{0}
	disps := []tracker.PixelDisplacement{{}}

	measure := func(cumulative int) error {
		c.state = StateMeasuring
		settle()
		d, err := c.Tracker.Measure()
		if err != nil {
			return err
		}
		steps = append(steps, float64(cumulative))
		disps = append(disps, d)
		return nil
	}

	c.state = StateMovingPositive
	for i := 1; i <= repeats; i++ {
		if err := lm.Move(start.Add(c.Direction.Scale(i * step))); err != nil {
			return fail(err)
		}
		if err := measure(i * step); err != nil {
			return fail(err)
		}
		c.state = StateMovingPositive
	}
	cal.Forward = fitDirection(steps, disps)

	steps = steps[:0]
	disps = disps[:0]
	c.state = StateMovingNegative
	for i := repeats - 1; i >= 0; i-- {
		if err := lm.Move(start.Add(c.Direction.Scale(i * step))); err != nil {
			return fail(err)
		}
		if err := measure(i * step); err != nil {
			return fail(err)
		}
		c.state = StateMovingNegative
	}
	cal.Reverse = fitDirection(steps, disps)

	cal.History = lm.History()
	c.state = StateDone
	return cal, nil
}

// fitDirection fits pixel displacement against cumulative steps with a
// degree-1 least squares polynomial, per image axis.
func fitDirection(steps []float64, disps []tracker.PixelDisplacement) DirectionFit {
	xs := make([]float64, len(disps))
	ys := make([]float64, len(disps))
	for i, d := range disps {
		xs[i] = d.X
		ys[i] = d.Y
	}
	var fit DirectionFit
	fit.PixelsPerStep[0], fit.Residual[0] = fitLine(steps, xs)
	fit.PixelsPerStep[1], fit.Residual[1] = fitLine(steps, ys)
	return fit
}

func fitLine(x, y []float64) (slope, rmsResidual float64) {
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	var sum float64
	for i := range x {
		r := y[i] - (alpha + beta*x[i])
		sum += r * r
	}
	return beta, math.Sqrt(sum / float64(len(x)))
}
