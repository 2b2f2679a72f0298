package csm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflexure/camstage/sim"
	"github.com/openflexure/camstage/stage"
	"github.com/openflexure/camstage/tracker"
)

// pixelMover returns a MoveInPixelsFunc for a stage whose optics move the
// image by px pixels per step on each axis, counting invocations.
func pixelMover(stg *sim.Stage, px float64, calls *int) MoveInPixelsFunc {
	return func(dx, dy float64) error {
		*calls++
		return stg.MoveRelative(stage.Displacement{
			int(math.Round(dx / px)),
			int(math.Round(dy / px)),
			0,
		})
	}
}

func TestClosedLoopMoveConverges(t *testing.T) {
	stg, cam := simRig([2][2]float64{{2, 0}, {0, 2}}, 0)
	tk := tracker.New(cam)
	require.NoError(t, tk.AcquireTemplate())

	calls := 0
	target := tracker.PixelDisplacement{X: 10, Y: -6}
	achieved, err := ClosedLoopMove(tk, pixelMover(stg, 2, &calls), nil, target, MoveOptions{})
	require.NoError(t, err)

	assert.LessOrEqual(t, target.Sub(achieved).Norm(), DefaultTolerance)
	// a well calibrated move lands within tolerance almost immediately
	assert.LessOrEqual(t, calls, 2)
}

func TestClosedLoopMoveCorrectsBacklash(t *testing.T) {
	stg, cam := simRig([2][2]float64{{2, 0}, {0, 2}}, 3)
	tk := tracker.New(cam)
	require.NoError(t, tk.AcquireTemplate())

	// the backlashed axis undershoots at first; feedback makes it up
	calls := 0
	target := tracker.PixelDisplacement{X: 14, Y: 0}
	achieved, err := ClosedLoopMove(tk, pixelMover(stg, 2, &calls), nil, target, MoveOptions{})
	require.NoError(t, err)
	assert.LessOrEqual(t, target.Sub(achieved).Norm(), DefaultTolerance)
	assert.Greater(t, calls, 1)
}

func TestClosedLoopMoveExhaustsIterations(t *testing.T) {
	_, cam := simRig([2][2]float64{{2, 0}, {0, 2}}, 0)
	tk := tracker.New(cam)
	require.NoError(t, tk.AcquireTemplate())

	// a move function that does nothing never converges; the budget runs
	// out and the shortfall is reported through the achieved displacement
	calls := 0
	noop := func(dx, dy float64) error { calls++; return nil }
	target := tracker.PixelDisplacement{X: 10}
	achieved, err := ClosedLoopMove(tk, noop, nil, target, MoveOptions{MaxIterations: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.InDelta(t, 0, achieved.X, 0.5)
	assert.Greater(t, target.Sub(achieved).Norm(), DefaultTolerance)
}

func TestClosedLoopMovePropagatesMoveError(t *testing.T) {
	_, cam := simRig([2][2]float64{{2, 0}, {0, 2}}, 0)
	tk := tracker.New(cam)
	require.NoError(t, tk.AcquireTemplate())

	boom := &stage.Fault{Op: "move relative", Err: errors.New("limit switch")}
	move := func(dx, dy float64) error { return boom }
	_, err := ClosedLoopMove(tk, move, nil, tracker.PixelDisplacement{X: 5}, MoveOptions{})
	var fault *stage.Fault
	require.ErrorAs(t, err, &fault)
}

func TestClosedLoopMovePropagatesMeasureError(t *testing.T) {
	stg, cam := simRig([2][2]float64{{2, 0}, {0, 2}}, 0)
	tk := tracker.New(cam)
	require.NoError(t, tk.AcquireTemplate())
	cam.Fail = errors.New("sensor timeout")

	// the opening measurement fails, so no move is ever issued
	calls := 0
	_, err := ClosedLoopMove(tk, pixelMover(stg, 2, &calls), nil, tracker.PixelDisplacement{X: 5}, MoveOptions{})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestClosedLoopMoveAlreadyOnTarget(t *testing.T) {
	stg, cam := simRig([2][2]float64{{2, 0}, {0, 2}}, 0)
	tk := tracker.New(cam)
	require.NoError(t, tk.AcquireTemplate())

	// within tolerance from the start; the loop measures and stops
	calls := 0
	achieved, err := ClosedLoopMove(tk, pixelMover(stg, 2, &calls), nil, tracker.PixelDisplacement{}, MoveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.LessOrEqual(t, achieved.Norm(), DefaultTolerance)
}

func TestMoveOptionsDefaults(t *testing.T) {
	o := MoveOptions{}.withDefaults()
	assert.Equal(t, DefaultTolerance, o.Tolerance)
	assert.Equal(t, DefaultMaxIterations, o.MaxIterations)

	o = MoveOptions{Tolerance: 0.25, MaxIterations: 3}.withDefaults()
	assert.Equal(t, 0.25, o.Tolerance)
	assert.Equal(t, 3, o.MaxIterations)
}
