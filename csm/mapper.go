/*Package csm implements camera/stage mapping for an automated microscope.

The camera is treated as a positional encoder: 1D axis calibrations
correlate motor steps with pixel displacement, a 2x2 matrix combines two
of them into a full image/stage coordinate mapping, and closed-loop moves
and scans use visual feedback through that mapping to converge on targets
specified in pixels, despite stage backlash, settling time, and
measurement noise.
*/
package csm

import (
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/openflexure/camstage/camera"
	"github.com/openflexure/camstage/stage"
	"github.com/openflexure/camstage/tracker"
)

// DefaultSettleDelay is the dwell after each move before measuring,
// letting mechanical vibration die down.
const DefaultSettleDelay = 200 * time.Millisecond

// Mapper relates camera pixel coordinates to stage step coordinates and
// drives calibrated moves and scans.  It holds the stage lock for the full
// duration of each operation so interleaved moves cannot corrupt the
// pixel/stage correspondence.
type Mapper struct {
	Camera camera.Camera
	Stage  stage.Controller
	Store  *Store

	// SettleDelay overrides DefaultSettleDelay when positive.
	SettleDelay time.Duration

	// StepSize and Repeats configure axis calibrations; zero values use
	// the calibrator defaults.
	StepSize int
	Repeats  int

	// Options configure closed-loop moves.
	Options MoveOptions
}

// New returns a Mapper persisting calibrations through store.
func New(cam camera.Camera, stg stage.Controller, store *Store) *Mapper {
	return &Mapper{Camera: cam, Stage: stg, Store: store}
}

var errStillMoving = errors.New("stage still moving")

// settle dwells for the configured delay, then polls the stage position on
// an exponential backoff schedule until it stops changing.  Settling is
// best effort: poll errors end it early, and a stage that never reports a
// stable position stops being waited on once the schedule is exhausted.
func (m *Mapper) settle() {
	delay := m.SettleDelay
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	time.Sleep(delay)
	last, err := m.Stage.GetPosition()
	if err != nil {
		return
	}
	op := func() error {
		cur, err := m.Stage.GetPosition()
		if err != nil {
			return nil
		}
		if cur != last {
			last = cur
			return errStillMoving
		}
		return nil
	}
	backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     5 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         100 * time.Millisecond,
		MaxElapsedTime:      2 * time.Second,
		Clock:               backoff.SystemClock})
}

// CalibrateAxis calibrates one stage axis against the camera.  direction
// is a signed unit axis, e.g. {1, 0, 0} or {0, -1, 0}.
func (m *Mapper) CalibrateAxis(direction stage.Displacement) (AxisCalibration, error) {
	m.Stage.Lock()
	defer m.Stage.Unlock()
	return m.calibrateAxis(direction)
}

func (m *Mapper) calibrateAxis(direction stage.Displacement) (AxisCalibration, error) {
	c := AxisCalibrator{
		Tracker:     tracker.New(m.Camera),
		Move:        m.Stage.MoveAbsolute,
		GetPosition: m.Stage.GetPosition,
		Settle:      m.settle,
		Direction:   direction,
		StepSize:    m.StepSize,
		Repeats:     m.Repeats,
	}
	return c.Run()
}

// CalibrateXY calibrates the stage's x and y axes against the camera,
// combines the fits into a full calibration, and persists it, replacing
// any prior record.
func (m *Mapper) CalibrateXY() (Calibration, error) {
	m.Stage.Lock()
	defer m.Stage.Unlock()

	log.Println("csm: calibrating x axis")
	calX, err := m.calibrateAxis(stage.AxisDisplacement(stage.X, 1))
	if err != nil {
		return Calibration{}, err
	}
	log.Println("csm: calibrating y axis")
	calY, err := m.calibrateAxis(stage.AxisDisplacement(stage.Y, 1))
	if err != nil {
		return Calibration{}, err
	}
	cal, err := Combine(calX, calY)
	if err != nil {
		return Calibration{}, err
	}
	if err := m.Store.Save(cal); err != nil {
		return Calibration{}, err
	}
	return cal, nil
}

// Calibration returns the persisted calibration record.  The error is a
// CalibrationError when nothing valid has been saved yet.
func (m *Mapper) Calibration() (Calibration, error) {
	return m.Store.Load()
}

// MoveByPixels moves the stage so the image shifts by (dx, dy) pixels,
// open loop, using only the stored calibration matrix.
func (m *Mapper) MoveByPixels(dx, dy float64) error {
	cal, err := m.Store.Load()
	if err != nil {
		return err
	}
	m.Stage.Lock()
	defer m.Stage.Unlock()
	return m.moveByPixels(cal)(dx, dy)
}

// moveByPixels returns the open-loop pixel move bound to cal.  The caller
// holds the stage lock.
func (m *Mapper) moveByPixels(cal Calibration) MoveInPixelsFunc {
	return func(dx, dy float64) error {
		d := cal.PixelsToSteps(tracker.PixelDisplacement{X: dx, Y: dy})
		return m.Stage.MoveRelative(d)
	}
}

// ClosedLoopMoveByPixels moves the stage so the image shifts by (dx, dy)
// pixels, iteratively correcting with visual feedback.  The achieved
// displacement is returned; see ClosedLoopMove for the convergence
// contract.
func (m *Mapper) ClosedLoopMoveByPixels(dx, dy float64) (tracker.PixelDisplacement, error) {
	cal, err := m.Store.Load()
	if err != nil {
		return tracker.PixelDisplacement{}, err
	}
	m.Stage.Lock()
	defer m.Stage.Unlock()
	tk := tracker.New(m.Camera)
	if err := tk.AcquireTemplate(); err != nil {
		return tracker.PixelDisplacement{}, err
	}
	return ClosedLoopMove(tk, m.moveByPixels(cal), m.settle, tracker.PixelDisplacement{X: dx, Y: dy}, m.Options)
}

// ClosedLoopScan performs closed-loop moves to each point in path, in
// pixels relative to the current position, calling each per point.  On an
// internal fault the stage is returned to its pre-scan position before the
// error is returned.
func (m *Mapper) ClosedLoopScan(path []tracker.PixelDisplacement, each func(ScanPoint) bool) error {
	cal, err := m.Store.Load()
	if err != nil {
		return err
	}
	m.Stage.Lock()
	defer m.Stage.Unlock()
	tk := tracker.New(m.Camera)
	return ClosedLoopScan(tk, m.moveByPixels(cal), m.Stage.MoveAbsolute, m.Stage.GetPosition, m.settle, path, m.Options, each)
}
