// Package autofocus moves the stage in Z and picks the position with the
// sharpest image.
package autofocus

import (
	"time"

	"github.com/openflexure/camstage/camera"
	"github.com/openflexure/camstage/stage"
	"github.com/openflexure/camstage/util"
)

// DefaultSettle is the pause after each Z move before measuring.
const DefaultSettle = 500 * time.Millisecond

// DefaultBacklash is the Z backlash compensation applied during an
// autofocus, so the focal position is always approached from the same
// direction.
const DefaultBacklash = 256

// Sharpness returns a focus metric for a frame: the mean fourth power of
// its Laplacian.  The fourth power heavily weights the strong edges that
// appear when the image is in focus, so the metric peaks sharply at the
// focal plane.
func Sharpness(f camera.Frame) float64 {
	if f.Width < 3 || f.Height < 3 {
		return 0
	}
	var sum float64
	n := 0
	for y := 1; y < f.Height-1; y++ {
		for x := 1; x < f.Width-1; x++ {
			lap := f.At(x-1, y) + f.At(x+1, y) + f.At(x, y-1) + f.At(x, y+1) - 4*f.At(x, y)
			l2 := lap * lap
			sum += l2 * l2
			n++
		}
	}
	return sum / float64(n)
}

// Routine is a simple step-and-measure autofocus: the stage visits a list
// of relative Z offsets, an image is captured and scored at each, and the
// stage returns to the offset that scored highest.  No interpolation is
// performed.
type Routine struct {
	Camera camera.Camera
	Stage  stage.Controller

	// BacklashZ is the Z backlash compensation in steps; zero uses
	// DefaultBacklash, negative disables compensation.
	BacklashZ int

	// Settle overrides DefaultSettle when positive.
	Settle time.Duration

	// Metric overrides Sharpness when non-nil.
	Metric func(camera.Frame) float64
}

// DefaultOffsets returns the standard Z sweep used when the caller does
// not supply one.
func DefaultOffsets() []int {
	return util.Linspace(-300, 300, 7)
}

// Run scans the relative Z offsets in dz (ascending; defaults to
// DefaultOffsets when empty), and finishes at the sharpest one.  The
// visited absolute Z positions and their scores are returned.  The stage
// lock is held for the whole routine.
func (r *Routine) Run(dz []int) (positions []int, scores []float64, err error) {
	if len(dz) == 0 {
		dz = DefaultOffsets()
	}
	settle := r.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	metric := r.Metric
	if metric == nil {
		metric = Sharpness
	}
	backlash := r.BacklashZ
	if backlash == 0 {
		backlash = DefaultBacklash
	}
	if backlash < 0 {
		backlash = 0
	}

	r.Stage.Lock()
	defer r.Stage.Unlock()

	comp := stage.Compensator{
		Controller: r.Stage,
		Backlash:   stage.AxisDisplacement(stage.Z, backlash),
	}
	start, err := r.Stage.GetPosition()
	if err != nil {
		return nil, nil, err
	}

	for _, offset := range dz {
		target := start.Add(stage.AxisDisplacement(stage.Z, offset))
		if err := comp.MoveAbsolute(target); err != nil {
			return positions, scores, err
		}
		time.Sleep(settle)
		f, err := r.Camera.Capture()
		if err != nil {
			return positions, scores, err
		}
		positions = append(positions, target[stage.Z])
		scores = append(scores, metric(f))
	}

	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	target := start
	target[stage.Z] = positions[best]
	if err := comp.MoveAbsolute(target); err != nil {
		return positions, scores, err
	}
	return positions, scores, nil
}
