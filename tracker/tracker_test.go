package tracker

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflexure/camstage/camera"
	"github.com/openflexure/camstage/sim"
)

// render samples the specimen into a frame shifted so that
// frame(x, y) = specimen(x - offX, y - offY), i.e. content displaced by
// (offX, offY) pixels relative to the unshifted view.
func render(sp *sim.Specimen, w, h int, offX, offY float64) camera.Frame {
	f := camera.NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, sp.At(float64(x)-offX, float64(y)-offY))
		}
	}
	return f
}

func TestMeasureZeroDisplacement(t *testing.T) {
	sp := sim.NewSpecimen(42)
	tk := New(nil)
	require.NoError(t, tk.SetTemplate(render(sp, 128, 96, 0, 0)))

	d, err := tk.MeasureDisplacement(render(sp, 128, 96, 0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0, d.X, 1e-6)
	assert.InDelta(t, 0, d.Y, 1e-6)
}

func TestMeasureKnownShift(t *testing.T) {
	sp := sim.NewSpecimen(42)
	tk := New(nil)
	require.NoError(t, tk.SetTemplate(render(sp, 128, 96, 0, 0)))

	d, err := tk.MeasureDisplacement(render(sp, 128, 96, 5, -3))
	require.NoError(t, err)
	assert.InDelta(t, 5, d.X, 0.5)
	assert.InDelta(t, -3, d.Y, 0.5)
}

func TestMeasureSubPixelShift(t *testing.T) {
	sp := sim.NewSpecimen(7)
	tk := New(nil)
	require.NoError(t, tk.SetTemplate(render(sp, 128, 96, 0, 0)))

	d, err := tk.MeasureDisplacement(render(sp, 128, 96, 2.5, 0.5))
	require.NoError(t, err)
	assert.InDelta(t, 2.5, d.X, 0.5)
	assert.InDelta(t, 0.5, d.Y, 0.5)
}

func TestMeasureWithoutTemplate(t *testing.T) {
	sp := sim.NewSpecimen(42)
	tk := New(nil)
	_, err := tk.MeasureDisplacement(render(sp, 64, 64, 0, 0))
	var te *TrackingError
	require.ErrorAs(t, err, &te)
	assert.False(t, tk.HasTemplate())
}

func TestUniformTemplateRejected(t *testing.T) {
	tk := New(nil)
	err := tk.SetTemplate(camera.NewFrame(64, 64))
	var te *TrackingError
	require.ErrorAs(t, err, &te)
	assert.False(t, tk.HasTemplate())
}

func TestUniformFrameRejected(t *testing.T) {
	sp := sim.NewSpecimen(42)
	tk := New(nil)
	require.NoError(t, tk.SetTemplate(render(sp, 64, 64, 0, 0)))

	flat := camera.NewFrame(64, 64)
	for i := range flat.Pix {
		flat.Pix[i] = 0.5
	}
	_, err := tk.MeasureDisplacement(flat)
	var te *TrackingError
	require.ErrorAs(t, err, &te)
}

func TestMismatchedFrameSizeRejected(t *testing.T) {
	sp := sim.NewSpecimen(42)
	tk := New(nil)
	require.NoError(t, tk.SetTemplate(render(sp, 64, 64, 0, 0)))

	_, err := tk.MeasureDisplacement(render(sp, 32, 32, 0, 0))
	var te *TrackingError
	require.ErrorAs(t, err, &te)
}

func TestUncorrelatedFrameFailsConfidence(t *testing.T) {
	tk := New(nil)
	tk.MinConfidence = 10
	require.NoError(t, tk.SetTemplate(render(sim.NewSpecimen(1), 96, 96, 0, 0)))

	// a different specimen shares no structure with the template
	_, err := tk.MeasureDisplacement(render(sim.NewSpecimen(2), 96, 96, 0, 0))
	var te *TrackingError
	require.ErrorAs(t, err, &te)
	assert.Greater(t, te.Confidence, 0.0)
}

type errCamera struct{ err error }

func (c errCamera) Capture() (camera.Frame, error) { return camera.Frame{}, c.err }

func TestCaptureErrorPropagates(t *testing.T) {
	capErr := &camera.CaptureError{Op: "test", Err: errors.New("boom")}
	tk := New(errCamera{err: capErr})
	err := tk.AcquireTemplate()
	var ce *camera.CaptureError
	require.ErrorAs(t, err, &ce)

	_, err = tk.Measure()
	// measurement without a template fails before the capture is attempted
	var te *TrackingError
	require.ErrorAs(t, err, &te)
}

func TestWrapIndex(t *testing.T) {
	assert.Equal(t, 0.0, wrapIndex(0, 8))
	assert.Equal(t, 3.0, wrapIndex(3, 8))
	// the even-length Nyquist bin resolves negative, keeping [-n/2, n/2)
	assert.Equal(t, -4.0, wrapIndex(4, 8))
	assert.Equal(t, -1.0, wrapIndex(7, 8))
	assert.Equal(t, 3.0, wrapIndex(3, 7))
	assert.Equal(t, -3.0, wrapIndex(4, 7))
	assert.Equal(t, -1.0, wrapIndex(6, 7))
}

func TestHannWindowDegenerate(t *testing.T) {
	w := hannWindow(1)
	require.Len(t, w, 1)
	assert.Equal(t, 1.0, w[0])

	for _, v := range hannWindow(5) {
		assert.False(t, math.IsNaN(v))
	}
}

func TestPeakOffsetClamped(t *testing.T) {
	assert.InDelta(t, 0, peakOffset(1, 2, 1), 1e-12)
	// asymmetric neighbors pull the peak toward the larger one
	assert.Greater(t, peakOffset(0.5, 2, 1.5), 0.0)
	assert.Less(t, peakOffset(1.5, 2, 0.5), 0.0)
	// degenerate fits land outside the bin and get clamped to its edge
	assert.Equal(t, -0.5, peakOffset(0, 1, 10))
	assert.Equal(t, 0.5, peakOffset(10, 1, 0))
}
