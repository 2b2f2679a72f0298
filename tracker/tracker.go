/*Package tracker estimates 2D pixel displacement between a stored template
frame and later frames.

The tracker treats the camera as a positional encoder: a template is
captured once, and each subsequent measurement reports the best-fit
translation of the new frame relative to the template, computed by FFT
cross-correlation with sub-pixel peak interpolation.  A measurement whose
correlation peak is not convincingly above the correlation floor fails with
a TrackingError rather than returning a junk estimate.

The measured displacement d satisfies frame(x, y) ~= template(x-dx, y-dy):
content that moves toward +x in the image produces a positive dx.
*/
package tracker

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/openflexure/camstage/camera"
)

// DefaultMinConfidence is the peak-to-RMS ratio of the correlation surface
// below which a measurement is rejected.
const DefaultMinConfidence = 4.0

// minVariance is the frame intensity variance below which an image is
// considered contrast-free and unusable for correlation.
const minVariance = 1e-10

// PixelDisplacement is an estimated (dx, dy) translation in image pixels.
type PixelDisplacement struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the component-wise sum of two displacements.
func (p PixelDisplacement) Add(o PixelDisplacement) PixelDisplacement {
	return PixelDisplacement{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns the component-wise difference p - o.
func (p PixelDisplacement) Sub(o PixelDisplacement) PixelDisplacement {
	return PixelDisplacement{X: p.X - o.X, Y: p.Y - o.Y}
}

// Norm returns the Euclidean magnitude of the displacement.
func (p PixelDisplacement) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// TrackingError indicates the correlation confidence was too low to
// estimate a displacement.  Callers may retry with a fresh template.
type TrackingError struct {
	Reason string

	// Confidence is the peak-to-RMS ratio that failed the threshold,
	// zero when the failure happened before correlation.
	Confidence float64
}

func (e *TrackingError) Error() string {
	return "tracking: " + e.Reason
}

// ErrNoTemplate is wrapped by the TrackingError returned when a
// measurement is requested before a template has been acquired.
var ErrNoTemplate = errors.New("no template acquired")

// Tracker holds a reference template and measures displacements against
// it.  It is stateless with respect to history: each measurement depends
// only on the stored template and the supplied frame.
type Tracker struct {
	// Camera supplies frames for AcquireTemplate and Measure.
	Camera camera.Camera

	// MinConfidence overrides DefaultMinConfidence when positive.
	MinConfidence float64

	plan     *fftPlan
	wx, wy   []float64
	template []complex128 // conjugated DFT of the windowed template
}

// New returns a tracker reading frames from cam.
func New(cam camera.Camera) *Tracker {
	return &Tracker{Camera: cam}
}

// HasTemplate reports whether a template has been stored.
func (t *Tracker) HasTemplate() bool {
	return t.template != nil
}

// AcquireTemplate captures the current frame and stores it as the
// reference for subsequent measurements.
func (t *Tracker) AcquireTemplate() error {
	f, err := t.Camera.Capture()
	if err != nil {
		return err
	}
	return t.SetTemplate(f)
}

// SetTemplate stores f as the reference frame.  It fails with a
// TrackingError if the frame has no usable contrast.
func (t *Tracker) SetTemplate(f camera.Frame) error {
	if f.Variance() < minVariance {
		t.template = nil
		return &TrackingError{Reason: "template has no contrast"}
	}
	if t.plan == nil || t.plan.width != f.Width || t.plan.height != f.Height {
		t.plan = newFFTPlan(f.Width, f.Height)
		t.wx, t.wy = hann2(f.Width, f.Height)
	}
	data := t.prepare(f)
	t.plan.forward(data)
	for i := range data {
		data[i] = cmplx.Conj(data[i])
	}
	t.template = data
	return nil
}

// Measure captures a frame and returns its displacement from the template.
// A missing template fails before any frame is captured.
func (t *Tracker) Measure() (PixelDisplacement, error) {
	if t.template == nil {
		return PixelDisplacement{}, &TrackingError{Reason: ErrNoTemplate.Error()}
	}
	f, err := t.Camera.Capture()
	if err != nil {
		return PixelDisplacement{}, err
	}
	return t.MeasureDisplacement(f)
}

// MeasureDisplacement returns the best-fit translation of f relative to
// the stored template, sub-pixel accurate for well-correlated frames.
func (t *Tracker) MeasureDisplacement(f camera.Frame) (PixelDisplacement, error) {
	if t.template == nil {
		return PixelDisplacement{}, &TrackingError{Reason: ErrNoTemplate.Error()}
	}
	if f.Width != t.plan.width || f.Height != t.plan.height {
		return PixelDisplacement{}, &TrackingError{Reason: "frame size does not match template"}
	}
	if f.Variance() < minVariance {
		return PixelDisplacement{}, &TrackingError{Reason: "frame has no contrast"}
	}
	data := t.prepare(f)
	t.plan.forward(data)
	for i := range data {
		data[i] *= t.template[i]
	}
	t.plan.inverse(data)

	// locate the correlation peak and measure the surface RMS
	w, h := t.plan.width, t.plan.height
	corr := make([]float64, len(data))
	var sumSq float64
	peak, px, py := math.Inf(-1), 0, 0
	for i, c := range data {
		v := real(c)
		corr[i] = v
		sumSq += v * v
		if v > peak {
			peak = v
			px, py = i%w, i/w
		}
	}
	rms := math.Sqrt(sumSq / float64(len(corr)))
	conf := peak / rms
	min := t.MinConfidence
	if min <= 0 {
		min = DefaultMinConfidence
	}
	if !(conf >= min) {
		return PixelDisplacement{}, &TrackingError{
			Reason:     "correlation confidence below threshold",
			Confidence: conf,
		}
	}

	at := func(x, y int) float64 {
		return corr[((y+h)%h)*w+(x+w)%w]
	}
	dx := wrapIndex(px, w) + peakOffset(at(px-1, py), at(px, py), at(px+1, py))
	dy := wrapIndex(py, h) + peakOffset(at(px, py-1), at(px, py), at(px, py+1))
	return PixelDisplacement{X: dx, Y: dy}, nil
}

// prepare subtracts the frame mean and applies the Hann window, returning
// the frame as a complex buffer ready for the forward transform.
func (t *Tracker) prepare(f camera.Frame) []complex128 {
	mean := f.Mean()
	data := make([]complex128, len(f.Pix))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := y*f.Width + x
			data[i] = complex((f.Pix[i]-mean)*t.wx[x]*t.wy[y], 0)
		}
	}
	return data
}
