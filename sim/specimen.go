/*Package sim provides simulated microscope hardware: a procedural
specimen, a camera that renders it, and a stage with mechanical backlash.

The simulated pieces satisfy the camera and stage capabilities consumed by
the mapping core, so calibration, closed-loop moves, and autofocus can be
developed and tested end to end without a microscope on the bench.
*/
package sim

import (
	"math"
	"math/rand"
)

// specimen texture parameters.
const (
	specimenComponents = 24
	minFrequency       = 0.02 // cycles per pixel
	maxFrequency       = 0.35
)

type sinusoid struct {
	amp, fx, fy, phase float64
}

// Specimen is a deterministic, smoothly varying synthetic sample built
// from a fixed set of sinusoids.  It is continuous in (x, y), so frames
// rendered at fractional offsets are exact, which is what lets tests
// assert sub-pixel tracking accuracy.
type Specimen struct {
	comps []sinusoid
}

// NewSpecimen builds a specimen from seed.  Equal seeds produce identical
// specimens.
func NewSpecimen(seed int64) *Specimen {
	rng := rand.New(rand.NewSource(seed))
	comps := make([]sinusoid, specimenComponents)
	for i := range comps {
		freq := minFrequency + rng.Float64()*(maxFrequency-minFrequency)
		theta := rng.Float64() * 2 * math.Pi
		comps[i] = sinusoid{
			amp:   0.5 + rng.Float64(),
			fx:    freq * math.Cos(theta),
			fy:    freq * math.Sin(theta),
			phase: rng.Float64() * 2 * math.Pi,
		}
	}
	return &Specimen{comps: comps}
}

// At samples the in-focus specimen intensity at (x, y), roughly in [0, 1].
func (s *Specimen) At(x, y float64) float64 {
	return s.AtDefocus(x, y, 0)
}

// AtDefocus samples the specimen as seen through defocus blur.  Defocus
// attenuates each frequency component with a Gaussian envelope, the same
// qualitative behavior as a real microscope losing high-frequency contrast
// away from the focal plane.
func (s *Specimen) AtDefocus(x, y, defocus float64) float64 {
	var sum, norm float64
	for _, c := range s.comps {
		f := math.Hypot(c.fx, c.fy)
		att := math.Exp(-(f * defocus) * (f * defocus))
		sum += att * c.amp * math.Sin(2*math.Pi*(c.fx*x+c.fy*y)+c.phase)
		norm += c.amp
	}
	return 0.5 + sum/(2*norm)
}
