package tracker

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// fftPlan caches the row and column transforms for frames of a fixed size.
type fftPlan struct {
	width, height int
	row, col      *fourier.CmplxFFT
}

func newFFTPlan(width, height int) *fftPlan {
	return &fftPlan{
		width:  width,
		height: height,
		row:    fourier.NewCmplxFFT(width),
		col:    fourier.NewCmplxFFT(height),
	}
}

// forward computes the 2D DFT of data in place.  data is row-major with
// the plan's dimensions.
func (p *fftPlan) forward(data []complex128) {
	scratch := make([]complex128, p.width)
	for y := 0; y < p.height; y++ {
		row := data[y*p.width : (y+1)*p.width]
		copy(scratch, row)
		p.row.Coefficients(row, scratch)
	}
	colIn := make([]complex128, p.height)
	colOut := make([]complex128, p.height)
	for x := 0; x < p.width; x++ {
		for y := 0; y < p.height; y++ {
			colIn[y] = data[y*p.width+x]
		}
		p.col.Coefficients(colOut, colIn)
		for y := 0; y < p.height; y++ {
			data[y*p.width+x] = colOut[y]
		}
	}
}

// inverse computes the normalized 2D inverse DFT of data in place.
func (p *fftPlan) inverse(data []complex128) {
	scratch := make([]complex128, p.width)
	for y := 0; y < p.height; y++ {
		row := data[y*p.width : (y+1)*p.width]
		copy(scratch, row)
		p.row.Sequence(row, scratch)
	}
	colIn := make([]complex128, p.height)
	colOut := make([]complex128, p.height)
	norm := complex(1/float64(p.width*p.height), 0)
	for x := 0; x < p.width; x++ {
		for y := 0; y < p.height; y++ {
			colIn[y] = data[y*p.width+x]
		}
		p.col.Sequence(colOut, colIn)
		for y := 0; y < p.height; y++ {
			data[y*p.width+x] = colOut[y] * norm
		}
	}
}

// hann2 returns a separable 2D Hann window as two 1D windows.  Windowing
// suppresses the spectral leakage from frame edges wrapping around in the
// circular correlation.
func hann2(width, height int) (wx, wy []float64) {
	return hannWindow(width), hannWindow(height)
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	// a single-sample window is identity, not 0/0
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// wrapIndex maps a DFT bin index to a signed shift in [-n/2, n/2).
// The Nyquist bin of an even-length transform is ambiguous and resolves
// to the negative end of the range.
func wrapIndex(i, n int) float64 {
	if i >= (n+1)/2 {
		return float64(i - n)
	}
	return float64(i)
}

// peakOffset refines an integer correlation peak along one axis by
// fitting a parabola through the peak and its two circular neighbors.
func peakOffset(prev, at, next float64) float64 {
	denom := prev - 2*at + next
	if denom == 0 {
		return 0
	}
	off := 0.5 * (prev - next) / denom
	// a degenerate fit outside the bin is meaningless; clamp it out
	if off > 0.5 {
		off = 0.5
	} else if off < -0.5 {
		off = -0.5
	}
	return off
}
