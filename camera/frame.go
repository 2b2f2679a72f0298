package camera

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Frame is a single grayscale camera frame.  The data is a row-major
// strided buffer; the pixel at (x, y) lives at index y*Width + x.
// Intensities are normalized to [0, 1].
type Frame struct {
	Pix []float64

	Width, Height int
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height int) Frame {
	return Frame{Pix: make([]float64, width*height), Width: width, Height: height}
}

// At returns the intensity at (x, y).
func (f Frame) At(x, y int) float64 {
	return f.Pix[y*f.Width+x]
}

// Set assigns the intensity at (x, y).
func (f Frame) Set(x, y int, v float64) {
	f.Pix[y*f.Width+x] = v
}

// Mean returns the average intensity of the frame, zero for an empty one.
func (f Frame) Mean() float64 {
	if len(f.Pix) == 0 {
		return 0
	}
	var sum float64
	for _, v := range f.Pix {
		sum += v
	}
	return sum / float64(len(f.Pix))
}

// Variance returns the intensity variance of the frame, zero for an empty
// one.  It is used to reject contrast-free frames before correlation.
func (f Frame) Variance() float64 {
	if len(f.Pix) == 0 {
		return 0
	}
	mean := f.Mean()
	var sum float64
	for _, v := range f.Pix {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(f.Pix))
}

// FromImage converts any image.Image to a grayscale Frame of the given
// size, resampling with bilinear interpolation when the source bounds
// differ from (width, height).
func FromImage(img image.Image, width, height int) Frame {
	gray := image.NewGray16(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)
	f := NewFrame(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := gray.Gray16At(x, y)
			f.Set(x, y, float64(c.Y)/65535)
		}
	}
	return f
}

// ToImage renders the frame as an 8-bit grayscale image.
func (f Frame) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.At(x, y)
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v*255 + 0.5)})
		}
	}
	return img
}
