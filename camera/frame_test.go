package camera

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameAccessors(t *testing.T) {
	f := NewFrame(4, 3)
	f.Set(2, 1, 0.75)
	assert.Equal(t, 0.75, f.At(2, 1))
	assert.Equal(t, 0.75, f.Pix[1*4+2])
}

func TestFrameStatisticsEmpty(t *testing.T) {
	var f Frame
	assert.Zero(t, f.Mean())
	assert.Zero(t, f.Variance())
}

func TestFrameStatistics(t *testing.T) {
	f := NewFrame(2, 2)
	assert.Zero(t, f.Mean())
	assert.Zero(t, f.Variance())

	f.Set(0, 0, 1)
	f.Set(1, 1, 1)
	assert.InDelta(t, 0.5, f.Mean(), 1e-12)
	assert.InDelta(t, 0.25, f.Variance(), 1e-12)
}

func TestFromImageSameSize(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 32)})
		}
	}
	f := FromImage(img, 8, 8)
	require.Equal(t, 8, f.Width)
	require.Equal(t, 8, f.Height)
	assert.InDelta(t, 0, f.At(0, 0), 0.01)
	assert.Greater(t, f.At(7, 0), f.At(1, 0))
}

func TestFromImageResamples(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	f := FromImage(img, 16, 16)
	assert.Equal(t, 16, f.Width)
	assert.Equal(t, 16, f.Height)
	assert.Len(t, f.Pix, 256)
}

func TestToImageClamps(t *testing.T) {
	f := NewFrame(2, 1)
	f.Set(0, 0, -0.5)
	f.Set(1, 0, 1.5)
	img := f.ToImage()
	assert.Equal(t, uint8(0), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(1, 0).Y)
}

func TestCaptureError(t *testing.T) {
	cause := errors.New("usb unplugged")
	err := &CaptureError{Op: "grab", Err: cause}
	assert.Contains(t, err.Error(), "grab")
	assert.ErrorIs(t, err, cause)
}
