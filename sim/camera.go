package sim

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/time/rate"

	"github.com/openflexure/camstage/camera"
	"github.com/openflexure/camstage/stage"
	"github.com/openflexure/camstage/util"
)

// Default simulated sensor size; small enough that correlation-heavy
// tests stay fast.
const (
	DefaultWidth  = 128
	DefaultHeight = 96
)

// Camera renders a view of a Specimen whose image offset follows the
// stage position, so the simulated optics behave like a real camera
// watching a real stage.
//
// The image offset in pixels is PixelsPerStep times the stage (x, y)
// position: PixelsPerStep is exactly the matrix a calibration should
// recover.  Defocus grows with distance from z = 0 at DefocusPerStep.
type Camera struct {
	Specimen *Specimen

	Width, Height int

	// PixelsPerStep maps stage (x, y) steps to image displacement in
	// pixels, row-major.
	PixelsPerStep [2][2]float64

	// DefocusPerStep scales |z| into blur; zero keeps every frame in
	// focus.
	DefocusPerStep float64

	// Position reads the live mechanical position the optics see,
	// typically the simulated stage's carriage.
	Position func() stage.Position

	// Limiter caps the frame rate when non-nil.
	Limiter *rate.Limiter

	// Noise is the standard deviation of additive intensity noise.
	Noise float64
	rng   *rand.Rand

	// Fail, when non-nil, makes every capture fail with a CaptureError
	// wrapping it.  Used for fault-path tests.
	Fail error
}

// NewCamera returns a simulated camera watching sp through pos, with an
// identity pixels-per-step mapping and a 50 fps frame-rate cap.
func NewCamera(sp *Specimen, pos func() stage.Position) *Camera {
	return &Camera{
		Specimen:      sp,
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		PixelsPerStep: [2][2]float64{{1, 0}, {0, 1}},
		Position:      pos,
		Limiter:       rate.NewLimiter(rate.Every(20*time.Millisecond), 1),
		rng:           rand.New(rand.NewSource(1)),
	}
}

// Capture renders a frame at the current stage position.
func (c *Camera) Capture() (camera.Frame, error) {
	if c.Fail != nil {
		return camera.Frame{}, &camera.CaptureError{Op: "sim capture", Err: c.Fail}
	}
	if c.Limiter != nil {
		c.Limiter.Wait(context.Background())
	}
	pos := c.Position()
	offX := c.PixelsPerStep[0][0]*float64(pos[stage.X]) + c.PixelsPerStep[0][1]*float64(pos[stage.Y])
	offY := c.PixelsPerStep[1][0]*float64(pos[stage.X]) + c.PixelsPerStep[1][1]*float64(pos[stage.Y])
	defocus := c.DefocusPerStep * abs(float64(pos[stage.Z]))

	f := camera.NewFrame(c.Width, c.Height)
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			// content moves by +PixelsPerStep*delta when the stage moves
			v := c.Specimen.AtDefocus(float64(x)-offX, float64(y)-offY, defocus)
			if c.Noise > 0 {
				v += c.rng.NormFloat64() * c.Noise
			}
			f.Set(x, y, util.Clamp(v, 0, 1))
		}
	}
	return f, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// MissingCamera serves a text-annotated placeholder frame in place of a
// disconnected camera, so downstream consumers keep receiving frames
// instead of errors while the hardware is absent.
type MissingCamera struct {
	Width, Height int
}

// Capture renders the placeholder frame.
func (c *MissingCamera) Capture() (camera.Frame, error) {
	w, h := c.Width, c.Height
	if w == 0 {
		w = DefaultWidth
	}
	if h == 0 {
		h = DefaultHeight
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, h/2),
	}
	d.DrawString(fmt.Sprintf("camera disconnected: %s", time.Now().Format("2006-01-02 15:04:05")))
	return camera.FromImage(img, w, h), nil
}
