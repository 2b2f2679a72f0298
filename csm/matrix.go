package csm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/openflexure/camstage/stage"
	"github.com/openflexure/camstage/tracker"
)

// DeterminantTolerance is the absolute determinant below which the
// stage-to-image matrix is considered degenerate, e.g. when the camera
// axis is parallel across both stage calibration directions.
const DeterminantTolerance = 1e-12

// Calibration is the persisted record relating image and stage
// coordinates.  It is created wholesale by Combine and never mutated in
// place; recalibration replaces it entirely.
//
// Matrices are row-major.  StageToImage maps a stage displacement
// (calX direction steps, calY direction steps) to an image displacement in
// pixels; ImageToStage is its inverse.
type Calibration struct {
	ImageToStage [2][2]float64 `json:"image_to_stage_displacement"`
	StageToImage [2][2]float64 `json:"stage_to_image_displacement"`

	X AxisCalibration `json:"linear_calibration_x"`
	Y AxisCalibration `json:"linear_calibration_y"`
}

// Combine builds a Calibration from two independent axis calibrations.
// The stage-to-image matrix's columns are the per-direction mean
// pixels-per-step vectors; the pixel-to-stage mapping is its inverse.
// A determinant within DeterminantTolerance of zero fails with a
// CalibrationError.
func Combine(calX, calY AxisCalibration) (Calibration, error) {
	px := calX.MeanPixelsPerStep()
	py := calY.MeanPixelsPerStep()
	a := mat.NewDense(2, 2, []float64{
		px[0], py[0],
		px[1], py[1],
	})
	if math.Abs(mat.Det(a)) <= DeterminantTolerance {
		return Calibration{}, &CalibrationError{Reason: "stage-to-image matrix is degenerate"}
	}
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return Calibration{}, &CalibrationError{Reason: "stage-to-image matrix is not invertible: " + err.Error()}
	}
	c := Calibration{X: calX, Y: calY}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			c.StageToImage[i][j] = a.At(i, j)
			c.ImageToStage[i][j] = inv.At(i, j)
		}
	}
	return c, nil
}

// Validate checks a loaded record for usability: every coefficient finite
// and the two matrices actually inverse to one another within floating
// point tolerance.  Malformed records fail with a CalibrationError rather
// than silently defaulting.
func (c Calibration) Validate() error {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if !finite(c.ImageToStage[i][j]) || !finite(c.StageToImage[i][j]) {
				return &CalibrationError{Reason: "record contains non-finite coefficients"}
			}
			// product should be identity
			var sum float64
			for k := 0; k < 2; k++ {
				sum += c.StageToImage[i][k] * c.ImageToStage[k][j]
			}
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(sum-want) > 1e-6 {
				return &CalibrationError{Reason: "matrices are not mutually inverse"}
			}
		}
	}
	return nil
}

// PixelsToSteps maps an image displacement to the stage displacement that
// produces it, rounded to integer steps.  The z component is always zero.
func (c Calibration) PixelsToSteps(d tracker.PixelDisplacement) stage.Displacement {
	sx := c.ImageToStage[0][0]*d.X + c.ImageToStage[0][1]*d.Y
	sy := c.ImageToStage[1][0]*d.X + c.ImageToStage[1][1]*d.Y
	return stage.Displacement{int(math.Round(sx)), int(math.Round(sy)), 0}
}

// StepsToPixels maps a stage displacement to the image displacement the
// calibration predicts for it.
func (c Calibration) StepsToPixels(d stage.Displacement) tracker.PixelDisplacement {
	return tracker.PixelDisplacement{
		X: c.StageToImage[0][0]*float64(d[stage.X]) + c.StageToImage[0][1]*float64(d[stage.Y]),
		Y: c.StageToImage[1][0]*float64(d[stage.X]) + c.StageToImage[1][1]*float64(d[stage.Y]),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
