package csm

import (
	"log"

	"github.com/openflexure/camstage/stage"
	"github.com/openflexure/camstage/tracker"
)

// ScanPoint is one visited point of a closed-loop scan.
type ScanPoint struct {
	// Index of the point within the scan path.
	Index int

	// Achieved is the measured image displacement relative to the scan's
	// starting frame.
	Achieved tracker.PixelDisplacement
}

// SpiralScanPath returns scan targets, in pixels relative to the starting
// position, for an outward square spiral of the given number of rings
// around the origin.  dx and dy are the pixel pitch between neighboring
// points.  It is a pure function with no hardware dependency; the path
// starts at the origin and contains (2*rings+1)^2 points.
func SpiralScanPath(dx, dy float64, rings int) []tracker.PixelDisplacement {
	total := (2*rings + 1) * (2*rings + 1)
	path := make([]tracker.PixelDisplacement, 0, total)
	x, y := 0, 0
	path = append(path, tracker.PixelDisplacement{})
	dirs := [4][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	run, di := 1, 0
	for len(path) < total {
		// two runs per length: e.g. E1 N1 W2 S2 E3 N3 ...
		for rep := 0; rep < 2 && len(path) < total; rep++ {
			for s := 0; s < run && len(path) < total; s++ {
				x += dirs[di][0]
				y += dirs[di][1]
				path = append(path, tracker.PixelDisplacement{X: float64(x) * dx, Y: float64(y) * dy})
			}
			di = (di + 1) % 4
		}
		run++
	}
	return path
}

// ClosedLoopScan visits each target in path with a closed-loop move and
// calls each with the point index and achieved displacement.  Targets are
// relative to the frame at the scan's start; the template is acquired once
// before the first move.
//
// each returning false cancels the scan: no further moves are made and the
// stage stays where it is, mirroring a caller that stops pulling from a
// lazy sequence.  If any move fails internally, the stage is returned to
// the position recorded before the scan began and the original error is
// returned.  The scan is restartable only by re-invoking it with the same
// path; it is not resumable mid-scan.
func ClosedLoopScan(tk *tracker.Tracker, move MoveInPixelsFunc, moveAbs MoveFunc, getPos func() (stage.Position, error), settle func(), path []tracker.PixelDisplacement, opt MoveOptions, each func(ScanPoint) bool) error {
	start, err := getPos()
	if err != nil {
		return err
	}
	if err := tk.AcquireTemplate(); err != nil {
		return err
	}
	for i, target := range path {
		achieved, err := ClosedLoopMove(tk, move, settle, target, opt)
		if err != nil {
			if rbErr := moveAbs(start); rbErr != nil {
				log.Printf("csm: return to scan start failed after %v: %v", err, rbErr)
			}
			return err
		}
		if each != nil && !each(ScanPoint{Index: i, Achieved: achieved}) {
			return nil
		}
	}
	return nil
}
