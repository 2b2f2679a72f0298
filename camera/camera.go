/*Package camera describes the camera capability consumed by the
camera/stage mapping core.

The mapping core only needs still frames on demand; streaming, exposure
control and other camera features live with the hardware binding and are
not modeled here.
*/
package camera

import "fmt"

// Camera is the minimal capability the mapping core depends on.
// Capture blocks until a frame is available, with bounded latency, and
// returns a CaptureError on hardware fault.
type Camera interface {
	Capture() (Frame, error)
}

// CaptureError indicates the camera could not produce a usable frame.
// It is propagated to the caller; the mapping core never retries captures
// on its own.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture failed during %s", e.Op)
	}
	return fmt.Sprintf("capture failed during %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
