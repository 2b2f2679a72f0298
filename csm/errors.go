package csm

// CalibrationError indicates a degenerate or missing calibration.  It is
// raised whenever a closed-loop or pixel-mapped move is requested before a
// valid calibration exists, and when a calibration attempt produces a
// matrix that cannot be inverted.  It is a precondition violation, not a
// transient fault, and is never retried.
type CalibrationError struct {
	Reason string
}

func (e *CalibrationError) Error() string {
	return "calibration: " + e.Reason
}
