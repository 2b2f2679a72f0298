// Package stage describes the motion capability consumed by the
// camera/stage mapping core: a three axis stepper stage addressed in
// integer motor steps, with exclusive-access locking.
package stage

import (
	"fmt"
	"sync"
)

// Axis indices into Position and Displacement.
const (
	X = iota
	Y
	Z
)

// Position is an absolute stage position in motor steps, ordered (x, y, z).
type Position [3]int

// Displacement is a relative stage move in motor steps, ordered (x, y, z).
type Displacement [3]int

// Add returns the position reached by moving d from p.
func (p Position) Add(d Displacement) Position {
	return Position{p[X] + d[X], p[Y] + d[Y], p[Z] + d[Z]}
}

// Sub returns the displacement from q to p.
func (p Position) Sub(q Position) Displacement {
	return Displacement{p[X] - q[X], p[Y] - q[Y], p[Z] - q[Z]}
}

// Scale returns d with every component multiplied by n.
func (d Displacement) Scale(n int) Displacement {
	return Displacement{d[X] * n, d[Y] * n, d[Z] * n}
}

// Sub returns the component-wise difference d - o.
func (d Displacement) Sub(o Displacement) Displacement {
	return Displacement{d[X] - o[X], d[Y] - o[Y], d[Z] - o[Z]}
}

// Neg returns the opposite displacement.
func (d Displacement) Neg() Displacement {
	return d.Scale(-1)
}

// Zero returns true if all components of d are zero.
func (d Displacement) Zero() bool {
	return d[X] == 0 && d[Y] == 0 && d[Z] == 0
}

// AxisDisplacement returns a displacement of n steps along a single axis.
func AxisDisplacement(axis, n int) Displacement {
	var d Displacement
	d[axis] = n
	return d
}

// Fault indicates the stage could not complete an operation, for example
// communication loss or a limit switch trip.  Faults are propagated
// immediately and never retried by the mapping core.
type Fault struct {
	Op  string
	Err error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("stage fault during %s", f.Op)
	}
	return fmt.Sprintf("stage fault during %s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Controller is the consumed stage capability.  The Locker provides the
// mutual exclusion required by the mapping core, which holds the lock for
// the full duration of a calibration, closed-loop move, or scan.
//
// GetPosition may be called at any time without side effects.  Moves block
// for an a-priori-unknown, hardware dependent duration.
type Controller interface {
	sync.Locker

	// GetPosition reports the current position in motor steps.
	GetPosition() (Position, error)

	// MoveRelative moves by a displacement in motor steps.
	MoveRelative(Displacement) error

	// MoveAbsolute moves to an absolute position in motor steps.
	MoveAbsolute(Position) error
}

// MoveAxis moves a single axis of c by n steps, leaving the others alone.
func MoveAxis(c Controller, axis, n int) error {
	return c.MoveRelative(AxisDisplacement(axis, n))
}
