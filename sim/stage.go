package sim

import (
	"errors"
	"sync"

	"github.com/openflexure/camstage/stage"
)

// ErrInjectedFault is the cause carried by faults injected with FailAfter.
var ErrInjectedFault = errors.New("injected fault")

// Stage is a simulated XYZ stepper stage.  The reported position is the
// commanded motor position; the carriage the optics actually see lags the
// motors by up to Slack steps per axis when the direction of travel
// reverses, modeling mechanical backlash.
type Stage struct {
	// op is the exclusive-access lock exposed through Lock/Unlock, held
	// by the mapping core for whole operations.
	op sync.Mutex

	// mu guards the fields below; moves and reads from multiple
	// goroutines stay coherent even without the operation lock.
	mu sync.Mutex

	motor stage.Position

	// Slack is the per-axis mechanical backlash magnitude in steps.
	Slack [3]int

	// lash is how far into the slack band each axis sits, in [0, Slack].
	lash [3]int

	// FailAfter injects a transient stage.Fault on the nth future
	// relative move when positive; moves after it succeed again, as with
	// a fault that was cleared.  0 disables injection.
	FailAfter int
	moves     int
}

// Lock acquires the exclusive-access operation lock.
func (s *Stage) Lock() { s.op.Lock() }

// Unlock releases the exclusive-access operation lock.
func (s *Stage) Unlock() { s.op.Unlock() }

// GetPosition reports the commanded motor position.
func (s *Stage) GetPosition() (stage.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motor, nil
}

// Carriage reports the mechanical position the optics see, lagging the
// motors by the current backlash lash.  The simulated camera reads this,
// never the motor position.
func (s *Stage) Carriage() stage.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p stage.Position
	for i := range p {
		p[i] = s.motor[i] - s.lash[i]
	}
	return p
}

// MoveRelative moves by d, consuming backlash slack before the carriage
// follows on any axis that reverses direction.
func (s *Stage) MoveRelative(d stage.Displacement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves++
	if s.FailAfter > 0 && s.moves == s.FailAfter {
		return &stage.Fault{Op: "move relative", Err: ErrInjectedFault}
	}
	for i := range d {
		s.motor[i] += d[i]
		// positive travel stretches the lash to its limit, negative
		// travel collapses it to zero; the carriage absorbs the rest
		switch {
		case d[i] > 0:
			s.lash[i] += d[i]
			if s.lash[i] > s.Slack[i] {
				s.lash[i] = s.Slack[i]
			}
		case d[i] < 0:
			s.lash[i] += d[i]
			if s.lash[i] < 0 {
				s.lash[i] = 0
			}
		}
	}
	return nil
}

// MoveAbsolute moves to p.
func (s *Stage) MoveAbsolute(p stage.Position) error {
	cur, err := s.GetPosition()
	if err != nil {
		return err
	}
	return s.MoveRelative(p.Sub(cur))
}
