package stage

// Compensator wraps a Controller and corrects mechanical backlash by
// always finishing a move in a consistent direction.  Backlash is the
// per-axis signed step count; when a commanded move opposes the backlash
// vector on an axis, the compensator overshoots past the target by the
// backlash magnitude and then returns, so the axis is always approached
// from the sign of its Backlash component.
//
// Axes with a zero Backlash component are never compensated.  The net
// displacement of any compensated move equals the commanded displacement
// exactly.
type Compensator struct {
	Controller

	Backlash Displacement
}

// MoveRelative moves by d, splitting the move in two when any axis
// travels against its backlash vector.
func (c Compensator) MoveRelative(d Displacement) error {
	initial := d
	for i := range d {
		if d[i]*c.Backlash[i] < 0 {
			initial[i] -= c.Backlash[i]
		}
	}
	if err := c.Controller.MoveRelative(initial); err != nil {
		return err
	}
	if initial == d {
		return nil
	}
	return c.Controller.MoveRelative(d.Sub(initial))
}

// MoveAbsolute moves to p with backlash compensation.  The underlying
// controller is queried for the current position, then the move is issued
// as a compensated relative move.
func (c Compensator) MoveAbsolute(p Position) error {
	cur, err := c.Controller.GetPosition()
	if err != nil {
		return err
	}
	return c.MoveRelative(p.Sub(cur))
}
