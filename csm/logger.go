package csm

import (
	"time"

	"github.com/openflexure/camstage/stage"
)

// MoveFunc issues an absolute stage move.
type MoveFunc func(stage.Position) error

// MoveHistory is a time-stamped trajectory of stage positions recorded
// around move calls.  It is used only to derive duration statistics and is
// cleared per calibration run.
type MoveHistory struct {
	Times     []time.Time      `json:"times"`
	Positions []stage.Position `json:"stage_positions"`
}

// Durations returns the elapsed time of each recorded move.  Entries are
// recorded in before/after pairs, so durations are the deltas between
// consecutive pairs.
func (h MoveHistory) Durations() []time.Duration {
	n := len(h.Times) / 2
	out := make([]time.Duration, 0, n)
	for i := 0; i+1 < len(h.Times); i += 2 {
		out = append(out, h.Times[i+1].Sub(h.Times[i]))
	}
	return out
}

// Longest returns the duration of the slowest recorded move, zero when
// nothing has been recorded.  It is a cheap upper bound for settle
// heuristics.
func (h MoveHistory) Longest() time.Duration {
	var max time.Duration
	for _, d := range h.Durations() {
		if d > max {
			max = d
		}
	}
	return max
}

// LoggingMove wraps a move function and records a MoveHistory.  Each call
// is bracketed with two records taken at the position held before the
// move, so duration statistics reflect dwell before settle rather than the
// instantaneous new position.
//
// LoggingMove performs no error handling of its own: failures from the
// wrapped function propagate after recording, and the tracked position is
// invalidated since the stage may have stopped anywhere.
type LoggingMove struct {
	move      MoveFunc
	known     bool
	current   stage.Position
	times     []time.Time
	positions []stage.Position
}

// NewLoggingMove wraps move.  The tracked position is unknown until Seed
// is called or the first move completes; records are suppressed while the
// position is unknown.
func NewLoggingMove(move MoveFunc) *LoggingMove {
	return &LoggingMove{move: move}
}

// Seed sets the tracked position without moving, typically from a
// GetPosition call made before wrapping.
func (l *LoggingMove) Seed(p stage.Position) {
	l.current = p
	l.known = true
}

// Move issues the wrapped move to p, recording around the call.
func (l *LoggingMove) Move(p stage.Position) error {
	l.record()
	err := l.move(p)
	l.record()
	if err != nil {
		l.known = false
		return err
	}
	l.current = p
	l.known = true
	return nil
}

func (l *LoggingMove) record() {
	if !l.known {
		return
	}
	l.times = append(l.times, time.Now())
	l.positions = append(l.positions, l.current)
}

// History returns a copy of the recorded trajectory.
func (l *LoggingMove) History() MoveHistory {
	h := MoveHistory{
		Times:     make([]time.Time, len(l.times)),
		Positions: make([]stage.Position, len(l.positions)),
	}
	copy(h.Times, l.times)
	copy(h.Positions, l.positions)
	return h
}

// ClearHistory resets the recorded trajectory without affecting the
// wrapped move function or the tracked position.
func (l *LoggingMove) ClearHistory() {
	l.times = nil
	l.positions = nil
}
