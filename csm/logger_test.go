package csm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflexure/camstage/stage"
)

func TestLoggingMoveRecordsDeparturePosition(t *testing.T) {
	lm := NewLoggingMove(func(stage.Position) error { return nil })
	lm.Seed(stage.Position{0, 0, 0})

	require.NoError(t, lm.Move(stage.Position{5, 0, 0}))
	require.NoError(t, lm.Move(stage.Position{7, 0, 0}))

	h := lm.History()
	require.Len(t, h.Positions, 4)
	// both records of a move hold the position the stage left from
	assert.Equal(t, stage.Position{0, 0, 0}, h.Positions[0])
	assert.Equal(t, stage.Position{0, 0, 0}, h.Positions[1])
	assert.Equal(t, stage.Position{5, 0, 0}, h.Positions[2])
	assert.Equal(t, stage.Position{5, 0, 0}, h.Positions[3])
	assert.Len(t, h.Durations(), 2)
}

func TestLoggingMoveSuppressedUntilSeeded(t *testing.T) {
	lm := NewLoggingMove(func(stage.Position) error { return nil })

	require.NoError(t, lm.Move(stage.Position{5, 0, 0}))
	assert.Empty(t, lm.History().Positions)

	// the first completed move establishes the position
	require.NoError(t, lm.Move(stage.Position{9, 0, 0}))
	assert.Equal(t,
		[]stage.Position{{5, 0, 0}, {5, 0, 0}},
		lm.History().Positions)
}

func TestLoggingMoveInvalidatesOnError(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	lm := NewLoggingMove(func(stage.Position) error {
		if fail {
			return boom
		}
		return nil
	})
	lm.Seed(stage.Position{0, 0, 0})

	err := lm.Move(stage.Position{5, 0, 0})
	require.ErrorIs(t, err, boom)
	// the failed move was still bracketed
	assert.Len(t, lm.History().Positions, 2)

	// position is unknown now, so the next move records nothing
	fail = false
	require.NoError(t, lm.Move(stage.Position{5, 0, 0}))
	assert.Len(t, lm.History().Positions, 2)

	// but it re-established the position for the move after it
	require.NoError(t, lm.Move(stage.Position{6, 0, 0}))
	assert.Len(t, lm.History().Positions, 4)
}

func TestLoggingMoveClearHistory(t *testing.T) {
	lm := NewLoggingMove(func(stage.Position) error { return nil })
	lm.Seed(stage.Position{})
	require.NoError(t, lm.Move(stage.Position{1, 0, 0}))

	lm.ClearHistory()
	assert.Empty(t, lm.History().Positions)

	// clearing does not lose the tracked position
	require.NoError(t, lm.Move(stage.Position{2, 0, 0}))
	assert.Equal(t, []stage.Position{{1, 0, 0}, {1, 0, 0}}, lm.History().Positions)
}

func TestMoveHistoryDurations(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := MoveHistory{
		Times: []time.Time{
			t0, t0.Add(100 * time.Millisecond),
			t0.Add(time.Second), t0.Add(time.Second + 250*time.Millisecond),
		},
		Positions: make([]stage.Position, 4),
	}
	assert.Equal(t,
		[]time.Duration{100 * time.Millisecond, 250 * time.Millisecond},
		h.Durations())
	assert.Equal(t, 250*time.Millisecond, h.Longest())
}

func TestMoveHistoryEmpty(t *testing.T) {
	var h MoveHistory
	assert.Empty(t, h.Durations())
	assert.Zero(t, h.Longest())
}
