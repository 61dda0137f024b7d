package playback

import (
	"errors"
	"fmt"
)

type (
	// State is the transport state of a Controller.
	State int

	// Cursor is a position in the song. Bar, Beat and Sub are derived from
	// Tick and the timing of the song, counting from zero.
	Cursor struct {
		Tick int
		Bar  int
		Beat int
		Sub  int
	}

	// Status is published after every transition and every tick.
	Status struct {
		State  State
		Cursor Cursor
		Length int
		Looped bool // the last tick wrapped to the loop start
		Ended  bool // stopped by running out of song, not by Stop
	}

	// StateError is returned by transport operations that are not allowed
	// in the current state.
	StateError struct {
		Op    string
		State State
	}
)

// ErrInvalidTransition is wrapped by every StateError.
var ErrInvalidTransition = errors.New("invalid transport transition")

const (
	Stopped State = iota
	Playing
	Paused
)

var stateNames = [...]string{"stopped", "playing", "paused"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidTransition }

func (c Cursor) String() string {
	return fmt.Sprintf("%d (%d.%d.%d)", c.Tick, c.Bar+1, c.Beat+1, c.Sub+1)
}
