package cell

import (
	"errors"
	"fmt"
)

// ErrDisposed is returned by every operation on a disposed cell.
var ErrDisposed = errors.New("cell: disposed")

// State is the synchronization state of a cell.
type State int

// States of a cell. A cell starts Unbound, becomes Bound after its initial
// read and then moves between Synced, Diverging and Faulted until it is
// Disposed.
const (
	StateUnbound State = iota
	StateBound
	StateSynced
	StateDiverging
	StateFaulted
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "Unbound"
	case StateBound:
		return "Bound"
	case StateSynced:
		return "Synced"
	case StateDiverging:
		return "Diverging"
	case StateFaulted:
		return "Faulted"
	case StateDisposed:
		return "Disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source tells which side produced a change.
type Source int

// Change sources.
const (
	// SourceRemote marks a change detected by polling the target.
	SourceRemote Source = iota

	// SourceLocal marks a change written by the host.
	SourceLocal
)

func (s Source) String() string {
	if s == SourceLocal {
		return "local"
	}

	return "remote"
}

// A ChangeEvent carries one detected or applied change of a cell.
type ChangeEvent[T any] struct {
	Field  string
	Old    T
	New    T
	Source Source

	// Origin is the token passed to WriteFrom for local changes. It lets a
	// writer recognize its own change when it is also a subscriber.
	Origin any
}
