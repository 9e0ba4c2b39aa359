package cell

import (
	"errors"
	"sync"

	"go.uber.org/multierr"
)

// A Cell is the type-erased view of a Memory used by owners that poll and
// dispose cells of different types together.
type Cell interface {
	Name() string
	Poll() (bool, error)
	State() State
	Disposed() bool
	Dispose()
}

// A Fault is one failed access found during a tick.
type Fault struct {
	Path string
	Err  error
}

func (f Fault) Error() string {
	return f.Path + ": " + f.Err.Error()
}

func (f Fault) Unwrap() error {
	return f.Err
}

// TickResult summarizes one tick of a group of cells.
type TickResult struct {
	// Changed lists, in poll order, the cells that fired a change.
	Changed []string

	// Faults lists the cells whose access failed.
	Faults []Fault
}

// Faulted reports whether any access failed during the tick.
func (r TickResult) Faulted() bool {
	return len(r.Faults) > 0
}

// Err combines all faults of the tick into one error, or returns nil.
func (r TickResult) Err() error {
	var err error
	for _, f := range r.Faults {
		err = multierr.Append(err, f)
	}

	return err
}

// Merge appends the changes and faults of other.
func (r *TickResult) Merge(other TickResult) {
	r.Changed = append(r.Changed, other.Changed...)
	r.Faults = append(r.Faults, other.Faults...)
}

// Record adds the outcome of one poll.
func (r *TickResult) Record(path string, changed bool, err error) {
	switch {
	case err != nil:
		r.Faults = append(r.Faults, Fault{Path: path, Err: err})
	case changed:
		r.Changed = append(r.Changed, path)
	}
}

// A Set owns loosely opened cells of any type. It polls them in the order
// they were added and disposes them together.
type Set struct {
	mu       sync.Mutex
	cells    []Cell
	disposed bool
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{}
}

// Add transfers ownership of c to the set. Adding to a disposed set disposes
// c right away.
func (s *Set) Add(c Cell) {
	s.mu.Lock()
	if !s.disposed {
		s.cells = append(s.cells, c)
		s.mu.Unlock()

		return
	}
	s.mu.Unlock()

	c.Dispose()
}

// Len returns the number of cells in the set.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.cells)
}

// Tick polls every cell once. Cells disposed by their owner are dropped. The
// walk stops as soon as the set itself gets disposed.
func (s *Set) Tick() TickResult {
	res := TickResult{}

	for _, c := range s.snapshot() {
		if s.Disposed() {
			break
		}

		if c.Disposed() {
			s.remove(c)
			continue
		}

		changed, err := c.Poll()
		if errors.Is(err, ErrDisposed) {
			continue
		}

		res.Record(c.Name(), changed, err)
	}

	return res
}

// Disposed reports whether Dispose has been called.
func (s *Set) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.disposed
}

// Dispose disposes every cell of the set.
func (s *Set) Dispose() {
	s.mu.Lock()
	cells := s.cells
	s.cells = nil
	s.disposed = true
	s.mu.Unlock()

	for _, c := range cells {
		c.Dispose()
	}
}

func (s *Set) snapshot() []Cell {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Cell, len(s.cells))
	copy(out, s.cells)

	return out
}

func (s *Set) remove(c Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, other := range s.cells {
		if other == c {
			s.cells = append(s.cells[:i:i], s.cells[i+1:]...)
			return
		}
	}
}

var _ Cell = (*Memory[int32])(nil)
