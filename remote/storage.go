package remote

import (
	"sync"
)

// A Storage is a simulated process address space. It implements Accessor and
// BatchReader and stands in for a real process in tests, demos and replays.
//
// The storage manages memory in units, similar to pages. Units that are never
// touched by Read and Write are not allocated. Ranges can be unmapped to
// simulate the target freeing a region, and Close simulates the process
// exiting.
type Storage struct {
	mu sync.Mutex

	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
	unmapped []Span

	failNext  int
	failCause error
	closed    bool

	reads  uint64
	writes uint64
}

// NewStorage creates a storage object with the specified capacity in bytes.
func NewStorage(capacity uint64) *Storage {
	return &Storage{
		unitSize: 4096,
		capacity: capacity,
		data:     make(map[uint64][]byte),
	}
}

// Capacity returns the size of the address space.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// Read returns length bytes at addr.
func (s *Storage) Read(addr Address, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(addr, length)
}

func (s *Storage) read(addr Address, length int) ([]byte, error) {
	s.reads++

	if err := s.check(addr, length); err != nil {
		return nil, NewFault("read", addr, length, err)
	}

	res := make([]byte, length)
	currAddr := uint64(addr)
	end := uint64(addr) + uint64(length)
	dataOffset := uint64(0)

	for currAddr < end {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToRead := min(end-currAddr, s.unitSize-inUnitAddr)

		if unit, ok := s.data[baseAddr]; ok {
			copy(res[dataOffset:dataOffset+lenToRead],
				unit[inUnitAddr:inUnitAddr+lenToRead])
		}

		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return res, nil
}

// Write stores data at addr.
func (s *Storage) Write(addr Address, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++

	if err := s.check(addr, len(data)); err != nil {
		return NewFault("write", addr, len(data), err)
	}

	currAddr := uint64(addr)
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit := s.createOrGetStorageUnit(currAddr)

		_, inUnitAddr := s.parseAddress(currAddr)
		lenToWrite := min(uint64(len(data))-dataOffset, s.unitSize-inUnitAddr)

		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])
		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}

// ReadBatch reads all spans while holding the storage lock once.
func (s *Storage) ReadBatch(spans []Span) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(spans))
	for i, span := range spans {
		data, err := s.read(span.Addr, span.Length)
		if err != nil {
			return nil, err
		}

		out[i] = data
	}

	return out, nil
}

// Unmap makes every access overlapping the range fail with ErrUnmapped.
func (s *Storage) Unmap(addr Address, length int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unmapped = append(s.unmapped, Span{Addr: addr, Length: length})
}

// Remap undoes all Unmap calls.
func (s *Storage) Remap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unmapped = nil
}

// FailNext makes the next n accesses fail with cause.
func (s *Storage) FailNext(n int, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext = n
	s.failCause = cause
}

// Close simulates the exit of the target process. All later accesses fail
// with ErrProcessExited.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

// Accesses returns the number of reads and writes attempted so far, including
// failed ones.
func (s *Storage) Accesses() (reads, writes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reads, s.writes
}

func (s *Storage) check(addr Address, length int) error {
	if s.closed {
		return ErrProcessExited
	}

	if s.failNext > 0 {
		s.failNext--
		return s.failCause
	}

	if length < 0 || uint64(length) > s.capacity ||
		uint64(addr) > s.capacity-uint64(length) {
		return ErrUnmapped
	}

	for _, u := range s.unmapped {
		if uint64(addr) < uint64(u.Addr)+uint64(u.Length) &&
			uint64(u.Addr) < uint64(addr)+uint64(length) {
			return ErrUnmapped
		}
	}

	return nil
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initializes a storage unit in the storage object.
func (s *Storage) createOrGetStorageUnit(address uint64) []byte {
	baseAddr, _ := s.parseAddress(address)
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

var (
	_ Accessor    = (*Storage)(nil)
	_ BatchReader = (*Storage)(nil)
)
