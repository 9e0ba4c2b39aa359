// Package remote is the only part of memsync that touches the memory of the
// target process. Everything above it treats every access as potentially
// failing: an address that was valid a tick ago may be unmapped now.
package remote

import (
	"fmt"
	"sync"
)

// Address identifies a byte in the address space of the target process. It
// is meaningless after the target exits or frees the region.
type Address uint64

// Add returns the address offset bytes after a.
func (a Address) Add(offset uint64) Address {
	return a + Address(offset)
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// Accessor reads and writes byte ranges of one attached process.
//
// Implementations serialize their own calls: the accessor is the lock
// boundary shared by every cell bound to the process.
type Accessor interface {
	// Read returns exactly length bytes starting at addr, or an AccessFault.
	Read(addr Address, length int) ([]byte, error)

	// Write stores data at addr, or returns an AccessFault. A failed write may
	// have been partially applied by the target; callers must not assume
	// either outcome.
	Write(addr Address, data []byte) error
}

// A Span is one address range of a batched read.
type Span struct {
	Addr   Address
	Length int
}

// BatchReader is implemented by accessors that can read several ranges in one
// call. Batched reads are an optimization; they are not atomic with respect
// to the target process.
type BatchReader interface {
	ReadBatch(spans []Span) ([][]byte, error)
}

// ReadSpans reads all spans, using a batched read when a supports it.
func ReadSpans(a Accessor, spans []Span) ([][]byte, error) {
	if br, ok := a.(BatchReader); ok {
		return br.ReadBatch(spans)
	}

	out := make([][]byte, len(spans))
	for i, s := range spans {
		data, err := a.Read(s.Addr, s.Length)
		if err != nil {
			return nil, err
		}

		out[i] = data
	}

	return out, nil
}

type synchronized struct {
	mu    sync.Mutex
	inner Accessor
}

// Synchronized wraps an accessor that is not safe for concurrent use so that
// all calls through the returned accessor are serialized.
func Synchronized(a Accessor) Accessor {
	if s, ok := a.(*synchronized); ok {
		return s
	}

	return &synchronized{inner: a}
}

func (s *synchronized) Read(addr Address, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.inner.Read(addr, length)
	if err != nil {
		return nil, NewFault("read", addr, length, err)
	}

	return data, nil
}

func (s *synchronized) Write(addr Address, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.inner.Write(addr, data); err != nil {
		return NewFault("write", addr, len(data), err)
	}

	return nil
}

func (s *synchronized) ReadBatch(spans []Span) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ReadSpans(s.inner, spans)
}
