// Package idgen provides the ID generators used by memsync.
package idgen

import (
	"sync/atomic"

	"github.com/rs/xid"
)

// ID is a unique identifier represented as a uint64.
type ID uint64

// Generator produces unique identifiers.
type Generator interface {
	Generate() ID
}

// New returns a sequential generator whose first emitted ID is "1".
func New() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() ID {
	return ID(atomic.AddUint64(&g.next, 1))
}

// SessionID returns a globally unique, sortable string that identifies one
// attach session. Unlike Generator IDs it is not deterministic.
func SessionID() string {
	return xid.New().String()
}
