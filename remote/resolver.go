package remote

import "encoding/binary"

// PointerSize is the width of a pointer in the target process.
const PointerSize = 8

// A Resolver yields the base address of a record. It is supplied by the
// attach collaborator and is evaluated again on every access, so a resolver
// that chases pointers always follows the target's current pointers.
type Resolver interface {
	Resolve(a Accessor) (Address, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(a Accessor) (Address, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(a Accessor) (Address, error) {
	return f(a)
}

// Fixed is a Resolver that always yields the same address.
type Fixed Address

// Resolve returns the address itself.
func (f Fixed) Resolve(Accessor) (Address, error) {
	return Address(f), nil
}

// A PointerChain resolves Base followed by a list of offsets. Every offset
// except the last is added to the current address and the pointer stored
// there is loaded; the last offset is only added. A chain without offsets
// resolves to Base. Pointers of a chain are read little endian, as the
// target stores them.
type PointerChain struct {
	Base    Address
	Offsets []uint64
}

// Chain creates a PointerChain.
func Chain(base Address, offsets ...uint64) PointerChain {
	return PointerChain{Base: base, Offsets: offsets}
}

// Resolve walks the chain.
func (c PointerChain) Resolve(a Accessor) (Address, error) {
	addr := c.Base
	if len(c.Offsets) == 0 {
		return addr, nil
	}

	for _, off := range c.Offsets[:len(c.Offsets)-1] {
		next, err := ReadPointer(a, addr.Add(off), binary.LittleEndian)
		if err != nil {
			return 0, err
		}

		addr = next
	}

	return addr.Add(c.Offsets[len(c.Offsets)-1]), nil
}

// ReadPointer loads the pointer stored at addr in the given byte order. A
// zero pointer is reported as an AccessFault caused by ErrNullPointer.
func ReadPointer(a Accessor, addr Address, order binary.ByteOrder) (Address, error) {
	raw, err := a.Read(addr, PointerSize)
	if err != nil {
		return 0, NewFault("read", addr, PointerSize, err)
	}

	ptr := Address(order.Uint64(raw))
	if ptr == 0 {
		return 0, NewFault("dereference", addr, PointerSize, ErrNullPointer)
	}

	return ptr, nil
}

// Deref resolves to the pointer stored at base+offset in the given byte
// order, plus deref. It is the base of a record reached through a pointer
// field.
func Deref(base Resolver, offset, deref uint64, order binary.ByteOrder) Resolver {
	return ResolverFunc(func(a Accessor) (Address, error) {
		b, err := base.Resolve(a)
		if err != nil {
			return 0, err
		}

		ptr, err := ReadPointer(a, b.Add(offset), order)
		if err != nil {
			return 0, err
		}

		return ptr.Add(deref), nil
	})
}

// Offset resolves to base+offset.
func Offset(base Resolver, offset uint64) Resolver {
	if f, ok := base.(Fixed); ok {
		return Fixed(Address(f).Add(offset))
	}

	return ResolverFunc(func(a Accessor) (Address, error) {
		b, err := base.Resolve(a)
		if err != nil {
			return 0, err
		}

		return b.Add(offset), nil
	})
}
