package cell

import "github.com/sarchlab/memsync/remote"

// An AddressFunc returns the current address of a cell. It is called on
// every access so that addresses behind pointers are never cached.
type AddressFunc func() (remote.Address, error)

// At returns an AddressFunc for a fixed address.
func At(addr remote.Address) AddressFunc {
	return func() (remote.Address, error) {
		return addr, nil
	}
}

// Resolved returns an AddressFunc that resolves base through acc and adds
// offset.
func Resolved(acc remote.Accessor, base remote.Resolver, offset uint64) AddressFunc {
	if f, ok := base.(remote.Fixed); ok {
		return At(remote.Address(f).Add(offset))
	}

	return func() (remote.Address, error) {
		b, err := base.Resolve(acc)
		if err != nil {
			return 0, err
		}

		return b.Add(offset), nil
	}
}
