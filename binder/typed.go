package binder

import (
	"github.com/sarchlab/memsync/bus"
	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/instrumentation/hooking"
	"github.com/sarchlab/memsync/layout"
)

// Get returns the last known value of the field at path as a T. Numeric
// values convert to any numeric T.
func Get[T any](b *Binder, path string) (T, error) {
	var zero T

	c, err := b.Field(path)
	if err != nil {
		return zero, err
	}

	if c.Disposed() {
		return zero, cell.ErrDisposed
	}

	return layout.Convert[T](c.Value())
}

// Set writes v to the field at path right away.
func Set[T any](b *Binder, path string, v T) error {
	return SetFrom(b, path, v, nil)
}

// SetFrom is like Set but tags the resulting change event with origin.
func SetFrom[T any](b *Binder, path string, v T, origin any) error {
	c, err := b.Field(path)
	if err != nil {
		return err
	}

	return c.WriteFrom(v, origin)
}

// Typed returns a view of the field at path as a bus source of T.
func Typed[T any](b *Binder, path string) (bus.Source[T], error) {
	c, err := b.Field(path)
	if err != nil {
		return nil, err
	}

	return typedField[T]{c: c}, nil
}

// BindProperty links the field at path to a host property.
func BindProperty[T any](
	b *Binder,
	path string,
	p bus.Property[T],
	mode bus.Mode,
	opts ...bus.LinkOption,
) (*bus.Binding[T], error) {
	src, err := Typed[T](b, path)
	if err != nil {
		return nil, err
	}

	return bus.Link(src, p, mode, opts...), nil
}

type typedField[T any] struct {
	c *cell.Memory[any]
}

func (f typedField[T]) Value() T {
	v, _ := layout.Convert[T](f.c.Value())
	return v
}

func (f typedField[T]) WriteFrom(v T, origin any) error {
	return f.c.WriteFrom(v, origin)
}

func (f typedField[T]) OnChange(fn func(cell.ChangeEvent[T])) *hooking.Subscription {
	return f.c.OnChange(func(e cell.ChangeEvent[any]) {
		oldV, _ := layout.Convert[T](e.Old)
		newV, _ := layout.Convert[T](e.New)

		fn(cell.ChangeEvent[T]{
			Field:  e.Field,
			Old:    oldV,
			New:    newV,
			Source: e.Source,
			Origin: e.Origin,
		})
	})
}
