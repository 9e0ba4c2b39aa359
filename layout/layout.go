// Package layout describes where the fields of a record live inside remote
// memory and how their bytes translate to Go values.
//
// A Layout is a static table, built once with a Builder or loaded from a
// schema file. It holds no addresses and performs no I/O; binding a layout
// to an address is the job of the binder package.
package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLayout is wrapped by every error that reports a malformed layout.
var ErrInvalidLayout = errors.New("layout: invalid layout")

// A Field is one named member of a record at a fixed offset from the record
// base.
type Field struct {
	Name   string
	Offset uint64
	Width  int
	Kind   Kind

	// Child is the layout of a nested record or of the record a pointer
	// points to.
	Child *Layout

	// Deref is added to the dereferenced pointer to get the base of the
	// pointed-to record.
	Deref uint64

	// Enum names the known values of an enumerated field.
	Enum *EnumSet

	// Epsilon overrides the tolerance used to compare floating point values.
	Epsilon float64
}

// End returns the offset right after the field.
func (f Field) End() uint64 {
	return f.Offset + uint64(f.Width)
}

// IsScalar reports whether the field is bound to a single cell.
func (f Field) IsScalar() bool {
	return f.Kind != KindRecord
}

// A Layout is the ordered set of fields of one record type.
type Layout struct {
	name   string
	span   uint64
	order  binary.ByteOrder
	fields []Field
	index  map[string]int
}

// Name returns the record type name.
func (l *Layout) Name() string {
	return l.name
}

// Span returns the total number of bytes covered by the record.
func (l *Layout) Span() uint64 {
	return l.span
}

// Order returns the byte order of the target.
func (l *Layout) Order() binary.ByteOrder {
	return l.order
}

// NumFields returns the number of direct fields.
func (l *Layout) NumFields() int {
	return len(l.fields)
}

// Fields returns the direct fields in declaration order.
func (l *Layout) Fields() []Field {
	out := make([]Field, len(l.fields))
	copy(out, l.fields)

	return out
}

// Field returns the direct field with the given name.
func (l *Layout) Field(name string) (Field, bool) {
	i, ok := l.index[name]
	if !ok {
		return Field{}, false
	}

	return l.fields[i], true
}

// Lookup resolves a dotted path such as "Equipment.Head" and returns the
// field together with its offset from the base of l. Paths may only cross
// nested records; the target of a pointer has its own base.
func (l *Layout) Lookup(path string) (Field, uint64, error) {
	parts := strings.Split(path, ".")
	current := l
	offset := uint64(0)

	for i, part := range parts {
		f, ok := current.Field(part)
		if !ok {
			return Field{}, 0, fmt.Errorf("layout %q: no field %q", l.name, path)
		}

		offset += f.Offset
		if i == len(parts)-1 {
			return f, offset, nil
		}

		if f.Kind != KindRecord {
			return Field{}, 0, fmt.Errorf(
				"layout %q: path %q crosses %s field %q",
				l.name, path, f.Kind, f.Name)
		}

		current = f.Child
	}

	return Field{}, 0, fmt.Errorf("layout %q: empty path", l.name)
}

// AbsoluteOffset returns the offset of the field at path from the base of l.
func (l *Layout) AbsoluteOffset(path string) (uint64, error) {
	_, off, err := l.Lookup(path)
	return off, err
}

// Walk calls fn for every scalar field reachable through nested records, in
// declaration order, with the dotted path and the offset from the base of l.
// Pointer fields are reported but not followed.
func (l *Layout) Walk(fn func(path string, f Field, offset uint64)) {
	l.walk("", 0, fn)
}

func (l *Layout) walk(prefix string, base uint64, fn func(string, Field, uint64)) {
	for _, f := range l.fields {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}

		if f.Kind == KindRecord {
			f.Child.walk(path, base+f.Offset, fn)
			continue
		}

		fn(path, f, base+f.Offset)
	}
}
