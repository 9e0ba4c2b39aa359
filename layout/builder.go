package layout

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// Builder can build layouts.
//
//	actor := layout.MakeBuilder("Actor").
//		WithText("Name", 0x30, 30).
//		WithInt("ActorId", 0x74, 4).
//		WithRecord("Equipment", 0x1708, equipment).
//		MustBuild()
type Builder struct {
	name   string
	span   uint64
	order  binary.ByteOrder
	fields []Field
}

// MakeBuilder returns a builder for the record type with the given name.
func MakeBuilder(name string) Builder {
	return Builder{
		name:  name,
		order: binary.LittleEndian,
	}
}

// WithSpan sets the total size of the record. Without it the span ends at
// the last byte of the last field.
func (b Builder) WithSpan(span uint64) Builder {
	b.span = span
	return b
}

// WithByteOrder sets the byte order of the target.
func (b Builder) WithByteOrder(order binary.ByteOrder) Builder {
	b.order = order
	return b
}

// WithField appends a field.
func (b Builder) WithField(f Field) Builder {
	b.fields = append(b.fields[:len(b.fields):len(b.fields)], f)
	return b
}

// WithInt appends a signed integer field.
func (b Builder) WithInt(name string, offset uint64, width int) Builder {
	return b.WithField(Field{Name: name, Offset: offset, Width: width, Kind: KindInt})
}

// WithUint appends an unsigned integer field.
func (b Builder) WithUint(name string, offset uint64, width int) Builder {
	return b.WithField(Field{Name: name, Offset: offset, Width: width, Kind: KindUint})
}

// WithFloat32 appends a float32 field.
func (b Builder) WithFloat32(name string, offset uint64) Builder {
	return b.WithField(Field{Name: name, Offset: offset, Width: 4, Kind: KindFloat})
}

// WithFloat64 appends a float64 field.
func (b Builder) WithFloat64(name string, offset uint64) Builder {
	return b.WithField(Field{Name: name, Offset: offset, Width: 8, Kind: KindFloat})
}

// WithBool appends a one byte boolean flag.
func (b Builder) WithBool(name string, offset uint64) Builder {
	return b.WithField(Field{Name: name, Offset: offset, Width: 1, Kind: KindBool})
}

// WithText appends a fixed-length, NUL-terminated text buffer.
func (b Builder) WithText(name string, offset uint64, width int) Builder {
	return b.WithField(Field{Name: name, Offset: offset, Width: width, Kind: KindText})
}

// WithEnum appends an enumerated field. set may be nil.
func (b Builder) WithEnum(name string, offset uint64, width int, set *EnumSet) Builder {
	return b.WithField(Field{
		Name: name, Offset: offset, Width: width, Kind: KindEnum, Enum: set,
	})
}

// WithVector2 appends two packed float32 values.
func (b Builder) WithVector2(name string, offset uint64) Builder {
	return b.WithField(Field{Name: name, Offset: offset, Width: 8, Kind: KindVector2})
}

// WithVector3 appends three packed float32 values.
func (b Builder) WithVector3(name string, offset uint64) Builder {
	return b.WithField(Field{Name: name, Offset: offset, Width: 12, Kind: KindVector3})
}

// WithQuaternion appends four packed float32 values.
func (b Builder) WithQuaternion(name string, offset uint64) Builder {
	return b.WithField(Field{Name: name, Offset: offset, Width: 16, Kind: KindQuaternion})
}

// WithRecord embeds child at offset.
func (b Builder) WithRecord(name string, offset uint64, child *Layout) Builder {
	f := Field{Name: name, Offset: offset, Kind: KindRecord, Child: child}
	if child != nil {
		f.Width = int(child.Span())
	}

	return b.WithField(f)
}

// WithPointer appends a pointer to a record of layout child. The child base
// is the pointer value plus deref.
func (b Builder) WithPointer(name string, offset uint64, child *Layout, deref uint64) Builder {
	return b.WithField(Field{
		Name: name, Offset: offset, Width: 8, Kind: KindPointer,
		Child: child, Deref: deref,
	})
}

// Build validates the fields and creates the layout.
func (b Builder) Build() (*Layout, error) {
	if b.name == "" {
		return nil, fmt.Errorf("%w: layout without a name", ErrInvalidLayout)
	}

	l := &Layout{
		name:   b.name,
		order:  b.order,
		fields: make([]Field, 0, len(b.fields)),
		index:  make(map[string]int, len(b.fields)),
	}

	end := uint64(0)
	for _, f := range b.fields {
		f, err := b.normalize(f)
		if err != nil {
			return nil, err
		}

		if _, dup := l.index[f.Name]; dup {
			return nil, b.fieldErr(f, "duplicated field name")
		}

		l.index[f.Name] = len(l.fields)
		l.fields = append(l.fields, f)
		end = max(end, f.End())
	}

	l.span = b.span
	if l.span == 0 {
		l.span = end
	}

	if end > l.span {
		return nil, fmt.Errorf("%w: layout %q: fields end at 0x%x, beyond span 0x%x",
			ErrInvalidLayout, b.name, end, l.span)
	}

	if err := b.mustNotOverlap(l.fields); err != nil {
		return nil, err
	}

	return l, nil
}

// MustBuild is like Build but panics on an invalid layout. It is meant for
// layouts declared in package-level variables.
func (b Builder) MustBuild() *Layout {
	l, err := b.Build()
	if err != nil {
		panic(err)
	}

	return l
}

func (b Builder) normalize(f Field) (Field, error) {
	if f.Name == "" {
		return f, b.fieldErr(f, "field without a name")
	}

	if strings.Contains(f.Name, ".") {
		return f, b.fieldErr(f, "field name contains the path separator \".\"")
	}

	if f.Width == 0 {
		f.Width = f.Kind.defaultWidth()
	}

	switch f.Kind {
	case KindRecord:
		if f.Child == nil {
			return f, b.fieldErr(f, "record field without a child layout")
		}

		f.Width = int(f.Child.Span())
	case KindPointer:
		if f.Child == nil {
			return f, b.fieldErr(f, "pointer field without a child layout")
		}
	}

	if !f.Kind.validWidth(f.Width) {
		return f, b.fieldErr(f, fmt.Sprintf("width %d is not valid for %s", f.Width, f.Kind))
	}

	return f, nil
}

func (b Builder) mustNotOverlap(fields []Field) error {
	sorted := make([]Field, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i := 1; i < len(sorted); i++ {
		prev, curr := sorted[i-1], sorted[i]
		if curr.Offset < prev.End() {
			return b.fieldErr(curr, fmt.Sprintf("overlaps field %q", prev.Name))
		}
	}

	return nil
}

func (b Builder) fieldErr(f Field, msg string) error {
	return fmt.Errorf("%w: layout %q: field %q: %s", ErrInvalidLayout, b.name, f.Name, msg)
}
