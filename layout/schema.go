package layout

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// A Schema is a versioned set of layouts keyed to one build of the target.
type Schema struct {
	Version string

	layouts map[string]*Layout
	names   []string
}

// Layout returns the layout with the given name.
func (s *Schema) Layout(name string) (*Layout, bool) {
	l, ok := s.layouts[name]
	return l, ok
}

// Names returns the layout names in file order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)

	return out
}

// Hex is an unsigned number that may be written in decimal or with a 0x, 0o
// or 0b prefix.
type Hex uint64

// UnmarshalYAML parses the number with base detection.
func (h *Hex) UnmarshalYAML(node *yaml.Node) error {
	v, err := strconv.ParseUint(node.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
	}

	*h = Hex(v)

	return nil
}

type schemaDoc struct {
	Version   string      `yaml:"version"`
	ByteOrder string      `yaml:"byte_order"`
	Layouts   []layoutDoc `yaml:"layouts"`
}

type layoutDoc struct {
	Name   string     `yaml:"name"`
	Span   Hex        `yaml:"span"`
	Fields []fieldDoc `yaml:"fields"`
}

type fieldDoc struct {
	Name    string   `yaml:"name"`
	Offset  Hex      `yaml:"offset"`
	Width   int      `yaml:"width"`
	Kind    string   `yaml:"kind"`
	Child   string   `yaml:"child"`
	Deref   Hex      `yaml:"deref"`
	Epsilon float64  `yaml:"epsilon"`
	Enum    *enumDoc `yaml:"enum"`
}

type enumDoc struct {
	Name   string            `yaml:"name"`
	Values map[uint32]string `yaml:"values"`
}

// LoadSchemaFile reads a YAML schema from a file.
func LoadSchemaFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("layout: open schema: %w", err)
	}
	defer f.Close()

	return LoadSchema(f)
}

// LoadSchema reads a YAML schema. Layouts may reference each other by name
// as the child of record and pointer fields, in any order, as long as the
// references do not form a cycle.
func LoadSchema(r io.Reader) (*Schema, error) {
	doc := schemaDoc{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("layout: parse schema: %w", err)
	}

	order, err := parseByteOrder(doc.ByteOrder)
	if err != nil {
		return nil, err
	}

	sb := &schemaBuilder{
		order:    order,
		docs:     make(map[string]layoutDoc, len(doc.Layouts)),
		built:    make(map[string]*Layout, len(doc.Layouts)),
		visiting: make(map[string]bool),
	}

	s := &Schema{Version: doc.Version, layouts: sb.built}
	for _, ld := range doc.Layouts {
		if _, dup := sb.docs[ld.Name]; dup {
			return nil, fmt.Errorf("%w: layout %q declared twice", ErrInvalidLayout, ld.Name)
		}

		sb.docs[ld.Name] = ld
		s.names = append(s.names, ld.Name)
	}

	for _, name := range s.names {
		if _, err := sb.build(name); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func parseByteOrder(name string) (binary.ByteOrder, error) {
	switch name {
	case "", "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("%w: unknown byte order %q", ErrInvalidLayout, name)
	}
}

type schemaBuilder struct {
	order    binary.ByteOrder
	docs     map[string]layoutDoc
	built    map[string]*Layout
	visiting map[string]bool
}

func (sb *schemaBuilder) build(name string) (*Layout, error) {
	if l, ok := sb.built[name]; ok {
		return l, nil
	}

	ld, ok := sb.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown layout %q", ErrInvalidLayout, name)
	}

	if sb.visiting[name] {
		return nil, fmt.Errorf("%w: layout %q references itself", ErrInvalidLayout, name)
	}

	sb.visiting[name] = true
	defer delete(sb.visiting, name)

	b := MakeBuilder(ld.Name).
		WithSpan(uint64(ld.Span)).
		WithByteOrder(sb.order)

	for _, fd := range ld.Fields {
		f, err := sb.field(ld.Name, fd)
		if err != nil {
			return nil, err
		}

		b = b.WithField(f)
	}

	l, err := b.Build()
	if err != nil {
		return nil, err
	}

	sb.built[name] = l

	return l, nil
}

func (sb *schemaBuilder) field(layoutName string, fd fieldDoc) (Field, error) {
	if strings.Contains(fd.Name, ".") {
		return Field{}, fmt.Errorf("%w: layout %q: field %q: name contains \".\"",
			ErrInvalidLayout, layoutName, fd.Name)
	}

	kind, err := ParseKind(fd.Kind)
	if err != nil {
		return Field{}, fmt.Errorf("%w: layout %q: field %q: %v",
			ErrInvalidLayout, layoutName, fd.Name, err)
	}

	f := Field{
		Name:    fd.Name,
		Offset:  uint64(fd.Offset),
		Width:   fd.Width,
		Kind:    kind,
		Deref:   uint64(fd.Deref),
		Epsilon: fd.Epsilon,
	}

	if fd.Enum != nil {
		f.Enum = NewEnumSet(fd.Enum.Name, fd.Enum.Values)
	}

	if fd.Child != "" {
		child, err := sb.build(fd.Child)
		if err != nil {
			return Field{}, err
		}

		f.Child = child
	}

	return f, nil
}
