package layout

import (
	"fmt"
	"sort"
)

// Vector2 is two packed float32 values.
type Vector2 struct {
	X, Y float32
}

// Vector3 is three packed float32 values.
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion is four packed float32 values in X, Y, Z, W order.
type Quaternion struct {
	X, Y, Z, W float32
}

// An EnumSet names the known values of an enumerated field. Values outside
// the set are legal; the set only documents what is known about the target.
type EnumSet struct {
	name   string
	names  map[uint32]string
	values []uint32
}

// NewEnumSet creates an EnumSet.
func NewEnumSet(name string, names map[uint32]string) *EnumSet {
	s := &EnumSet{
		name:  name,
		names: make(map[uint32]string, len(names)),
	}

	for v, n := range names {
		s.names[v] = n
		s.values = append(s.values, v)
	}

	sort.Slice(s.values, func(i, j int) bool { return s.values[i] < s.values[j] })

	return s
}

// Name returns the name of the enum type.
func (s *EnumSet) Name() string {
	if s == nil {
		return ""
	}

	return s.name
}

// Lookup returns the name of a raw value.
func (s *EnumSet) Lookup(raw uint32) (string, bool) {
	if s == nil {
		return "", false
	}

	n, ok := s.names[raw]

	return n, ok
}

// Values returns the known raw values in ascending order.
func (s *EnumSet) Values() []uint32 {
	if s == nil {
		return nil
	}

	out := make([]uint32, len(s.values))
	copy(out, s.values)

	return out
}

// EnumValue is the decoded value of an enumerated field. The raw value is
// passed through unchanged, known or not.
type EnumValue struct {
	Raw uint32
	Set *EnumSet
}

// Known reports whether the raw value has a name in the set.
func (v EnumValue) Known() bool {
	_, ok := v.Set.Lookup(v.Raw)
	return ok
}

func (v EnumValue) String() string {
	if n, ok := v.Set.Lookup(v.Raw); ok {
		return n
	}

	return fmt.Sprintf("%d", v.Raw)
}
