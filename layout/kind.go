package layout

import "fmt"

// Kind defines how the bytes of a field are interpreted.
type Kind int

// Value kinds.
const (
	KindInvalid Kind = iota
	KindInt
	KindUint
	KindFloat
	KindBool
	KindText
	KindEnum
	KindVector2
	KindVector3
	KindQuaternion
	KindRecord
	KindPointer
)

var kindNames = map[Kind]string{
	KindInt:        "int",
	KindUint:       "uint",
	KindFloat:      "float",
	KindBool:       "bool",
	KindText:       "text",
	KindEnum:       "enum",
	KindVector2:    "vector2",
	KindVector3:    "vector3",
	KindQuaternion: "quaternion",
	KindRecord:     "record",
	KindPointer:    "pointer",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}

	return KindInvalid, fmt.Errorf("layout: unknown kind %q", name)
}

// validWidth reports whether width can hold a value of kind k.
func (k Kind) validWidth(width int) bool {
	switch k {
	case KindInt, KindUint:
		return width == 1 || width == 2 || width == 4 || width == 8
	case KindFloat:
		return width == 4 || width == 8
	case KindBool:
		return width == 1
	case KindText:
		return width >= 1
	case KindEnum:
		return width == 1 || width == 2 || width == 4
	case KindVector2:
		return width == 8
	case KindVector3:
		return width == 12
	case KindQuaternion:
		return width == 16
	case KindPointer:
		return width == 8
	case KindRecord:
		return width >= 0
	default:
		return false
	}
}

// defaultWidth returns the width used when a field omits it.
func (k Kind) defaultWidth() int {
	switch k {
	case KindBool:
		return 1
	case KindVector2, KindPointer:
		return 8
	case KindVector3:
		return 12
	case KindQuaternion:
		return 16
	default:
		return 0
	}
}
