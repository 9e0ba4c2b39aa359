package layout

import (
	"strconv"
	"strings"
)

// Parse reads the text form of a value of field f, as typed on a command
// line. Integers accept 0x, 0o and 0b prefixes, enums accept the names of
// their set, and vectors are comma separated. The result can be passed to
// Encode.
func Parse(f Field, s string) (any, error) {
	s = strings.TrimSpace(s)

	switch f.Kind {
	case KindInt:
		i, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, codecErr("parse", f, "%q is not an integer", s)
		}

		return i, nil
	case KindUint, KindPointer:
		u, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, codecErr("parse", f, "%q is not an unsigned integer", s)
		}

		return u, nil
	case KindEnum:
		for _, raw := range f.Enum.Values() {
			if name, _ := f.Enum.Lookup(raw); strings.EqualFold(name, s) {
				return EnumValue{Raw: raw, Set: f.Enum}, nil
			}
		}

		u, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return nil, codecErr("parse", f, "%q is neither a name of %s nor a number",
				s, f.Enum.Name())
		}

		return EnumValue{Raw: uint32(u), Set: f.Enum}, nil
	case KindFloat:
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, codecErr("parse", f, "%q is not a number", s)
		}

		return x, nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, codecErr("parse", f, "%q is not a bool", s)
		}

		return b, nil
	case KindText:
		return s, nil
	case KindVector2:
		c, err := parseFloats(f, s, 2)
		if err != nil {
			return nil, err
		}

		return Vector2{X: c[0], Y: c[1]}, nil
	case KindVector3:
		c, err := parseFloats(f, s, 3)
		if err != nil {
			return nil, err
		}

		return Vector3{X: c[0], Y: c[1], Z: c[2]}, nil
	case KindQuaternion:
		c, err := parseFloats(f, s, 4)
		if err != nil {
			return nil, err
		}

		return Quaternion{X: c[0], Y: c[1], Z: c[2], W: c[3]}, nil
	default:
		return nil, codecErr("parse", f, "kind has no scalar value")
	}
}

func parseFloats(f Field, s string, n int) ([]float32, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, codecErr("parse", f, "expected %d comma separated numbers, got %q", n, s)
	}

	out := make([]float32, n)
	for i, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, codecErr("parse", f, "%q is not a number", p)
		}

		out[i] = float32(x)
	}

	return out, nil
}
