package layout

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/sarchlab/memsync/remote"
)

// ErrDecode is wrapped by every DecodeError.
var ErrDecode = errors.New("layout: cannot convert value")

// A DecodeError reports bytes that cannot represent a value of the field, or
// a value that cannot be encoded into the field.
type DecodeError struct {
	Op     string
	Field  string
	Kind   Kind
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("layout: %s %s field %q: %s", e.Op, e.Kind, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrDecode) hold for every DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func codecErr(op string, f Field, format string, args ...any) error {
	return &DecodeError{
		Op:     op,
		Field:  f.Name,
		Kind:   f.Kind,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Decode converts the bytes of a field to its Go value. The Go type depends
// on the kind and width:
//
//	int      int8, int16, int32, int64
//	uint     uint8, uint16, uint32, uint64
//	float    float32, float64
//	bool     bool (any non-zero byte is true)
//	text     string, up to the first NUL
//	enum     EnumValue, unknown values included
//	vector2  Vector2
//	vector3  Vector3
//	quat     Quaternion
//	pointer  remote.Address
func Decode(f Field, raw []byte, order binary.ByteOrder) (any, error) {
	if len(raw) != f.Width {
		return nil, codecErr("decode", f, "expected %d bytes, got %d", f.Width, len(raw))
	}

	switch f.Kind {
	case KindInt:
		switch f.Width {
		case 1:
			return int8(raw[0]), nil
		case 2:
			return int16(order.Uint16(raw)), nil
		case 4:
			return int32(order.Uint32(raw)), nil
		default:
			return int64(order.Uint64(raw)), nil
		}
	case KindUint:
		return decodeUint(raw, order), nil
	case KindFloat:
		if f.Width == 4 {
			return math.Float32frombits(order.Uint32(raw)), nil
		}

		return math.Float64frombits(order.Uint64(raw)), nil
	case KindBool:
		return raw[0] != 0, nil
	case KindText:
		end := bytes.IndexByte(raw, 0)
		if end < 0 {
			end = len(raw)
		}

		return string(raw[:end]), nil
	case KindEnum:
		return EnumValue{Raw: uint32(widen(decodeUint(raw, order))), Set: f.Enum}, nil
	case KindVector2:
		return Vector2{X: f32(raw, 0, order), Y: f32(raw, 4, order)}, nil
	case KindVector3:
		return Vector3{
			X: f32(raw, 0, order), Y: f32(raw, 4, order), Z: f32(raw, 8, order),
		}, nil
	case KindQuaternion:
		return Quaternion{
			X: f32(raw, 0, order), Y: f32(raw, 4, order),
			Z: f32(raw, 8, order), W: f32(raw, 12, order),
		}, nil
	case KindPointer:
		return remote.Address(order.Uint64(raw)), nil
	default:
		return nil, codecErr("decode", f, "kind has no scalar value")
	}
}

// Encode converts v to exactly f.Width bytes. Integer fields accept any Go
// integer type, including named ones, as long as the value fits. Text longer
// than f.Width-1 bytes is truncated so the buffer always keeps its NUL.
func Encode(f Field, v any, order binary.ByteOrder) ([]byte, error) {
	out := make([]byte, f.Width)

	switch f.Kind {
	case KindInt:
		i, ok := signedValue(v)
		if !ok {
			return nil, codecErr("encode", f, "cannot use %T as an integer", v)
		}

		bits := uint(f.Width * 8)
		if bits < 64 && (i < -(1<<(bits-1)) || i >= 1<<(bits-1)) {
			return nil, codecErr("encode", f, "%d overflows %d bytes", i, f.Width)
		}

		putUint(out, uint64(i), order)
	case KindUint, KindEnum:
		u, ok := unsignedValue(v)
		if !ok {
			return nil, codecErr("encode", f, "cannot use %T as an unsigned integer", v)
		}

		bits := uint(f.Width * 8)
		if bits < 64 && u >= 1<<bits {
			return nil, codecErr("encode", f, "%d overflows %d bytes", u, f.Width)
		}

		putUint(out, u, order)
	case KindFloat:
		x, ok := floatValue(v)
		if !ok {
			return nil, codecErr("encode", f, "cannot use %T as a float", v)
		}

		if f.Width == 4 {
			order.PutUint32(out, math.Float32bits(float32(x)))
		} else {
			order.PutUint64(out, math.Float64bits(x))
		}
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, codecErr("encode", f, "cannot use %T as a bool", v)
		}

		if b {
			out[0] = 1
		}
	case KindText:
		s, ok := v.(string)
		if !ok {
			return nil, codecErr("encode", f, "cannot use %T as text", v)
		}

		copy(out[:f.Width-1], s)
	case KindVector2:
		vec, ok := v.(Vector2)
		if !ok {
			return nil, codecErr("encode", f, "cannot use %T as a Vector2", v)
		}

		putF32(out, order, vec.X, vec.Y)
	case KindVector3:
		vec, ok := v.(Vector3)
		if !ok {
			return nil, codecErr("encode", f, "cannot use %T as a Vector3", v)
		}

		putF32(out, order, vec.X, vec.Y, vec.Z)
	case KindQuaternion:
		q, ok := v.(Quaternion)
		if !ok {
			return nil, codecErr("encode", f, "cannot use %T as a Quaternion", v)
		}

		putF32(out, order, q.X, q.Y, q.Z, q.W)
	case KindPointer:
		u, ok := unsignedValue(v)
		if !ok {
			return nil, codecErr("encode", f, "cannot use %T as a pointer", v)
		}

		order.PutUint64(out, u)
	default:
		return nil, codecErr("encode", f, "kind has no scalar value")
	}

	return out, nil
}

// Convert turns a decoded value into T. Values that already are a T are
// returned as is. Numbers convert to other numeric types, including named
// ones, and an EnumValue converts to any integer type through its raw
// value.
func Convert[T any](v any) (T, error) {
	var zero T

	if t, ok := v.(T); ok {
		return t, nil
	}

	target := reflect.TypeOf((*T)(nil)).Elem()

	if e, ok := v.(EnumValue); ok {
		v = e.Raw
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !isNumericKind(rv.Kind()) || !isNumericKind(target.Kind()) {
		return zero, &DecodeError{
			Op:     "convert",
			Reason: fmt.Sprintf("cannot use %T as %s", v, target),
		}
	}

	return rv.Convert(target).Interface().(T), nil
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func decodeUint(raw []byte, order binary.ByteOrder) any {
	switch len(raw) {
	case 1:
		return raw[0]
	case 2:
		return order.Uint16(raw)
	case 4:
		return order.Uint32(raw)
	default:
		return order.Uint64(raw)
	}
}

func widen(v any) uint64 {
	u, _ := unsignedValue(v)
	return u
}

func putUint(out []byte, u uint64, order binary.ByteOrder) {
	switch len(out) {
	case 1:
		out[0] = byte(u)
	case 2:
		order.PutUint16(out, uint16(u))
	case 4:
		order.PutUint32(out, uint32(u))
	default:
		order.PutUint64(out, u)
	}
}

func f32(raw []byte, at int, order binary.ByteOrder) float32 {
	return math.Float32frombits(order.Uint32(raw[at : at+4]))
}

func putF32(out []byte, order binary.ByteOrder, values ...float32) {
	for i, v := range values {
		order.PutUint32(out[i*4:], math.Float32bits(v))
	}
}

func signedValue(v any) (int64, bool) {
	if e, ok := v.(EnumValue); ok {
		return int64(e.Raw), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}

		return int64(u), true
	default:
		return 0, false
	}
}

func unsignedValue(v any) (uint64, bool) {
	if e, ok := v.(EnumValue); ok {
		return uint64(e.Raw), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		if i < 0 {
			return 0, false
		}

		return uint64(i), true
	default:
		return 0, false
	}
}

func floatValue(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
