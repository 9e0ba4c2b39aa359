package layout

import (
	"math"
	"reflect"
)

// DefaultEpsilon is the relative tolerance used to compare floating point
// fields that do not set their own. Differences below it are treated as
// noise from the target recomputing the same value.
const DefaultEpsilon = 1e-5

// Equal compares two values of field f. Integers, flags, text, enums and
// pointers compare exactly. Floats and vectors compare within the field's
// epsilon, relative to the magnitude of the values and never tighter than
// the epsilon itself.
func Equal(f Field, a, b any) bool {
	eps := f.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}

	switch f.Kind {
	case KindFloat:
		x, okA := floatValue(a)
		y, okB := floatValue(b)
		if okA && okB {
			return floatsEqual(x, y, eps)
		}
	case KindVector2:
		va, okA := a.(Vector2)
		vb, okB := b.(Vector2)
		if okA && okB {
			return float32sEqual(eps, va.X, vb.X, va.Y, vb.Y)
		}
	case KindVector3:
		va, okA := a.(Vector3)
		vb, okB := b.(Vector3)
		if okA && okB {
			return float32sEqual(eps, va.X, vb.X, va.Y, vb.Y, va.Z, vb.Z)
		}
	case KindQuaternion:
		qa, okA := a.(Quaternion)
		qb, okB := b.(Quaternion)
		if okA && okB {
			return float32sEqual(eps, qa.X, qb.X, qa.Y, qb.Y, qa.Z, qb.Z, qa.W, qb.W)
		}
	case KindEnum:
		ea, okA := a.(EnumValue)
		eb, okB := b.(EnumValue)
		if okA && okB {
			return ea.Raw == eb.Raw
		}
	}

	return reflect.DeepEqual(a, b)
}

func float32sEqual(eps float64, pairs ...float32) bool {
	for i := 0; i+1 < len(pairs); i += 2 {
		if !floatsEqual(float64(pairs[i]), float64(pairs[i+1]), eps) {
			return false
		}
	}

	return true
}

func floatsEqual(x, y, eps float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.IsNaN(x) && math.IsNaN(y)
	}

	if x == y {
		return true
	}

	if math.IsInf(x, 0) || math.IsInf(y, 0) {
		return false
	}

	scale := math.Max(1, math.Max(math.Abs(x), math.Abs(y)))

	return math.Abs(x-y) <= eps*scale
}
