package ir

import "math"

// ElementType is the element precision of a tensor.
type ElementType int

const (
	// Dynamic means the element type is not known yet.
	Dynamic ElementType = iota
	Boolean
	F16
	F32
	F64
	I8
	I32
	I64
	U8
)

var elementTypeNames = map[ElementType]string{
	Dynamic: "dynamic",
	Boolean: "boolean",
	F16:     "f16",
	F32:     "f32",
	F64:     "f64",
	I8:      "i8",
	I32:     "i32",
	I64:     "i64",
	U8:      "u8",
}

func (e ElementType) String() string {
	if name, ok := elementTypeNames[e]; ok {
		return name
	}
	return "unknown"
}

// ParseElementType maps a name such as "f32" back to its ElementType.
func ParseElementType(name string) (ElementType, bool) {
	for et, n := range elementTypeNames {
		if n == name {
			return et, true
		}
	}
	return Dynamic, false
}

// IsStatic reports whether the element type is known.
func (e ElementType) IsStatic() bool { return e != Dynamic }

// IsReal reports floating point types.
func (e ElementType) IsReal() bool {
	return e == F16 || e == F32 || e == F64
}

// IsInteger reports signed and unsigned integer types.
func (e ElementType) IsInteger() bool {
	return e == I8 || e == I32 || e == I64 || e == U8
}

// IsQuantized reports the 8-bit types produced by quantization.
func (e ElementType) IsQuantized() bool {
	return e == I8 || e == U8
}

// Range returns the representable range of an integer type. Real types return
// (-Inf, +Inf); Boolean returns (0, 1).
func (e ElementType) Range() (lo, hi float64) {
	switch e {
	case I8:
		return math.MinInt8, math.MaxInt8
	case U8:
		return 0, math.MaxUint8
	case I32:
		return math.MinInt32, math.MaxInt32
	case I64:
		return math.MinInt64, math.MaxInt64
	case Boolean:
		return 0, 1
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

// MergeElementTypes unifies two element types. Dynamic merges with anything.
func MergeElementTypes(a, b ElementType) (ElementType, bool) {
	switch {
	case a == Dynamic:
		return b, true
	case b == Dynamic:
		return a, true
	case a == b:
		return a, true
	default:
		return Dynamic, false
	}
}
