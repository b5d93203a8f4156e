package ir

import (
	"strconv"
	"strings"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
)

// Dimension is a single axis length; DynamicDim marks an unknown length.
type Dimension int64

// DynamicDim is an axis whose length is not known at compile time.
const DynamicDim Dimension = -1

// IsStatic reports whether the dimension length is known.
func (d Dimension) IsStatic() bool { return d >= 0 }

func (d Dimension) String() string {
	if !d.IsStatic() {
		return "?"
	}
	return strconv.FormatInt(int64(d), 10)
}

// mergeDim unifies two dimensions, treating dynamic as a wildcard.
func mergeDim(a, b Dimension) (Dimension, bool) {
	switch {
	case !a.IsStatic():
		return b, true
	case !b.IsStatic():
		return a, true
	case a == b:
		return a, true
	default:
		return DynamicDim, false
	}
}

// PartialShape is a tensor shape that may be only partially known: the rank
// itself may be dynamic, or individual dimensions may be.
type PartialShape struct {
	dims        []Dimension
	rankDynamic bool
}

// Shape builds a fully static shape.
func Shape(dims ...int64) PartialShape {
	out := make([]Dimension, len(dims))
	for i, d := range dims {
		out[i] = Dimension(d)
	}
	return PartialShape{dims: out}
}

// ShapeOf builds a shape of known rank from dimensions that may be dynamic.
func ShapeOf(dims ...Dimension) PartialShape {
	out := make([]Dimension, len(dims))
	copy(out, dims)
	return PartialShape{dims: out}
}

// DynamicRank is a shape about which nothing is known.
func DynamicRank() PartialShape {
	return PartialShape{rankDynamic: true}
}

// Scalar is the rank-0 shape.
func Scalar() PartialShape {
	return PartialShape{dims: []Dimension{}}
}

// RankStatic reports whether the rank is known.
func (s PartialShape) RankStatic() bool { return !s.rankDynamic }

// Rank returns the rank, or -1 when dynamic.
func (s PartialShape) Rank() int {
	if s.rankDynamic {
		return -1
	}
	return len(s.dims)
}

// IsStatic reports whether every dimension is known.
func (s PartialShape) IsStatic() bool {
	if s.rankDynamic {
		return false
	}
	for _, d := range s.dims {
		if !d.IsStatic() {
			return false
		}
	}
	return true
}

// Dims returns a copy of the dimensions (nil for dynamic rank).
func (s PartialShape) Dims() []Dimension {
	if s.rankDynamic {
		return nil
	}
	out := make([]Dimension, len(s.dims))
	copy(out, s.dims)
	return out
}

// Dim returns dimension i.
func (s PartialShape) Dim(i int) Dimension {
	return s.dims[i]
}

// ToShape converts a static shape to plain lengths; ok is false when not static.
func (s PartialShape) ToShape() (dims []int64, ok bool) {
	if !s.IsStatic() {
		return nil, false
	}
	dims = make([]int64, len(s.dims))
	for i, d := range s.dims {
		dims[i] = int64(d)
	}
	return dims, true
}

// ElementCount returns the number of elements of a static shape.
func (s PartialShape) ElementCount() (int64, bool) {
	dims, ok := s.ToShape()
	if !ok {
		return 0, false
	}
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n, true
}

// Equal compares rank-dynamic flags and every dimension exactly.
func (s PartialShape) Equal(other PartialShape) bool {
	if s.rankDynamic != other.rankDynamic || len(s.dims) != len(other.dims) {
		return false
	}
	for i := range s.dims {
		if s.dims[i] != other.dims[i] {
			return false
		}
	}
	return true
}

// Compatible reports whether two shapes could describe the same tensor.
func (s PartialShape) Compatible(other PartialShape) bool {
	if s.rankDynamic || other.rankDynamic {
		return true
	}
	if len(s.dims) != len(other.dims) {
		return false
	}
	for i := range s.dims {
		if _, ok := mergeDim(s.dims[i], other.dims[i]); !ok {
			return false
		}
	}
	return true
}

func (s PartialShape) String() string {
	if s.rankDynamic {
		return "[...]"
	}
	parts := make([]string, len(s.dims))
	for i, d := range s.dims {
		parts[i] = d.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// BroadcastNumpy computes the numpy-style broadcast of two shapes.
func BroadcastNumpy(a, b PartialShape) (PartialShape, error) {
	if a.rankDynamic || b.rankDynamic {
		return DynamicRank(), nil
	}

	rank := len(a.dims)
	if len(b.dims) > rank {
		rank = len(b.dims)
	}
	out := make([]Dimension, rank)

	for i := 0; i < rank; i++ {
		da, db := Dimension(1), Dimension(1)
		if j := len(a.dims) - rank + i; j >= 0 {
			da = a.dims[j]
		}
		if j := len(b.dims) - rank + i; j >= 0 {
			db = b.dims[j]
		}

		switch {
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		default:
			d, ok := mergeDim(da, db)
			if !ok {
				return PartialShape{}, errors.NewNotBroadcastable(a.String(), b.String())
			}
			out[i] = d
		}
	}
	return PartialShape{dims: out}, nil
}
