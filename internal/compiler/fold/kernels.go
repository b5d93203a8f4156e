package fold

import (
	"math"
	"strconv"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// kernel computes the row-major values of a single-output op.
type kernel func(op ir.Op, inputs []*ops.Constant, dims []int64, et ir.ElementType) ([]float64, error)

var kernels = map[rtti.Key]kernel{
	ops.AddType.Key():      elementwise(func(a, b float64) (float64, bool) { return a + b, true }),
	ops.SubtractType.Key(): elementwise(func(a, b float64) (float64, bool) { return a - b, true }),
	ops.MultiplyType.Key(): elementwise(func(a, b float64) (float64, bool) { return a * b, true }),
	ops.DivideType.Key():   divide,
	ops.NegativeType.Key(): unary(func(x float64) float64 { return -x }),
	ops.ReluType.Key():     unary(func(x float64) float64 { return math.Max(x, 0) }),
	ops.ConvertType.Key():  unary(func(x float64) float64 { return x }),
}

func elementwise(f func(a, b float64) (float64, bool)) kernel {
	return func(op ir.Op, inputs []*ops.Constant, dims []int64, et ir.ElementType) ([]float64, error) {
		a, b := inputs[0], inputs[1]
		ia := broadcastIndex(dims, mustDims(a))
		ib := broadcastIndex(dims, mustDims(b))

		out := make([]float64, elementCount(dims))
		for i := range out {
			v, ok := f(a.At(ia(i)), b.At(ib(i)))
			if !ok {
				return nil, errors.NewNotFoldable(op.TypeInfo().String()).
					WithActual("undefined result at element " + strconv.Itoa(i))
			}
			out[i] = ops.CastValue(et, v)
		}
		return out, nil
	}
}

// divide truncates integer quotients and refuses integer division by zero.
func divide(op ir.Op, inputs []*ops.Constant, dims []int64, et ir.ElementType) ([]float64, error) {
	return elementwise(func(a, b float64) (float64, bool) {
		if et.IsInteger() && b == 0 {
			return 0, false
		}
		return a / b, true
	})(op, inputs, dims, et)
}

func unary(f func(x float64) float64) kernel {
	return func(_ ir.Op, inputs []*ops.Constant, dims []int64, et ir.ElementType) ([]float64, error) {
		x := inputs[0]
		out := make([]float64, elementCount(dims))
		for i := range out {
			out[i] = ops.CastValue(et, f(x.At(i)))
		}
		return out, nil
	}
}

func mustDims(c *ops.Constant) []int64 {
	dims, _ := c.Shape.ToShape()
	return dims
}

func elementCount(dims []int64) int {
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	return n
}

// broadcastIndex maps a row-major index into the output shape to the
// row-major index of an input numpy-broadcast to it.
func broadcastIndex(out, in []int64) func(int) int {
	offset := len(out) - len(in)
	strides := make([]int, len(out))
	stride := 1
	for i := len(out) - 1; i >= offset; i-- {
		d := in[i-offset]
		if d != 1 {
			strides[i] = stride
		}
		stride *= int(d)
	}

	return func(flat int) int {
		idx := 0
		for i := len(out) - 1; i >= 0; i-- {
			coord := flat % int(out[i])
			flat /= int(out[i])
			idx += coord * strides[i]
		}
		return idx
	}
}
