package ops

import (
	"github.com/lattice-ir/lattice/internal/compiler/ir"
)

// NewParameter adds a graph input.
func NewParameter(g *ir.Graph, et ir.ElementType, shape ir.PartialShape) (*ir.Node, error) {
	return g.Add(&Parameter{ElemType: et, Shape: shape})
}

// NewConstant adds a constant holding values; a single value is splatted.
func NewConstant(g *ir.Graph, et ir.ElementType, shape []int64, values ...float64) (*ir.Node, error) {
	c, err := NewConstantOp(et, shape, values)
	if err != nil {
		return nil, err
	}
	return g.Add(c)
}

// NewScalar adds a rank-0 constant.
func NewScalar(g *ir.Graph, et ir.ElementType, value float64) (*ir.Node, error) {
	return NewConstant(g, et, nil, value)
}

// NewResult adds a graph output reading x.
func NewResult(g *ir.Graph, x ir.Output) (*ir.Node, error) {
	return g.Add(&Result{}, x)
}

// NewConvert adds a Convert of x to et.
func NewConvert(g *ir.Graph, x ir.Output, et ir.ElementType) (*ir.Node, error) {
	return g.Add(&Convert{Destination: et}, x)
}

// NewAdd adds a + b.
func NewAdd(g *ir.Graph, a, b ir.Output) (*ir.Node, error) { return g.Add(&Add{}, a, b) }

// NewSubtract adds a - b.
func NewSubtract(g *ir.Graph, a, b ir.Output) (*ir.Node, error) { return g.Add(&Subtract{}, a, b) }

// NewMultiply adds a * b.
func NewMultiply(g *ir.Graph, a, b ir.Output) (*ir.Node, error) { return g.Add(&Multiply{}, a, b) }

// NewDivide adds a / b.
func NewDivide(g *ir.Graph, a, b ir.Output) (*ir.Node, error) { return g.Add(&Divide{}, a, b) }

// NewNegative adds -x.
func NewNegative(g *ir.Graph, x ir.Output) (*ir.Node, error) { return g.Add(&Negative{}, x) }

// NewRelu adds max(x, 0).
func NewRelu(g *ir.Graph, x ir.Output) (*ir.Node, error) { return g.Add(&Relu{}, x) }

// NewMatMul adds a matrix product.
func NewMatMul(g *ir.Graph, a, b ir.Output, transposeA, transposeB bool) (*ir.Node, error) {
	return g.Add(&MatMul{TransposeA: transposeA, TransposeB: transposeB}, a, b)
}

// NewConvolution adds a unit-stride convolution.
func NewConvolution(g *ir.Graph, data, filter ir.Output) (*ir.Node, error) {
	return g.Add(NewConvolutionOp(), data, filter)
}

// NewGatherND adds a batch-flattening GatherND.
func NewGatherND(g *ir.Graph, data, indices ir.Output, batchDims int64) (*ir.Node, error) {
	return g.Add(&GatherND{BatchDims: batchDims}, data, indices)
}

// NewGatherNDv8 adds a batch-preserving GatherND.
func NewGatherNDv8(g *ir.Graph, data, indices ir.Output, batchDims int64) (*ir.Node, error) {
	return g.Add(&GatherNDv8{GatherND{BatchDims: batchDims}}, data, indices)
}
