// Package lpt holds the low precision transformations. They recognize
// dequantization chains that restore quantized tensors to working precision
// and move or fuse them so that more of the graph runs in low precision.
package lpt

import (
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
)

// Dequantization is the Convert -> Subtract(zero point) -> Multiply(scale)
// chain feeding one input of a node. Steps the chain lacks are nil.
type Dequantization struct {
	// Data is the value the chain starts from.
	Data ir.Output

	Convert          *ir.Node
	Subtract         *ir.Node
	SubtractConstant *ops.Constant
	Multiply         *ir.Node
	MultiplyConstant *ops.Constant
}

// GetDequantization walks the dequantization chain upward from input
// inputIndex of n.
func GetDequantization(n *ir.Node, inputIndex int) Dequantization {
	var d Dequantization
	cur := n.InputValue(inputIndex)

	if mul := cur.Node(); ir.IsType[*ops.Multiply](mul) {
		if c, data, ok := constantOperand(mul); ok {
			d.Multiply, d.MultiplyConstant = mul, c
			cur = data
		}
	}
	if sub := cur.Node(); ir.IsType[*ops.Subtract](sub) {
		if c, ok := ops.AsConstant(sub.InputValue(1)); ok {
			d.Subtract, d.SubtractConstant = sub, c
			cur = sub.InputValue(0)
		}
	}
	if cv := cur.Node(); ir.IsType[*ops.Convert](cv) {
		d.Convert = cv
		cur = cv.InputValue(0)
	}

	d.Data = cur
	return d
}

// Empty reports a plain input with no dequantization step.
func (d Dequantization) Empty() bool {
	return d.Convert == nil && d.Subtract == nil && d.Multiply == nil
}

// IsLowPrecision reports whether the chain starts from a quantized tensor.
func (d Dequantization) IsLowPrecision() bool {
	return d.Data.ElementType().IsQuantized()
}

// MultiplyHasZeroOrDenormal reports a scale that would lose the tensor if
// divided by.
func (d Dequantization) MultiplyHasZeroOrDenormal() bool {
	return d.MultiplyConstant != nil && d.MultiplyConstant.HasZeroOrDenormal()
}

// DataIsConstant reports a chain over a compile-time constant.
func (d Dequantization) DataIsConstant() bool {
	return ops.IsConstant(d.Data)
}

// Converted returns the data after the Convert step, or the data itself when
// the chain has no Convert.
func (d Dequantization) Converted() ir.Output {
	if d.Convert != nil {
		return d.Convert.Output(0)
	}
	return d.Data
}

// Nodes returns the chain's nodes from the data upward.
func (d Dequantization) Nodes() []*ir.Node {
	var out []*ir.Node
	for _, n := range []*ir.Node{d.Convert, d.Subtract, d.Multiply} {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// constantOperand splits a binary node into its constant operand and the
// other operand. The constant is looked for on input 1 first.
func constantOperand(n *ir.Node) (*ops.Constant, ir.Output, bool) {
	if n.InputCount() != 2 {
		return nil, ir.Output{}, false
	}
	if c, ok := ops.AsConstant(n.InputValue(1)); ok {
		return c, n.InputValue(0), true
	}
	if c, ok := ops.AsConstant(n.InputValue(0)); ok {
		return c, n.InputValue(1), true
	}
	return nil, ir.Output{}, false
}
