// Package ops is the op catalog: the leaf operation types the compiler knows
// how to infer, fold and rewrite.
//
// Every op is a pointer type with a package-level TypeInfo. Versioned variants
// of the same operation (GatherND v5 and v8) form a lineage, so a rewrite
// written against the older variant also applies to the newer one.
package ops

import (
	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// Catalog type identities.
var (
	ParameterType   = rtti.NewWithID("Parameter", 0, "opset1", nil)
	ConstantType    = rtti.NewWithID("Constant", 0, "opset1", nil)
	ResultType      = rtti.NewWithID("Result", 0, "opset1", nil)
	ConvertType     = rtti.NewWithID("Convert", 0, "opset1", nil)
	AddType         = rtti.NewWithID("Add", 1, "opset1", nil)
	SubtractType    = rtti.NewWithID("Subtract", 1, "opset1", nil)
	MultiplyType    = rtti.NewWithID("Multiply", 1, "opset1", nil)
	DivideType      = rtti.NewWithID("Divide", 1, "opset1", nil)
	NegativeType    = rtti.NewWithID("Negative", 0, "opset1", nil)
	ReluType        = rtti.NewWithID("Relu", 0, "opset1", nil)
	MatMulType      = rtti.NewWithID("MatMul", 0, "opset1", nil)
	ConvolutionType = rtti.NewWithID("Convolution", 1, "opset1", nil)
	GatherNDType    = rtti.NewWithID("GatherND", 5, "opset5", nil)
	GatherNDv8Type  = rtti.NewWithID("GatherND", 8, "opset8", GatherNDType)
)

// catalog lists every op with a factory returning its default configuration.
var catalog = []struct {
	info    *rtti.TypeInfo
	factory rtti.Factory
}{
	{ParameterType, func() rtti.Typed { return &Parameter{} }},
	{ConstantType, func() rtti.Typed { return &Constant{} }},
	{ResultType, func() rtti.Typed { return &Result{} }},
	{ConvertType, func() rtti.Typed { return &Convert{} }},
	{AddType, func() rtti.Typed { return &Add{} }},
	{SubtractType, func() rtti.Typed { return &Subtract{} }},
	{MultiplyType, func() rtti.Typed { return &Multiply{} }},
	{DivideType, func() rtti.Typed { return &Divide{} }},
	{NegativeType, func() rtti.Typed { return &Negative{} }},
	{ReluType, func() rtti.Typed { return &Relu{} }},
	{MatMulType, func() rtti.Typed { return &MatMul{} }},
	{ConvolutionType, func() rtti.Typed { return NewConvolutionOp() }},
	{GatherNDType, func() rtti.Typed { return &GatherND{} }},
	{GatherNDv8Type, func() rtti.Typed { return &GatherNDv8{} }},
}

// Register adds every catalog op to reg.
func Register(reg *rtti.Registry) error {
	for _, entry := range catalog {
		if err := reg.Register(entry.info, entry.factory); err != nil {
			return err
		}
	}
	return nil
}

// Types returns the catalog type identities in registration order.
func Types() []*rtti.TypeInfo {
	out := make([]*rtti.TypeInfo, len(catalog))
	for i, entry := range catalog {
		out[i] = entry.info
	}
	return out
}

func checkInputs(op string, inputs []ir.TensorDesc, want int) error {
	if len(inputs) != want {
		return errors.NewInputCount(op, want, len(inputs))
	}
	return nil
}

// AsConstant returns the Constant producing out, if any.
func AsConstant(out ir.Output) (*Constant, bool) {
	if !out.IsValid() {
		return nil, false
	}
	return ir.AsType[*Constant](out.Node())
}

// IsConstant reports whether out is produced by a Constant.
func IsConstant(out ir.Output) bool {
	_, ok := AsConstant(out)
	return ok
}
