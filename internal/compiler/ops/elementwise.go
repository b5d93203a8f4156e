package ops

import (
	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// inferBinary implements numpy autobroadcast for two-input elementwise ops.
func inferBinary(op string, inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	if err := checkInputs(op, inputs, 2); err != nil {
		return nil, err
	}
	a, b := inputs[0], inputs[1]

	et, ok := ir.MergeElementTypes(a.ElementType, b.ElementType)
	if !ok {
		return nil, errors.NewElementTypeMismatch(op, a.ElementType.String(), b.ElementType.String())
	}
	if et == ir.Boolean {
		return nil, errors.NewElementTypeMismatch(op, "numeric element type", et.String())
	}

	shape, err := ir.BroadcastNumpy(a.Shape, b.Shape)
	if err != nil {
		return nil, err
	}
	return []ir.TensorDesc{{ElementType: et, Shape: shape}}, nil
}

// Add computes a + b.
type Add struct{}

func (*Add) TypeInfo() *rtti.TypeInfo { return AddType }
func (*Add) Commutative() bool { return true }
func (*Add) Clone() ir.Op { return &Add{} }
func (*Add) VisitAttributes(ir.AttributeVisitor) {}

func (*Add) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	return inferBinary("Add", inputs)
}

// Subtract computes a - b.
type Subtract struct{}

func (*Subtract) TypeInfo() *rtti.TypeInfo { return SubtractType }
func (*Subtract) Clone() ir.Op { return &Subtract{} }
func (*Subtract) VisitAttributes(ir.AttributeVisitor) {}

func (*Subtract) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	return inferBinary("Subtract", inputs)
}

// Multiply computes a * b.
type Multiply struct{}

func (*Multiply) TypeInfo() *rtti.TypeInfo { return MultiplyType }
func (*Multiply) Commutative() bool { return true }
func (*Multiply) Clone() ir.Op { return &Multiply{} }
func (*Multiply) VisitAttributes(ir.AttributeVisitor) {}

func (*Multiply) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	return inferBinary("Multiply", inputs)
}

// Divide computes a / b.
type Divide struct{}

func (*Divide) TypeInfo() *rtti.TypeInfo { return DivideType }
func (*Divide) Clone() ir.Op { return &Divide{} }
func (*Divide) VisitAttributes(ir.AttributeVisitor) {}

func (*Divide) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	return inferBinary("Divide", inputs)
}

func inferUnary(op string, inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	if err := checkInputs(op, inputs, 1); err != nil {
		return nil, err
	}
	return []ir.TensorDesc{inputs[0]}, nil
}

// Negative computes -x.
type Negative struct{}

func (*Negative) TypeInfo() *rtti.TypeInfo { return NegativeType }
func (*Negative) Clone() ir.Op { return &Negative{} }
func (*Negative) VisitAttributes(ir.AttributeVisitor) {}

func (*Negative) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	return inferUnary("Negative", inputs)
}

// Relu computes max(x, 0).
type Relu struct{}

func (*Relu) TypeInfo() *rtti.TypeInfo { return ReluType }
func (*Relu) Clone() ir.Op { return &Relu{} }
func (*Relu) VisitAttributes(ir.AttributeVisitor) {}

func (*Relu) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	return inferUnary("Relu", inputs)
}

// Convert changes the element type of its input.
type Convert struct {
	Destination ir.ElementType
}

func (*Convert) TypeInfo() *rtti.TypeInfo { return ConvertType }
func (c *Convert) Clone() ir.Op { cp := *c; return &cp }

func (c *Convert) VisitAttributes(v ir.AttributeVisitor) {
	v.OnElementType("destination_type", &c.Destination)
}

func (c *Convert) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	if err := checkInputs("Convert", inputs, 1); err != nil {
		return nil, err
	}
	if !c.Destination.IsStatic() {
		return nil, errors.NewInvalidAttribute("destination_type", "must be a static element type")
	}
	return []ir.TensorDesc{{ElementType: c.Destination, Shape: inputs[0].Shape}}, nil
}
