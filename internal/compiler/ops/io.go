package ops

import (
	"fmt"
	"math"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// Parameter is a graph input.
type Parameter struct {
	ElemType ir.ElementType
	Shape    ir.PartialShape
}

func (*Parameter) TypeInfo() *rtti.TypeInfo { return ParameterType }
func (*Parameter) Role() ir.Role { return ir.RoleParameter }
func (p *Parameter) Clone() ir.Op { c := *p; return &c }

func (p *Parameter) VisitAttributes(v ir.AttributeVisitor) {
	v.OnElementType("element_type", &p.ElemType)
	v.OnShape("shape", &p.Shape)
}

func (p *Parameter) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	if err := checkInputs("Parameter", inputs, 0); err != nil {
		return nil, err
	}
	return []ir.TensorDesc{{ElementType: p.ElemType, Shape: p.Shape}}, nil
}

// Result is a graph output.
type Result struct{}

func (*Result) TypeInfo() *rtti.TypeInfo { return ResultType }
func (*Result) Role() ir.Role { return ir.RoleResult }
func (*Result) Clone() ir.Op { return &Result{} }
func (*Result) VisitAttributes(ir.AttributeVisitor) {}

func (*Result) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	if err := checkInputs("Result", inputs, 1); err != nil {
		return nil, err
	}
	return []ir.TensorDesc{inputs[0]}, nil
}

// Constant holds a static tensor. Values has either one entry, splatted over
// the whole shape, or exactly one entry per element in row-major order.
type Constant struct {
	ElemType ir.ElementType
	Shape    ir.PartialShape
	Values   []float64
}

// NewConstantOp builds a constant, normalizing values to the element type.
func NewConstantOp(et ir.ElementType, shape []int64, values []float64) (*Constant, error) {
	c := &Constant{ElemType: et, Shape: ir.Shape(shape...), Values: append([]float64(nil), values...)}
	if err := c.check(); err != nil {
		return nil, err
	}
	for i, v := range c.Values {
		c.Values[i] = CastValue(et, v)
	}
	return c, nil
}

func (*Constant) TypeInfo() *rtti.TypeInfo { return ConstantType }
func (*Constant) Role() ir.Role { return ir.RoleConstant }

func (c *Constant) Clone() ir.Op {
	cp := *c
	cp.Values = append([]float64(nil), c.Values...)
	return &cp
}

func (c *Constant) VisitAttributes(v ir.AttributeVisitor) {
	v.OnElementType("element_type", &c.ElemType)
	v.OnShape("shape", &c.Shape)
	v.OnFloats("value", &c.Values)
}

func (c *Constant) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	if err := checkInputs("Constant", inputs, 0); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return []ir.TensorDesc{{ElementType: c.ElemType, Shape: c.Shape}}, nil
}

func (c *Constant) check() error {
	if !c.ElemType.IsStatic() {
		return errors.NewInvalidAttribute("element_type", "constants need a static element type")
	}
	count, ok := c.Shape.ElementCount()
	if !ok {
		return errors.NewInvalidAttribute("shape", "constants need a static shape")
	}
	if len(c.Values) != 1 && int64(len(c.Values)) != count {
		return errors.NewInvalidAttribute("value",
			fmt.Sprintf("%d values do not fill shape %s", len(c.Values), c.Shape))
	}
	return nil
}

// Len returns the number of elements the constant describes.
func (c *Constant) Len() int {
	n, _ := c.Shape.ElementCount()
	return int(n)
}

// At returns element i, honoring splatted values.
func (c *Constant) At(i int) float64 {
	if len(c.Values) == 1 {
		return c.Values[0]
	}
	return c.Values[i]
}

// Expand returns one value per element.
func (c *Constant) Expand() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.At(i)
	}
	return out
}

// Scalar returns the constant's value when every element holds the same one.
func (c *Constant) Scalar() (float64, bool) {
	if len(c.Values) == 0 {
		return 0, false
	}
	first := c.Values[0]
	for _, v := range c.Values[1:] {
		if v != first {
			return 0, false
		}
	}
	return first, true
}

// IsZero reports whether every element is zero.
func (c *Constant) IsZero() bool {
	for _, v := range c.Values {
		if v != 0 {
			return false
		}
	}
	return len(c.Values) > 0
}

// HasZeroOrDenormal reports whether any element is zero or, for real types, too
// small to be represented as a normal number.
func (c *Constant) HasZeroOrDenormal() bool {
	limit := smallestNormal(c.ElemType)
	for _, v := range c.Values {
		if v == 0 || math.Abs(v) < limit {
			return true
		}
	}
	return false
}

func smallestNormal(et ir.ElementType) float64 {
	switch et {
	case ir.F16:
		return 6.103515625e-05
	case ir.F32:
		return 1.1754943508222875e-38
	case ir.F64:
		return 2.2250738585072014e-308
	default:
		return 0
	}
}

// CastValue converts v to the value an element of type et would hold. Integer
// types round toward zero and saturate at their range.
func CastValue(et ir.ElementType, v float64) float64 {
	switch {
	case et == ir.Boolean:
		if v != 0 {
			return 1
		}
		return 0
	case et.IsInteger():
		if math.IsNaN(v) {
			return 0
		}
		lo, hi := et.Range()
		return math.Max(lo, math.Min(hi, math.Trunc(v)))
	case et == ir.F32 || et == ir.F16:
		return float64(float32(v))
	default:
		return v
	}
}
