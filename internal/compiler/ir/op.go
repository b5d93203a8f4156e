package ir

import (
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// TensorDesc is the inferred element type and shape of one output.
type TensorDesc struct {
	ElementType ElementType
	Shape       PartialShape
}

func (t TensorDesc) String() string {
	return t.ElementType.String() + t.Shape.String()
}

// Equal compares element type and shape exactly.
func (t TensorDesc) Equal(other TensorDesc) bool {
	return t.ElementType == other.ElementType && t.Shape.Equal(other.Shape)
}

// Op is the contract every op variant in the catalog fulfils. The graph calls
// it; it never defines per-op numeric semantics.
type Op interface {
	rtti.Typed

	// InferTypes computes output descriptors from input descriptors and the
	// op's attributes. It must be deterministic and free of side effects.
	InferTypes(inputs []TensorDesc) ([]TensorDesc, error)

	// Clone returns a copy carrying the same attributes.
	Clone() Op

	// VisitAttributes walks the op's named attributes.
	VisitAttributes(v AttributeVisitor)
}

// Role classifies ops the graph treats specially.
type Role int

const (
	RoleCompute Role = iota
	RoleParameter
	RoleConstant
	RoleResult
)

// RoleOp is implemented by ops whose role is not RoleCompute.
type RoleOp interface {
	Role() Role
}

// RoleOf returns the role of op.
func RoleOf(op Op) Role {
	if r, ok := op.(RoleOp); ok {
		return r.Role()
	}
	return RoleCompute
}

// Commutative is implemented by binary ops whose inputs may be swapped
// without changing the result. The matcher uses it to try both orders.
type Commutative interface {
	Commutative() bool
}

// IsCommutative reports whether op declares itself commutative.
func IsCommutative(op Op) bool {
	c, ok := op.(Commutative)
	return ok && c.Commutative()
}

// AttributeVisitor is a structured walk over named attributes. Values are
// passed by pointer so a visitor can both read and assign them.
type AttributeVisitor interface {
	OnInt(name string, v *int64)
	OnBool(name string, v *bool)
	OnString(name string, v *string)
	OnFloats(name string, v *[]float64)
	OnInts(name string, v *[]int64)
	OnElementType(name string, v *ElementType)
	OnShape(name string, v *PartialShape)
}

// AttributeMap collects attribute values by name.
type AttributeMap map[string]interface{}

// Attributes returns a snapshot of op's attributes.
func Attributes(op Op) AttributeMap {
	m := AttributeMap{}
	op.VisitAttributes(m)
	return m
}

func (m AttributeMap) OnInt(name string, v *int64) { m[name] = *v }
func (m AttributeMap) OnBool(name string, v *bool) { m[name] = *v }
func (m AttributeMap) OnString(name string, v *string) { m[name] = *v }

func (m AttributeMap) OnFloats(name string, v *[]float64) {
	cp := make([]float64, len(*v))
	copy(cp, *v)
	m[name] = cp
}

func (m AttributeMap) OnInts(name string, v *[]int64) {
	cp := make([]int64, len(*v))
	copy(cp, *v)
	m[name] = cp
}

func (m AttributeMap) OnElementType(name string, v *ElementType) { m[name] = *v }
func (m AttributeMap) OnShape(name string, v *PartialShape) { m[name] = *v }
