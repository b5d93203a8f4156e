package ops

import (
	"fmt"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// MatMul multiplies the two innermost dimensions of its inputs, broadcasting
// any leading batch dimensions.
type MatMul struct {
	TransposeA bool
	TransposeB bool
}

func (*MatMul) TypeInfo() *rtti.TypeInfo { return MatMulType }
func (m *MatMul) Clone() ir.Op { cp := *m; return &cp }

func (m *MatMul) VisitAttributes(v ir.AttributeVisitor) {
	v.OnBool("transpose_a", &m.TransposeA)
	v.OnBool("transpose_b", &m.TransposeB)
}

func (m *MatMul) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	if err := checkInputs("MatMul", inputs, 2); err != nil {
		return nil, err
	}
	a, b := inputs[0], inputs[1]

	et, ok := ir.MergeElementTypes(a.ElementType, b.ElementType)
	if !ok {
		return nil, errors.NewElementTypeMismatch("MatMul", a.ElementType.String(), b.ElementType.String())
	}
	if !a.Shape.RankStatic() || !b.Shape.RankStatic() {
		return []ir.TensorDesc{{ElementType: et, Shape: ir.DynamicRank()}}, nil
	}
	for _, s := range []ir.PartialShape{a.Shape, b.Shape} {
		if s.Rank() < 2 {
			return nil, errors.NewRankMismatch("MatMul", "rank >= 2", fmt.Sprintf("rank %d", s.Rank()))
		}
	}

	ad, bd := a.Shape.Dims(), b.Shape.Dims()
	ra, rb := len(ad), len(bd)
	rows, inner := ad[ra-2], ad[ra-1]
	if m.TransposeA {
		rows, inner = inner, rows
	}
	innerB, cols := bd[rb-2], bd[rb-1]
	if m.TransposeB {
		innerB, cols = cols, innerB
	}
	if inner.IsStatic() && innerB.IsStatic() && inner != innerB {
		return nil, errors.NewShapeMismatch("MatMul inner dimension", inner.String(), innerB.String())
	}

	batch, err := ir.BroadcastNumpy(ir.ShapeOf(ad[:ra-2]...), ir.ShapeOf(bd[:rb-2]...))
	if err != nil {
		return nil, err
	}
	out := append(batch.Dims(), rows, cols)
	return []ir.TensorDesc{{ElementType: et, Shape: ir.ShapeOf(out...)}}, nil
}

// Convolution is a 2D NCHW convolution without padding.
type Convolution struct {
	Strides []int64
}

// NewConvolutionOp returns a convolution with unit strides.
func NewConvolutionOp() *Convolution {
	return &Convolution{Strides: []int64{1, 1}}
}

func (*Convolution) TypeInfo() *rtti.TypeInfo { return ConvolutionType }

func (c *Convolution) Clone() ir.Op {
	return &Convolution{Strides: append([]int64(nil), c.Strides...)}
}

func (c *Convolution) VisitAttributes(v ir.AttributeVisitor) {
	v.OnInts("strides", &c.Strides)
}

func (c *Convolution) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	if err := checkInputs("Convolution", inputs, 2); err != nil {
		return nil, err
	}
	if len(c.Strides) != 2 || c.Strides[0] < 1 || c.Strides[1] < 1 {
		return nil, errors.NewInvalidAttribute("strides", "expected two positive strides")
	}
	data, filter := inputs[0], inputs[1]

	et, ok := ir.MergeElementTypes(data.ElementType, filter.ElementType)
	if !ok {
		return nil, errors.NewElementTypeMismatch("Convolution", data.ElementType.String(), filter.ElementType.String())
	}
	if !data.Shape.RankStatic() || !filter.Shape.RankStatic() {
		return []ir.TensorDesc{{ElementType: et, Shape: ir.DynamicRank()}}, nil
	}
	if data.Shape.Rank() != 4 || filter.Shape.Rank() != 4 {
		return nil, errors.NewRankMismatch("Convolution", "rank 4 data and filter",
			fmt.Sprintf("data %s, filter %s", data.Shape, filter.Shape))
	}

	dd, fd := data.Shape.Dims(), filter.Shape.Dims()
	if dd[1].IsStatic() && fd[1].IsStatic() && dd[1] != fd[1] {
		return nil, errors.NewShapeMismatch("Convolution input channels", dd[1].String(), fd[1].String())
	}

	out := []ir.Dimension{dd[0], fd[0], ir.DynamicDim, ir.DynamicDim}
	for i := 0; i < 2; i++ {
		in, k := dd[2+i], fd[2+i]
		if !in.IsStatic() || !k.IsStatic() {
			continue
		}
		if k > in {
			return nil, errors.NewShapeMismatch("Convolution spatial dimension",
				fmt.Sprintf("kernel <= %d", in), k.String())
		}
		out[2+i] = (in-k)/ir.Dimension(c.Strides[i]) + 1
	}
	return []ir.TensorDesc{{ElementType: et, Shape: ir.ShapeOf(out...)}}, nil
}
