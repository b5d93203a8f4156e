package ops

import (
	"fmt"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// GatherND gathers slices of data addressed by the innermost dimension of
// indices. The leading BatchDims dimensions of data and indices are batch
// dimensions; this variant flattens them into a single leading dimension.
type GatherND struct {
	BatchDims int64
}

func (*GatherND) TypeInfo() *rtti.TypeInfo { return GatherNDType }
func (g *GatherND) Clone() ir.Op { cp := *g; return &cp }

func (g *GatherND) VisitAttributes(v ir.AttributeVisitor) {
	v.OnInt("batch_dims", &g.BatchDims)
}

func (g *GatherND) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	return g.infer("GatherND", inputs, true)
}

// GatherNDv8 keeps the batch dimensions in the output instead of flattening
// them. It descends from GatherND and can be viewed as one.
type GatherNDv8 struct {
	GatherND
}

func (*GatherNDv8) TypeInfo() *rtti.TypeInfo { return GatherNDv8Type }
func (g *GatherNDv8) Clone() ir.Op { cp := *g; return &cp }
func (g *GatherNDv8) ParentView() rtti.Typed { return &g.GatherND }

func (g *GatherNDv8) InferTypes(inputs []ir.TensorDesc) ([]ir.TensorDesc, error) {
	return g.infer("GatherND", inputs, false)
}

func (g *GatherND) infer(op string, inputs []ir.TensorDesc, flatten bool) ([]ir.TensorDesc, error) {
	if err := checkInputs(op, inputs, 2); err != nil {
		return nil, err
	}
	data, indices := inputs[0], inputs[1]

	if indices.ElementType.IsStatic() && indices.ElementType != ir.I32 && indices.ElementType != ir.I64 {
		return nil, errors.NewInvalidIndices(indices.ElementType.String())
	}
	if g.BatchDims < 0 {
		return nil, errors.NewInvalidAttribute("batch_dims", "must be non-negative")
	}
	dynamic := []ir.TensorDesc{{ElementType: data.ElementType, Shape: ir.DynamicRank()}}
	if !data.Shape.RankStatic() || !indices.Shape.RankStatic() {
		return dynamic, nil
	}

	b := int(g.BatchDims)
	r, q := data.Shape.Rank(), indices.Shape.Rank()
	if q < 1 {
		return nil, errors.NewRankMismatch(op+" indices", "rank >= 1", "rank 0")
	}
	if b >= r || b >= q {
		return nil, errors.NewInvalidAttribute("batch_dims",
			fmt.Sprintf("%d must be less than data rank %d and indices rank %d", b, r, q))
	}

	dd, id := data.Shape.Dims(), indices.Shape.Dims()
	for i := 0; i < b; i++ {
		if dd[i].IsStatic() && id[i].IsStatic() && dd[i] != id[i] {
			return nil, errors.NewShapeMismatch(op+" batch dimension",
				dd[i].String(), id[i].String())
		}
	}

	k := id[q-1]
	if !k.IsStatic() {
		return dynamic, nil
	}
	if int(k) > r-b {
		return nil, errors.NewRankMismatch(op+" indices",
			fmt.Sprintf("last dimension <= %d", r-b), fmt.Sprintf("%d", k))
	}

	var out []ir.Dimension
	if flatten && b > 0 {
		product := ir.Dimension(1)
		for i := 0; i < b; i++ {
			d := id[i]
			if !d.IsStatic() {
				d = dd[i]
			}
			if !d.IsStatic() {
				product = ir.DynamicDim
				break
			}
			product *= d
		}
		out = append(out, product)
		out = append(out, id[b:q-1]...)
	} else {
		out = append(out, id[:q-1]...)
	}
	out = append(out, dd[b+int(k):]...)
	return []ir.TensorDesc{{ElementType: data.ElementType, Shape: ir.ShapeOf(out...)}}, nil
}
