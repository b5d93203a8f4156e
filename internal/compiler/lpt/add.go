package lpt

import (
	"go.uber.org/zap"

	"github.com/lattice-ir/lattice/internal/compiler/fold"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
	"github.com/lattice-ir/lattice/internal/compiler/pass"
	"github.com/lattice-ir/lattice/internal/compiler/pattern"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// AddTransformationType identifies AddTransformation in a PassConfig.
var AddTransformationType = rtti.New("AddTransformation", 0, nil)

// AddTransformation lowers an Add whose operands are dequantized tensors.
//
// When both operands are runtime data, the two dequantizations
//
//	Y = SC1*(X1 - SH1) + SC2*(X2 - SH2)
//
// collapse into one, applied after the addition:
//
//	Y = SC2 * (SC1'*(X1 - SH1') + X2),  SC1' = SC1/SC2,  SH1' = SH1 + SC2*SH2/SC1
//
// X2 is the quantized operand and stays in low precision. An operand without
// dequantization takes SC = 1 and SH = 0.
//
// Otherwise a constant scale is moved below the Add, and an Add of a constant
// becomes a Subtract that later fuses with the zero point.
type AddTransformation struct {
	*pass.MatcherPass

	evaluator *fold.Evaluator

	// UpdatePrecisions refuses to lower when the branch without the full
	// dequantization does not start from a quantized tensor.
	UpdatePrecisions bool
}

func (*AddTransformation) TypeInfo() *rtti.TypeInfo { return AddTransformationType }

// NewAddTransformation creates the transformation. ev folds the rewritten
// dequantization constants; nil uses a private evaluator.
func NewAddTransformation(ev *fold.Evaluator) *AddTransformation {
	if ev == nil {
		ev = fold.NewEvaluator(fold.DefaultMaxElements)
	}
	t := &AddTransformation{evaluator: ev, UpdatePrecisions: true}
	root := pattern.Wrap[*ops.Add](pattern.Inputs(pattern.Any(), pattern.Any()))
	t.MatcherPass = pass.NewMatcherPass(AddTransformationType, root, t.transform)
	return t
}

func (t *AddTransformation) transform(m *pattern.Matcher) bool {
	add := m.MatchRoot()
	if !t.canBeTransformed(add) {
		return false
	}
	nw := &network{g: add.Graph(), ev: t.evaluator}

	full := getNotEmpty(add)
	if full == -1 {
		return t.lowerConstantPath(nw, add)
	}
	return t.lowerFullPath(nw, add, full)
}

func (t *AddTransformation) canBeTransformed(add *ir.Node) bool {
	d0, d1 := GetDequantization(add, 0), GetDequantization(add, 1)
	if d0.MultiplyHasZeroOrDenormal() || d1.MultiplyHasZeroOrDenormal() {
		return false
	}
	return !(d0.Empty() && d1.Empty())
}

// getNotEmpty picks the branch whose dequantization moves into the sum. The
// quantized branch stays in low precision, so the other branch takes the
// full path even when it carries no dequantization at all. It returns -1 when
// either branch starts from a constant.
func getNotEmpty(add *ir.Node) int {
	d0, d1 := GetDequantization(add, 0), GetDequantization(add, 1)
	if d0.DataIsConstant() || d1.DataIsConstant() {
		return -1
	}
	low0 := !d0.Empty() && d0.IsLowPrecision()
	low1 := !d1.Empty() && d1.IsLowPrecision()
	if low0 && !low1 {
		return 1
	}
	return 0
}

// multiplyConstBranch returns the input of add produced by Multiply(X, S)
// with a constant opposite input, or -1.
func multiplyConstBranch(add *ir.Node) int {
	for _, b := range []int{1, 0} {
		mul := add.InputNode(b)
		if !ir.IsType[*ops.Multiply](mul) {
			continue
		}
		_, x, ok := constantOperand(mul)
		if !ok || ops.IsConstant(x) {
			continue
		}
		if GetDequantization(add, 1-b).DataIsConstant() {
			return b
		}
	}
	return -1
}

func (t *AddTransformation) lowerConstantPath(nw *network, add *ir.Node) bool {
	if b := multiplyConstBranch(add); b != -1 {
		if !nw.foldDequantization(add, 1-b) {
			return false
		}
		mul, ok := nw.swapMultiplyAndAdd(add, b)
		if !ok {
			return false
		}
		if sum := mul.InputNode(0); ir.IsType[*ops.Add](sum) {
			if sub, ok := nw.fuseWithSubtract(sum); ok {
				sum = sub
			}
			nw.replaceToSubtract(sum)
		}
		t.Logger().Debug("moved scale below add", zap.String("node", mul.Name()))
		return true
	}

	if sub, ok := nw.fuseWithSubtract(add); ok {
		t.Logger().Debug("fused add into subtract", zap.String("node", sub.Name()))
		return true
	}
	if sub, ok := nw.replaceToSubtract(add); ok {
		t.Logger().Debug("replaced add by subtract", zap.String("node", sub.Name()))
		return true
	}

	// Dequantizations over constants still fold away; the Add itself stays
	nw.foldDequantization(add, 0)
	nw.foldDequantization(add, 1)
	return false
}

// dequantizationValues returns the zero point and scale of d, substituting
// 0 and 1 for missing steps.
func dequantizationValues(d Dequantization, et ir.ElementType) (shift, scale *ops.Constant) {
	shift, scale = d.SubtractConstant, d.MultiplyConstant
	if shift == nil {
		shift, _ = ops.NewConstantOp(et, nil, []float64{0})
	}
	if scale == nil {
		scale, _ = ops.NewConstantOp(et, nil, []float64{1})
	}
	return shift, scale
}

// dequantizationPrecision is the element type of the first scale or zero
// point found, f32 when neither chain has one.
func dequantizationPrecision(chains ...Dequantization) ir.ElementType {
	for _, d := range chains {
		if d.MultiplyConstant != nil {
			return d.MultiplyConstant.ElemType
		}
		if d.SubtractConstant != nil {
			return d.SubtractConstant.ElemType
		}
	}
	return ir.F32
}

func (t *AddTransformation) lowerFullPath(nw *network, add *ir.Node, full int) bool {
	empty := 1 - full
	dEmpty := GetDequantization(add, empty)
	if t.UpdatePrecisions && !dEmpty.Empty() && !dEmpty.IsLowPrecision() {
		return false
	}
	// nothing to move below the sum
	if dEmpty.Subtract == nil && dEmpty.Multiply == nil {
		return false
	}
	dFull := GetDequantization(add, full)

	et := dequantizationPrecision(dFull, dEmpty)
	shiftEmpty, scaleEmpty := dequantizationValues(dEmpty, et)
	shiftFull, scaleFull := dequantizationValues(dFull, et)

	// Constants only: a failed fold means no rewrite, not an error
	weighted, ok := nw.fold(&ops.Multiply{}, shiftEmpty, scaleEmpty)
	if !ok {
		return false
	}
	ratio, ok := nw.fold(&ops.Divide{}, weighted, scaleFull)
	if !ok {
		return false
	}
	newShift, ok := nw.fold(&ops.Add{}, shiftFull, ratio)
	if !ok {
		return false
	}
	newScale, ok := nw.fold(&ops.Divide{}, scaleFull, scaleEmpty)
	if !ok {
		return false
	}

	b := &builder{g: nw.g}
	x := dFull.Converted()
	if newShift.IsZero() {
		x = b.convertTo(x, newScale.ElemType)
	} else {
		x = b.add(&ops.Subtract{}, b.convertTo(x, newShift.ElemType), b.constant(newShift))
	}
	scaled := b.add(&ops.Multiply{}, x, b.constant(newScale))

	var inputs [2]ir.Output
	inputs[full] = scaled
	inputs[empty] = dEmpty.Converted()
	sum := b.add(&ops.Add{}, inputs[0], inputs[1])
	out := b.add(&ops.Multiply{}, sum, b.constant(scaleEmpty.Clone().(*ops.Constant)))

	if !nw.replace(b, add, out, out.Node(), sum.Node()) {
		return false
	}
	t.Logger().Debug("lowered add below dequantization",
		zap.String("node", out.Node().Name()),
		zap.Int("full_path", full))
	return true
}
