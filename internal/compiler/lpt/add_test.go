package lpt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-ir/lattice/internal/compiler/fold"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
	"github.com/lattice-ir/lattice/internal/compiler/pass"
)

type graphBuilder struct {
	t *testing.T
	g *ir.Graph
}

func newGraphBuilder(t *testing.T) *graphBuilder {
	return &graphBuilder{t: t, g: ir.NewGraph("lpt")}
}

func (b *graphBuilder) check(n *ir.Node, err error) *ir.Node {
	b.t.Helper()
	require.NoError(b.t, err)
	return n
}

func (b *graphBuilder) param(et ir.ElementType, dims ...int64) ir.Output {
	return b.check(ops.NewParameter(b.g, et, ir.Shape(dims...))).Output(0)
}

func (b *graphBuilder) scalar(v float64) ir.Output {
	return b.check(ops.NewScalar(b.g, ir.F32, v)).Output(0)
}

func (b *graphBuilder) convert(x ir.Output) ir.Output {
	return b.check(ops.NewConvert(b.g, x, ir.F32)).Output(0)
}

func (b *graphBuilder) sub(x, y ir.Output) ir.Output {
	return b.check(ops.NewSubtract(b.g, x, y)).Output(0)
}

func (b *graphBuilder) mul(x, y ir.Output) ir.Output {
	return b.check(ops.NewMultiply(b.g, x, y)).Output(0)
}

func (b *graphBuilder) add(x, y ir.Output) *ir.Node {
	return b.check(ops.NewAdd(b.g, x, y))
}

func (b *graphBuilder) result(x ir.Output) *ir.Node {
	return b.check(ops.NewResult(b.g, x))
}

// dequantize builds Multiply(Subtract(Convert(x), shift), scale); a nil shift
// leaves the Subtract out
func (b *graphBuilder) dequantize(x ir.Output, shift *float64, scale float64) ir.Output {
	v := b.convert(x)
	if shift != nil {
		v = b.sub(v, b.scalar(*shift))
	}
	return b.mul(v, b.scalar(scale))
}

func shiftOf(v float64) *float64 { return &v }

// operands splits a binary node into its constant value and its other
// producer
func operands(t *testing.T, n *ir.Node) (float64, *ir.Node) {
	t.Helper()
	c, other, ok := constantOperand(n)
	require.True(t, ok, "%s has no constant operand", n)
	v, ok := c.Scalar()
	require.True(t, ok)
	return v, other.Node()
}

func run(t *testing.T, g *ir.Graph, tr *AddTransformation, cfg *pass.PassConfig) pass.RewriteResult {
	t.Helper()
	res, err := pass.NewGraphRewrite(nil, tr.AsMatcherPass()).Run(context.Background(), g, cfg)
	require.NoError(t, err)
	require.True(t, res.Converged)
	require.NoError(t, g.Validate())
	return res
}

func TestGetDequantization(t *testing.T) {
	b := newGraphBuilder(t)
	x := b.param(ir.U8, 1, 4)
	y := b.param(ir.F32, 1, 4)
	add := b.add(b.dequantize(x, shiftOf(3), 0.5), y)

	d := GetDequantization(add, 0)
	assert.False(t, d.Empty())
	assert.True(t, d.IsLowPrecision())
	assert.NotNil(t, d.Convert)
	require.NotNil(t, d.SubtractConstant)
	require.NotNil(t, d.MultiplyConstant)
	assert.Equal(t, []float64{3}, d.SubtractConstant.Values)
	assert.Equal(t, []float64{0.5}, d.MultiplyConstant.Values)
	assert.Equal(t, x, d.Data)
	assert.Equal(t, d.Convert.Output(0), d.Converted())
	assert.Len(t, d.Nodes(), 3)
	assert.False(t, d.MultiplyHasZeroOrDenormal())

	plain := GetDequantization(add, 1)
	assert.True(t, plain.Empty())
	assert.False(t, plain.IsLowPrecision())
	assert.Equal(t, y, plain.Converted())

	// the scale may sit on either side of the Multiply
	swapped := b.add(b.mul(b.scalar(1e-40), b.convert(x)), y)
	d = GetDequantization(swapped, 0)
	require.NotNil(t, d.Multiply)
	assert.True(t, d.MultiplyHasZeroOrDenormal())
}

func TestAddTransformation_BothBranchesDequantized(t *testing.T) {
	b := newGraphBuilder(t)
	x1 := b.param(ir.U8, 1, 4)
	x2 := b.param(ir.U8, 1, 4)
	add := b.add(b.dequantize(x1, nil, 2), b.dequantize(x2, shiftOf(1), 4))
	name := add.Name()
	res := b.result(add.Output(0))

	tr := NewAddTransformation(nil)
	r := run(t, b.g, tr, nil)
	assert.Equal(t, 1, r.Changes)

	// Multiply(Add(Multiply(Subtract(Convert(X1), 2), 0.5), Convert(X2)), 4)
	top := res.InputNode(0)
	require.True(t, ir.IsType[*ops.Multiply](top))
	assert.Equal(t, name, top.Name())
	assert.Contains(t, ir.FusedNames(top), name)

	sc2, sum := operands(t, top)
	assert.Equal(t, 4.0, sc2)
	require.True(t, ir.IsType[*ops.Add](sum))

	scaled := sum.InputNode(0)
	sc1, shifted := operands(t, scaled)
	assert.Equal(t, 0.5, sc1)
	require.True(t, ir.IsType[*ops.Subtract](shifted))
	sh1, conv1 := operands(t, shifted)
	assert.Equal(t, 2.0, sh1)
	require.True(t, ir.IsType[*ops.Convert](conv1))
	assert.Equal(t, x1, conv1.InputValue(0))

	conv2 := sum.InputNode(1)
	require.True(t, ir.IsType[*ops.Convert](conv2))
	assert.Equal(t, x2, conv2.InputValue(0))

	// the old Subtract(X2, 1) and both scale Multiplies are gone
	count := map[string]int{}
	for _, n := range b.g.Nodes() {
		count[n.TypeInfo().Name()]++
	}
	assert.Equal(t, 2, count["Multiply"])
	assert.Equal(t, 1, count["Subtract"])
	assert.Equal(t, 2, count["Convert"])
	assert.Equal(t, 3, count["Constant"])
}

func TestAddTransformation_PlainOperandTakesFullPath(t *testing.T) {
	b := newGraphBuilder(t)
	q := b.param(ir.U8, 1, 4)
	x := b.param(ir.F32, 1, 4)
	add := b.add(b.dequantize(q, shiftOf(128), 0.1), x)
	res := b.result(add.Output(0))

	tr := NewAddTransformation(nil)
	r := run(t, b.g, tr, nil)
	assert.Equal(t, 1, r.Changes)
	assert.False(t, add.Alive())

	// Multiply(Add(Convert(Q), Multiply(Subtract(X, 12.8), 10)), 0.1)
	top := res.InputNode(0)
	require.True(t, ir.IsType[*ops.Multiply](top))
	scale, sum := operands(t, top)
	assert.InDelta(t, 0.1, scale, 1e-6)
	require.True(t, ir.IsType[*ops.Add](sum))

	conv := sum.InputNode(0)
	require.True(t, ir.IsType[*ops.Convert](conv))
	assert.Equal(t, q, conv.InputValue(0))

	sc, shifted := operands(t, sum.InputNode(1))
	assert.InDelta(t, 10.0, sc, 1e-5)
	require.True(t, ir.IsType[*ops.Subtract](shifted))
	sh, data := operands(t, shifted)
	assert.InDelta(t, 12.8, sh, 1e-5)
	assert.Equal(t, x, data.Output(0))

	second := run(t, b.g, tr, nil)
	assert.Equal(t, 0, second.Changes)
}

func TestAddTransformation_QuantizedOperandStaysLow(t *testing.T) {
	b := newGraphBuilder(t)
	x := b.param(ir.F32, 1, 4)
	q := b.param(ir.U8, 1, 4)
	full := b.mul(b.sub(x, b.scalar(1)), b.scalar(2))
	add := b.add(full, b.dequantize(q, shiftOf(3), 4))
	res := b.result(add.Output(0))

	r := run(t, b.g, NewAddTransformation(nil), nil)
	assert.Equal(t, 1, r.Changes)

	// SH' = 1 + 4*3/2, SC' = 2/4
	top := res.InputNode(0)
	require.True(t, ir.IsType[*ops.Multiply](top))
	sc2, sum := operands(t, top)
	assert.Equal(t, 4.0, sc2)
	require.True(t, ir.IsType[*ops.Add](sum))

	sc1, shifted := operands(t, sum.InputNode(0))
	assert.Equal(t, 0.5, sc1)
	sh1, data := operands(t, shifted)
	assert.Equal(t, 7.0, sh1)
	assert.Equal(t, x, data.Output(0))

	conv := sum.InputNode(1)
	require.True(t, ir.IsType[*ops.Convert](conv))
	assert.Equal(t, q, conv.InputValue(0))
}

func TestAddTransformation_NothingToMove(t *testing.T) {
	b := newGraphBuilder(t)
	x1 := b.param(ir.F32, 1, 4)
	x2 := b.param(ir.F32, 1, 4)
	add := b.add(b.mul(x1, b.scalar(2)), x2)
	b.result(add.Output(0))
	before := names(b.g)

	r := run(t, b.g, NewAddTransformation(nil), nil)
	assert.Equal(t, 0, r.Changes)
	assert.Equal(t, before, names(b.g))
}

func TestAddTransformation_Idempotent(t *testing.T) {
	b := newGraphBuilder(t)
	x1 := b.param(ir.U8, 1, 4)
	x2 := b.param(ir.U8, 1, 4)
	add := b.add(b.dequantize(x1, shiftOf(2), 3), b.dequantize(x2, shiftOf(5), 6))
	b.result(add.Output(0))

	tr := NewAddTransformation(nil)
	first := run(t, b.g, tr, nil)
	require.Equal(t, 1, first.Changes)
	nodes := b.g.Len()
	order := names(b.g)

	second := run(t, b.g, tr, nil)
	assert.Equal(t, 0, second.Changes)
	assert.Equal(t, nodes, b.g.Len())
	assert.Equal(t, order, names(b.g))
}

func names(g *ir.Graph) []string {
	var out []string
	for _, n := range g.TopologicalOrder() {
		out = append(out, n.Name())
	}
	return out
}

func TestAddTransformation_Declines(t *testing.T) {
	build := func(t *testing.T, sc1 float64, dims ...int64) *graphBuilder {
		b := newGraphBuilder(t)
		x1 := b.param(ir.U8, 1, 4)
		x2 := b.param(ir.U8, 1, 4)
		scale := b.check(ops.NewConstant(b.g, ir.F32, dims, sc1)).Output(0)
		add := b.add(b.mul(b.convert(x1), scale), b.dequantize(x2, shiftOf(1), 4))
		b.result(add.Output(0))
		return b
	}

	t.Run("zero scale", func(t *testing.T) {
		b := build(t, 0)
		before := names(b.g)
		r := run(t, b.g, NewAddTransformation(nil), nil)
		assert.Equal(t, 0, r.Changes)
		assert.Equal(t, before, names(b.g))
	})

	t.Run("vetoed", func(t *testing.T) {
		b := build(t, 2)
		before := names(b.g)
		cfg := pass.NewPassConfig()
		pass.SetCallback[*AddTransformation](cfg, func(n *ir.Node) bool { return ir.IsType[*ops.Add](n) })
		r := run(t, b.g, NewAddTransformation(nil), cfg)
		assert.Equal(t, 0, r.Changes)
		assert.Equal(t, before, names(b.g))
	})

	t.Run("disabled", func(t *testing.T) {
		b := build(t, 2)
		cfg := pass.NewPassConfig()
		pass.Disable[*AddTransformation](cfg)
		r := run(t, b.g, NewAddTransformation(nil), cfg)
		assert.Equal(t, 0, r.Changes)
	})

	t.Run("fold refused", func(t *testing.T) {
		b := build(t, 2, 1, 4)
		before := names(b.g)
		r := run(t, b.g, NewAddTransformation(fold.NewEvaluator(2)), nil)
		assert.Equal(t, 0, r.Changes)
		assert.Equal(t, before, names(b.g))
	})
}

func TestAddTransformation_UpdatePrecisions(t *testing.T) {
	build := func(t *testing.T) *graphBuilder {
		b := newGraphBuilder(t)
		x1 := b.param(ir.F32, 1, 4)
		x2 := b.param(ir.F32, 1, 4)
		add := b.add(b.mul(x1, b.scalar(2)), b.mul(x2, b.scalar(4)))
		b.result(add.Output(0))
		return b
	}

	b := build(t)
	r := run(t, b.g, NewAddTransformation(nil), nil)
	assert.Equal(t, 0, r.Changes)

	b = build(t)
	tr := NewAddTransformation(nil)
	tr.UpdatePrecisions = false
	r = run(t, b.g, tr, nil)
	assert.Equal(t, 1, r.Changes)
	assert.NotContains(t, typeNames(b.g), "Subtract")
}

func typeNames(g *ir.Graph) []string {
	var out []string
	for _, n := range g.TopologicalOrder() {
		out = append(out, n.TypeInfo().Name())
	}
	return out
}

func TestAddTransformation_ReplaceToSubtract(t *testing.T) {
	b := newGraphBuilder(t)
	x := b.param(ir.U8, 1, 4)
	add := b.add(b.convert(x), b.scalar(3))
	res := b.result(add.Output(0))

	r := run(t, b.g, NewAddTransformation(nil), nil)
	assert.Equal(t, 1, r.Changes)

	sub := res.InputNode(0)
	require.True(t, ir.IsType[*ops.Subtract](sub))
	v, data := operands(t, sub)
	assert.Equal(t, -3.0, v)
	assert.True(t, ir.IsType[*ops.Convert](data))
	assert.NotContains(t, typeNames(b.g), "Add")
}

func TestAddTransformation_FuseWithSubtract(t *testing.T) {
	b := newGraphBuilder(t)
	x := b.param(ir.U8, 1, 4)
	add := b.add(b.sub(b.convert(x), b.scalar(5)), b.scalar(2))
	res := b.result(add.Output(0))

	r := run(t, b.g, NewAddTransformation(nil), nil)
	assert.Equal(t, 1, r.Changes)

	sub := res.InputNode(0)
	require.True(t, ir.IsType[*ops.Subtract](sub))
	v, data := operands(t, sub)
	assert.Equal(t, 3.0, v)
	assert.True(t, ir.IsType[*ops.Convert](data))
	assert.Equal(t, []string{"Parameter", "Convert", "Constant", "Subtract", "Result"}, typeNames(b.g))
}

func TestAddTransformation_SwapMultiplyAndAdd(t *testing.T) {
	b := newGraphBuilder(t)
	x := b.param(ir.U8, 1, 4)
	add := b.add(b.dequantize(x, shiftOf(1), 2), b.scalar(6))
	res := b.result(add.Output(0))

	r := run(t, b.g, NewAddTransformation(nil), nil)
	assert.Equal(t, 1, r.Changes)

	// 2*(x-1)+6 == 2*(x+2)
	mul := res.InputNode(0)
	require.True(t, ir.IsType[*ops.Multiply](mul))
	scale, sub := operands(t, mul)
	assert.Equal(t, 2.0, scale)
	require.True(t, ir.IsType[*ops.Subtract](sub))
	shift, conv := operands(t, sub)
	assert.Equal(t, -2.0, shift)
	assert.True(t, ir.IsType[*ops.Convert](conv))
}

func TestAddTransformation_BiasStaysAdd(t *testing.T) {
	b := newGraphBuilder(t)
	x := b.param(ir.U8, 2, 3)
	w := b.check(ops.NewConstant(b.g, ir.F32, []int64{3, 2}, 1, 2, 3, 4, 5, 6)).Output(0)
	mm := b.check(ops.NewMatMul(b.g, b.convert(x), w, false, false)).Output(0)
	add := b.add(b.mul(mm, b.scalar(2)), b.scalar(8))
	res := b.result(add.Output(0))

	r := run(t, b.g, NewAddTransformation(nil), nil)
	assert.Equal(t, 1, r.Changes)

	mul := res.InputNode(0)
	require.True(t, ir.IsType[*ops.Multiply](mul))
	_, sum := operands(t, mul)
	require.True(t, ir.IsType[*ops.Add](sum))
	bias, producer := operands(t, sum)
	assert.Equal(t, 4.0, bias)
	assert.True(t, ir.IsType[*ops.MatMul](producer))
}

func TestAddTransformation_FoldsConstantDequantization(t *testing.T) {
	b := newGraphBuilder(t)
	x := b.param(ir.U8, 1, 4)
	c := b.check(ops.NewConstant(b.g, ir.U8, []int64{1, 4}, 1, 2, 3, 4)).Output(0)
	add := b.add(b.convert(x), b.mul(b.convert(c), b.scalar(0.5)))
	b.result(add.Output(0))

	r := run(t, b.g, NewAddTransformation(nil), nil)
	assert.Equal(t, 0, r.Changes)
	require.True(t, add.Alive())

	folded, ok := ops.AsConstant(add.InputValue(1))
	require.True(t, ok)
	assert.Equal(t, ir.F32, folded.ElemType)
	assert.Equal(t, []float64{0.5, 1, 1.5, 2}, folded.Values)
	assert.Equal(t, []string{"Parameter", "Convert", "Constant", "Add", "Result"}, typeNames(b.g))
}
