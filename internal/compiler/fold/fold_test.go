package fold

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
)

func constant(t *testing.T, et ir.ElementType, shape []int64, values ...float64) *ops.Constant {
	t.Helper()
	c, err := ops.NewConstantOp(et, shape, values)
	require.NoError(t, err)
	return c
}

func TestFold_Binary(t *testing.T) {
	e := NewEvaluator(DefaultMaxElements)
	a := constant(t, ir.F32, []int64{2, 3}, 1, 2, 3, 4, 5, 6)
	row := constant(t, ir.F32, []int64{3}, 10, 20, 30)
	col := constant(t, ir.F32, []int64{2, 1}, 100, 200)

	tests := []struct {
		name     string
		op       ir.Op
		inputs   []*ops.Constant
		expected []float64
	}{
		{"add row", &ops.Add{}, []*ops.Constant{a, row}, []float64{11, 22, 33, 14, 25, 36}},
		{"add column", &ops.Add{}, []*ops.Constant{a, col}, []float64{101, 102, 103, 204, 205, 206}},
		{"subtract", &ops.Subtract{}, []*ops.Constant{row, a}, []float64{9, 18, 27, 6, 15, 24}},
		{"multiply", &ops.Multiply{}, []*ops.Constant{a, col}, []float64{100, 200, 300, 800, 1000, 1200}},
		{"divide", &ops.Divide{}, []*ops.Constant{row, a}, []float64{10, 10, 10, 2.5, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Fold(tt.op, tt.inputs)
			require.NoError(t, err)
			assert.Equal(t, "{2,3}", got.Shape.String())
			assert.Equal(t, tt.expected, got.Values)
		})
	}
}

func TestFold_Unary(t *testing.T) {
	e := NewEvaluator(0)
	x := constant(t, ir.F32, []int64{4}, -1.5, 0, 2.5, 300)

	neg, err := e.Fold(&ops.Negative{}, []*ops.Constant{x})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 0, -2.5, -300}, neg.Values)

	relu, err := e.Fold(&ops.Relu{}, []*ops.Constant{x})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2.5, 300}, relu.Values)

	u8, err := e.Fold(&ops.Convert{Destination: ir.U8}, []*ops.Constant{x})
	require.NoError(t, err)
	assert.Equal(t, ir.U8, u8.ElemType)
	assert.Equal(t, []float64{0, 0, 2, 255}, u8.Values)

	splat := constant(t, ir.F32, []int64{3}, 2)
	neg, err = e.Fold(&ops.Negative{}, []*ops.Constant{splat})
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, -2, -2}, neg.Values)
}

func TestFold_IntegerDivision(t *testing.T) {
	e := NewEvaluator(0)
	a := constant(t, ir.I32, []int64{2}, 7, -7)
	b := constant(t, ir.I32, []int64{}, 2)

	q, err := e.Fold(&ops.Divide{}, []*ops.Constant{a, b})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, -3}, q.Values)

	zero := constant(t, ir.I32, []int64{}, 0)
	_, err = e.Fold(&ops.Divide{}, []*ops.Constant{a, zero})
	assert.True(t, stderrors.Is(err, errors.NotFoldable))
}

func TestFold_Failures(t *testing.T) {
	e := NewEvaluator(4)
	small := constant(t, ir.F32, []int64{2}, 1, 2)

	_, err := e.Fold(&ops.MatMul{}, []*ops.Constant{small, small})
	assert.True(t, stderrors.Is(err, errors.NotFoldable))

	_, err = e.Fold(&ops.Add{}, []*ops.Constant{small, nil})
	assert.True(t, stderrors.Is(err, errors.NonConstantInput))

	big := constant(t, ir.F32, []int64{8}, 1)
	_, err = e.Fold(&ops.Add{}, []*ops.Constant{big, small})
	assert.True(t, stderrors.Is(err, errors.FoldSizeLimit))

	col := constant(t, ir.F32, []int64{3, 1}, 1, 2, 3)
	_, err = e.Fold(&ops.Add{}, []*ops.Constant{col, small})
	assert.True(t, stderrors.Is(err, errors.FoldSizeLimit))

	wrong := constant(t, ir.F32, []int64{3}, 1, 2, 3)
	_, err = e.Fold(&ops.Add{}, []*ops.Constant{wrong, small})
	assert.True(t, stderrors.Is(err, errors.NotFoldable))
	assert.False(t, errors.IsFatal(err))
}

func TestFold_Cache(t *testing.T) {
	e := NewEvaluator(0)
	a := constant(t, ir.F32, []int64{2}, 1, 2)
	b := constant(t, ir.F32, []int64{2}, 3, 4)

	first, err := e.Fold(&ops.Add{}, []*ops.Constant{a, b})
	require.NoError(t, err)
	first.Values[0] = 99

	second, err := e.Fold(&ops.Add{}, []*ops.Constant{a, b})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 6}, second.Values)

	hits, misses := e.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	_, err = e.Fold(&ops.Subtract{}, []*ops.Constant{a, b})
	require.NoError(t, err)
	_, misses = e.Stats()
	assert.Equal(t, int64(2), misses)

	assert.NotEqual(t,
		fingerprint(&ops.Convert{Destination: ir.U8}, []*ops.Constant{a}),
		fingerprint(&ops.Convert{Destination: ir.I8}, []*ops.Constant{a}))
}

func TestFingerprint(t *testing.T) {
	a := constant(t, ir.F32, []int64{2}, 1, 2)
	same := constant(t, ir.F32, []int64{2}, 1, 2)
	swapped := constant(t, ir.F32, []int64{2}, 2, 1)
	wide := constant(t, ir.F64, []int64{2}, 1, 2)

	key := fingerprint(&ops.Add{}, []*ops.Constant{a, a})
	assert.Equal(t, key, fingerprint(&ops.Add{}, []*ops.Constant{same, same}))
	assert.NotEqual(t, key, fingerprint(&ops.Add{}, []*ops.Constant{a, swapped}))
	assert.NotEqual(t, key, fingerprint(&ops.Add{}, []*ops.Constant{wide, wide}))
	assert.NotEqual(t, key, fingerprint(&ops.Multiply{}, []*ops.Constant{a, a}))
}

func TestFold_Concurrent(t *testing.T) {
	e := NewEvaluator(0)
	a := constant(t, ir.F32, []int64{3}, 1, 2, 3)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.Fold(&ops.Multiply{}, []*ops.Constant{a, a})
			assert.NoError(t, err)
			assert.Equal(t, []float64{1, 4, 9}, got.Values)
		}()
	}
	wg.Wait()
}

func TestFoldNode(t *testing.T) {
	e := NewEvaluator(0)
	g := ir.NewGraph("fold")
	a, err := ops.NewConstant(g, ir.F32, []int64{2}, 1, 2)
	require.NoError(t, err)
	b, err := ops.NewScalar(g, ir.F32, 3)
	require.NoError(t, err)
	mul, err := ops.NewMultiply(g, a.Output(0), b.Output(0))
	require.NoError(t, err)
	require.NoError(t, mul.SetName("scale"))
	res, err := ops.NewResult(g, mul.Output(0))
	require.NoError(t, err)

	folded, err := e.FoldNode(g, mul)
	require.NoError(t, err)
	assert.False(t, mul.Alive())
	assert.Equal(t, "scale", folded.Name())
	assert.Same(t, folded, res.InputNode(0))
	assert.Equal(t, []string{"scale"}, ir.FusedNames(folded))

	c, ok := ops.AsConstant(folded.Output(0))
	require.True(t, ok)
	assert.Equal(t, []float64{3, 6}, c.Values)
}

func TestFoldNode_Refusals(t *testing.T) {
	e := NewEvaluator(0)
	g := ir.NewGraph("fold")
	x, err := ops.NewParameter(g, ir.F32, ir.Shape(2))
	require.NoError(t, err)
	c, err := ops.NewScalar(g, ir.F32, 3)
	require.NoError(t, err)
	add, err := ops.NewAdd(g, x.Output(0), c.Output(0))
	require.NoError(t, err)

	_, err = e.FoldNode(g, add)
	assert.True(t, stderrors.Is(err, errors.NonConstantInput))
	assert.True(t, add.Alive())

	_, err = e.FoldNode(g, c)
	assert.True(t, stderrors.Is(err, errors.NotFoldable))

	neg, err := ops.NewNegative(g, c.Output(0))
	require.NoError(t, err)
	neg.RTInfo()[ir.DisableConstFoldingKey] = true
	_, err = e.FoldNode(g, neg)
	assert.True(t, stderrors.Is(err, errors.NotFoldable))
	assert.True(t, neg.Alive())

	before := g.Len()
	_, out, err := e.FoldOutput(g, c.Output(0))
	require.NoError(t, err)
	assert.Same(t, c, out.Node())
	assert.Equal(t, before, g.Len())
}
