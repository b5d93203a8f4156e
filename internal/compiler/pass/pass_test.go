package pass

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
	"github.com/lattice-ir/lattice/internal/compiler/pattern"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
	"github.com/lattice-ir/lattice/internal/telemetry"
)

var (
	cancelNegationsType = rtti.New("CancelNegations", 0, nil)
	refreshReluType     = rtti.New("RefreshRelu", 0, nil)
	recordType          = rtti.New("Record", 0, nil)
	breakTypesType      = rtti.New("BreakTypes", 0, nil)
	reportType          = rtti.New("ReportNotFoldable", 0, nil)
)

// cancelNegations rewrites Negative(Negative(x)) to x. Every rewrite removes
// two nodes, so it always reaches a fixed point.
type cancelNegations struct {
	*MatcherPass
}

func (*cancelNegations) TypeInfo() *rtti.TypeInfo { return cancelNegationsType }

func newCancelNegations() *cancelNegations {
	x := pattern.Any()
	inner := pattern.Wrap[*ops.Negative](pattern.Inputs(x))
	outer := pattern.Wrap[*ops.Negative](pattern.Inputs(inner))
	return &cancelNegations{NewMatcherPass(cancelNegationsType, outer, func(m *pattern.Matcher) bool {
		top := m.MatchRoot()
		g := top.Graph()
		src, _ := m.Value(x)
		innerNode := top.InputNode(0)
		if err := g.ReplaceOutput(top.Output(0), src); err != nil {
			return false
		}
		_ = g.Remove(top)
		if innerNode.ConsumerCount() == 0 {
			_ = g.Remove(innerNode)
		}
		return true
	})}
}

// refreshRelu swaps every Relu for a fresh copy, so a traversal never comes
// back clean
func newRefreshRelu() *MatcherPass {
	return NewMatcherPass(refreshReluType, pattern.Wrap[*ops.Relu](pattern.Inputs(pattern.Any())), func(m *pattern.Matcher) bool {
		old := m.MatchRoot()
		g := old.Graph()
		fresh, err := ops.NewRelu(g, old.InputValue(0))
		if err != nil {
			return false
		}
		return g.ReplaceNode(old, fresh) == nil
	})
}

type chain struct {
	g      *ir.Graph
	param  *ir.Node
	nodes  []*ir.Node
	result *ir.Node
}

// buildChain builds param -> ops... -> result where each entry is "neg" or
// "relu"
func buildChain(t require.TestingT, kinds ...string) chain {
	g := ir.NewGraph("chain")
	p, err := ops.NewParameter(g, ir.F32, ir.Shape(2, 2))
	require.NoError(t, err)
	c := chain{g: g, param: p}
	cur := p.Output(0)
	for _, kind := range kinds {
		var n *ir.Node
		if kind == "neg" {
			n, err = ops.NewNegative(g, cur)
		} else {
			n, err = ops.NewRelu(g, cur)
		}
		require.NoError(t, err)
		c.nodes = append(c.nodes, n)
		cur = n.Output(0)
	}
	c.result, err = ops.NewResult(g, cur)
	require.NoError(t, err)
	return c
}

// kinds walks from the result back to the parameter
func (c chain) kinds() []string {
	var out []string
	for n := c.result.InputNode(0); n.TypeInfo() != ops.ParameterType; n = n.InputNode(0) {
		kind := "relu"
		if n.TypeInfo() == ops.NegativeType {
			kind = "neg"
		}
		out = append([]string{kind}, out...)
	}
	return out
}

func runManager(t *testing.T, g *ir.Graph, opts []Option, passes ...Pass) (*Report, error) {
	t.Helper()
	m := NewManager(opts...)
	for _, p := range passes {
		require.NoError(t, m.Register(p))
	}
	return m.RunPasses(context.Background(), g)
}

func TestGraphRewrite_ReachesFixedPoint(t *testing.T) {
	c := buildChain(t, "neg", "neg", "neg", "neg", "relu")
	rw := NewGraphRewrite(nil, newCancelNegations().AsMatcherPass())

	res, err := rw.Run(context.Background(), c.g, nil)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 2, res.Changes)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, []string{"relu"}, c.kinds())
	require.NoError(t, c.g.Validate())
}

func TestGraphRewrite_FixedPointProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		kinds := rapid.SliceOfN(rapid.SampledFrom([]string{"neg", "relu"}), 0, 20).Draw(rt, "kinds")
		c := buildChain(rt, kinds...)

		var expected []string
		for _, k := range kinds {
			if k == "neg" && len(expected) > 0 && expected[len(expected)-1] == "neg" {
				expected = expected[:len(expected)-1]
				continue
			}
			expected = append(expected, k)
		}

		rw := NewGraphRewrite(nil, newCancelNegations().AsMatcherPass())
		rw.MaxIterations = len(kinds) + 2
		res, err := rw.Run(context.Background(), c.g, nil)
		require.NoError(rt, err)
		require.True(rt, res.Converged)

		got := c.kinds()
		if len(expected) == 0 {
			require.Empty(rt, got)
		} else {
			require.Equal(rt, expected, got)
		}
		require.NoError(rt, c.g.Validate())

		again, err := rw.Run(context.Background(), c.g, nil)
		require.NoError(rt, err)
		require.Equal(rt, 0, again.Changes)
	})
}

func TestGraphRewrite_NonConvergence(t *testing.T) {
	c := buildChain(t, "relu")
	rw := NewGraphRewrite(nil, newRefreshRelu())
	rw.MaxIterations = 3

	res, err := rw.Run(context.Background(), c.g, nil)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 3, res.Iterations)
	require.Len(t, res.Diagnostics, 1)
	assert.True(t, stderrors.Is(res.Diagnostics[0], errors.NonConvergence))
	assert.Equal(t, errors.SeverityWarning, res.Diagnostics[0].Severity)
	require.NoError(t, c.g.Validate())
}

func TestGraphRewrite_DisabledAndVetoed(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		c := buildChain(t, "neg", "neg")
		cfg := NewPassConfig()
		Disable[*cancelNegations](cfg)
		assert.True(t, IsDisabled[*cancelNegations](cfg))

		res, err := NewGraphRewrite(nil, newCancelNegations().AsMatcherPass()).Run(context.Background(), c.g, cfg)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Changes)
		assert.Equal(t, []string{"neg", "neg"}, c.kinds())

		Enable[*cancelNegations](cfg)
		assert.False(t, IsDisabled[*cancelNegations](cfg))
	})

	t.Run("vetoed node", func(t *testing.T) {
		c := buildChain(t, "neg", "neg", "relu", "neg", "neg")
		keep := c.nodes[1].ID()
		cfg := NewPassConfig()
		SetCallback[*cancelNegations](cfg, func(n *ir.Node) bool { return n.ID() == keep })

		_, err := NewGraphRewrite(nil, newCancelNegations().AsMatcherPass()).Run(context.Background(), c.g, cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{"neg", "neg", "relu"}, c.kinds())
	})

	t.Run("global veto", func(t *testing.T) {
		c := buildChain(t, "neg", "neg")
		cfg := NewPassConfig()
		cfg.SetCallback(func(*ir.Node) bool { return true })

		_, err := NewGraphRewrite(nil, newCancelNegations().AsMatcherPass()).Run(context.Background(), c.g, cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{"neg", "neg"}, c.kinds())
	})
}

func TestPassConfig_Clone(t *testing.T) {
	cfg := NewPassConfig()
	cfg.Disable(recordType)
	cfg.DisableOp(ops.ReluType, ops.AddType)
	cfg.ForbidDisabledOps = true

	cp := cfg.Clone()
	cp.Enable(recordType)
	assert.True(t, cfg.IsDisabled(recordType))
	assert.False(t, cp.IsDisabled(recordType))
	assert.True(t, cp.ForbidDisabledOps)

	names := []string{}
	for _, info := range cp.DisabledOps() {
		names = append(names, info.Name())
	}
	assert.Equal(t, []string{"Add", "Relu"}, names)

	var nilCfg *PassConfig
	assert.False(t, nilCfg.IsDisabled(recordType))
	assert.NotNil(t, nilCfg.Clone())
}

func TestManager_RunsInOrder(t *testing.T) {
	c := buildChain(t, "neg")
	var order []string
	record := func(name string, info *rtti.TypeInfo) Pass {
		return NewFuncPass(info, func(ctx context.Context, g *ir.Graph) (bool, error) {
			order = append(order, name)
			assert.NotNil(t, ConfigFrom(ctx))
			return false, nil
		})
	}

	report, err := runManager(t, c.g, nil,
		record("first", recordType),
		record("second", rtti.New("Record", 1, nil)))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Len(t, report.Passes, 2)
	assert.False(t, report.Changed())
	assert.Equal(t, report.InitialNodes, report.FinalNodes)
}

func TestManager_DuplicateRegistration(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(newCancelNegations()))
	err := m.Register(newCancelNegations())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.DuplicatePass))
	assert.Len(t, m.Passes(), 1)

	assert.Panics(t, func() { NewManager().MustRegister(NewValidate(), NewValidate()) })
}

func TestManager_GraphInUse(t *testing.T) {
	c := buildChain(t, "neg")
	require.NoError(t, c.g.Acquire("someone-else"))

	_, err := runManager(t, c.g, nil, NewValidate())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.GraphInUse))

	c.g.Release("someone-else")
	_, err = runManager(t, c.g, nil, NewValidate())
	require.NoError(t, err)
	assert.False(t, c.g.OwnedBy("someone-else"))
}

func TestManager_MatcherPassStatistics(t *testing.T) {
	c := buildChain(t, "neg", "neg", "relu", "neg", "neg")
	rw := NewGraphRewrite(rtti.New("Simplify", 0, nil), newCancelNegations().AsMatcherPass())

	report, err := runManager(t, c.g, nil, rw, NewValidate())
	require.NoError(t, err)
	assert.Equal(t, []string{"relu"}, c.kinds())

	res, ok := report.Result("Simplify")
	require.True(t, ok)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Changes)
	assert.Equal(t, 2, res.Matches)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 7, report.InitialNodes)
	assert.Equal(t, 3, report.FinalNodes)
}

func TestManager_EmbeddedMatcherPass(t *testing.T) {
	c := buildChain(t, "neg", "neg")
	report, err := runManager(t, c.g, nil, newCancelNegations())
	require.NoError(t, err)

	res, ok := report.Result("CancelNegations")
	require.True(t, ok)
	assert.Equal(t, 1, res.Changes)
	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, c.kinds())
}

func TestManager_DisabledPassSkipped(t *testing.T) {
	c := buildChain(t, "neg", "neg")
	m := NewManager()
	require.NoError(t, m.Register(newCancelNegations()))
	Disable[*cancelNegations](m.Config())

	report, err := m.RunPasses(context.Background(), c.g)
	require.NoError(t, err)
	assert.Empty(t, report.Passes)
	assert.Equal(t, []string{"neg", "neg"}, c.kinds())
}

func TestManager_ConfigIsPerRun(t *testing.T) {
	c := buildChain(t, "neg")
	m := NewManager()
	var seen *PassConfig
	require.NoError(t, m.Register(NewFuncPass(recordType, func(ctx context.Context, g *ir.Graph) (bool, error) {
		seen = ConfigFrom(ctx)
		seen.Disable(cancelNegationsType)
		return false, nil
	})))

	_, err := m.RunPasses(context.Background(), c.g)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.NotSame(t, m.Config(), seen)
	assert.False(t, m.Config().IsDisabled(cancelNegationsType))
}

// addGraph builds param -> Add(param, param) -> result
func addGraph(t *testing.T) (*ir.Graph, *ir.Node) {
	t.Helper()
	g := ir.NewGraph("sum")
	p, err := ops.NewParameter(g, ir.F32, ir.Shape(2))
	require.NoError(t, err)
	sum, err := ops.NewAdd(g, p.Output(0), p.Output(0))
	require.NoError(t, err)
	_, err = ops.NewResult(g, sum.Output(0))
	require.NoError(t, err)
	return g, p
}

// breakTypes turns the parameter boolean, which Add rejects
func breakTypes(p *ir.Node) Pass {
	return NewFuncPass(breakTypesType, func(ctx context.Context, g *ir.Graph) (bool, error) {
		param, _ := ir.AsType[*ops.Parameter](p)
		param.ElemType = ir.Boolean
		return true, nil
	})
}

func TestManager_ValidationAbortsRun(t *testing.T) {
	g, p := addGraph(t)
	ran := false
	after := NewFuncPass(recordType, func(ctx context.Context, g *ir.Graph) (bool, error) {
		ran = true
		return false, nil
	})

	report, err := runManager(t, g, nil, breakTypes(p), after)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryInference, errors.CategoryOf(err))
	var ce *errors.CompilerError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "BreakTypes", ce.Pass)
	assert.NotEmpty(t, ce.Node)
	assert.False(t, ran)
	require.NotNil(t, report)
	assert.Len(t, report.Passes, 1)
	require.NoError(t, g.Acquire("after-run"))
}

func TestManager_PerPassValidationOff(t *testing.T) {
	g, p := addGraph(t)
	_, err := runManager(t, g, []Option{WithPerPassValidation(false)}, breakTypes(p))
	require.NoError(t, err)

	_, err = runManager(t, g, []Option{WithPerPassValidation(false)}, NewValidate())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryInference, errors.CategoryOf(err))
}

func TestManager_NonFatalErrorsBecomeDiagnostics(t *testing.T) {
	c := buildChain(t, "relu")
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	notFoldable := NewFuncPass(reportType, func(ctx context.Context, g *ir.Graph) (bool, error) {
		return false, errors.NewNotFoldable("Relu")
	})
	refresh := NewGraphRewrite(rtti.New("Refresh", 0, nil), newRefreshRelu())
	refresh.MaxIterations = 2

	report, err := runManager(t, c.g, []Option{WithMetrics(metrics)}, notFoldable, refresh)
	require.NoError(t, err)
	require.Len(t, report.Diagnostics, 2)
	assert.Equal(t, "ReportNotFoldable", report.Diagnostics[0].Pass)
	assert.True(t, stderrors.Is(report.Diagnostics[0], errors.NotFoldable))
	assert.True(t, stderrors.Is(report.Diagnostics[1], errors.NonConvergence))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PassErrors.WithLabelValues("ReportNotFoldable", "fold")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NonConvergence.WithLabelValues("Refresh")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PassChanges.WithLabelValues("Refresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PassRuns.WithLabelValues("Refresh")))
}

func TestManager_NestedManager(t *testing.T) {
	c := buildChain(t, "neg", "neg")
	inner := NewManager(WithName("Cleanup"))
	require.NoError(t, inner.Register(newCancelNegations()))

	outer := NewManager()
	require.NoError(t, outer.Register(inner))
	require.NoError(t, outer.Register(NewValidate()))

	outer.Config().Disable(inner.TypeInfo())
	_, err := outer.RunPasses(context.Background(), c.g)
	require.NoError(t, err)
	assert.Equal(t, []string{"neg", "neg"}, c.kinds())

	outer.Config().Enable(inner.TypeInfo())
	report, err := outer.RunPasses(context.Background(), c.g)
	require.NoError(t, err)
	assert.Empty(t, c.kinds())
	_, ok := report.Result("CancelNegations")
	assert.True(t, ok)
}

func TestManager_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	c := buildChain(t, "neg", "neg")

	_, err := runManager(t, c.g, []Option{WithTracer(tp.Tracer("test"))}, newCancelNegations(), NewValidate())
	require.NoError(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{"pass.CancelNegations", "pass.Validate", "lattice.run"}, names)
}

func TestManager_Cancelled(t *testing.T) {
	c := buildChain(t, "neg")
	m := NewManager()
	require.NoError(t, m.Register(NewValidate()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.RunPasses(ctx, c.g)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidate_RequiresOwningRun(t *testing.T) {
	c := buildChain(t, "neg")
	_, err := NewValidate().RunOnGraph(context.Background(), c.g)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ForeignGraph))
}

func TestManager_DisabledOpsRemaining(t *testing.T) {
	t.Run("direct type", func(t *testing.T) {
		c := buildChain(t, "relu", "neg")
		cfg := NewPassConfig()
		cfg.DisableOp(ops.ReluType)
		cfg.ForbidDisabledOps = true

		_, err := runManager(t, c.g, []Option{WithConfig(cfg)}, NewValidate())
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.DisabledOpRemaining))
	})

	t.Run("through lineage", func(t *testing.T) {
		g := ir.NewGraph("gather")
		data, err := ops.NewParameter(g, ir.F32, ir.Shape(2, 3))
		require.NoError(t, err)
		idx, err := ops.NewParameter(g, ir.I32, ir.Shape(2, 1))
		require.NoError(t, err)
		gather, err := ops.NewGatherNDv8(g, data.Output(0), idx.Output(0), 0)
		require.NoError(t, err)
		_, err = ops.NewResult(g, gather.Output(0))
		require.NoError(t, err)

		cfg := NewPassConfig()
		cfg.DisableOp(ops.GatherNDType)
		err = CheckDisabledOps(g, cfg)
		require.Error(t, err)
		var ce *errors.CompilerError
		require.True(t, stderrors.As(err, &ce))
		assert.Contains(t, ce.Actual, gather.Name())
	})

	t.Run("removed by a pass", func(t *testing.T) {
		c := buildChain(t, "neg", "neg")
		cfg := NewPassConfig()
		cfg.DisableOp(ops.NegativeType)
		cfg.ForbidDisabledOps = true

		_, err := runManager(t, c.g, []Option{WithConfig(cfg)}, newCancelNegations())
		require.NoError(t, err)
	})
}

func TestReport_JSON(t *testing.T) {
	c := buildChain(t, "neg", "neg")
	report, err := runManager(t, c.g, nil, newCancelNegations())
	require.NoError(t, err)

	out, err := report.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"graph": "chain"`)
	assert.Contains(t, out, `"name": "CancelNegations"`)
	assert.NotContains(t, out, "diagnostics")
}

func TestParseOrder(t *testing.T) {
	o, ok := ParseOrder("bottom_up")
	assert.True(t, ok)
	assert.Equal(t, BottomUp, o)
	assert.Equal(t, "bottom_up", o.String())

	o, ok = ParseOrder("sideways")
	assert.False(t, ok)
	assert.Equal(t, TopDown, o)
}
