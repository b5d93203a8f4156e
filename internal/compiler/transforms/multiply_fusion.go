package transforms

import (
	"github.com/lattice-ir/lattice/internal/compiler/fold"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
	"github.com/lattice-ir/lattice/internal/compiler/pass"
	"github.com/lattice-ir/lattice/internal/compiler/pattern"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// MultiplyFusionType identifies MultiplyFusion in a PassConfig.
var MultiplyFusionType = rtti.New("MultiplyFusion", 0, nil)

// MultiplyFusion rewrites Multiply(Multiply(X, C1), C2) to Multiply(X, C1*C2).
// The inner Multiply must have no other consumer, so every rewrite shrinks
// the graph.
type MultiplyFusion struct {
	*pass.MatcherPass

	evaluator        *fold.Evaluator
	x, c1, c2, inner *pattern.Node
}

func (*MultiplyFusion) TypeInfo() *rtti.TypeInfo { return MultiplyFusionType }

// NewMultiplyFusion creates the pass; nil uses a private evaluator.
func NewMultiplyFusion(ev *fold.Evaluator) *MultiplyFusion {
	if ev == nil {
		ev = fold.NewEvaluator(fold.DefaultMaxElements)
	}
	p := &MultiplyFusion{
		evaluator: ev,
		x:         pattern.Any().Named("x"),
		c1:        pattern.Wrap[*ops.Constant](nil).Named("c1"),
		c2:        pattern.Wrap[*ops.Constant](nil).Named("c2"),
	}
	p.inner = pattern.Wrap[*ops.Multiply](pattern.Inputs(p.x, p.c1), pattern.ConsumersCount(1)).Named("inner")
	root := pattern.Wrap[*ops.Multiply](pattern.Inputs(p.inner, p.c2))
	p.MatcherPass = pass.NewMatcherPass(MultiplyFusionType, root, p.fuse)
	return p
}

func (p *MultiplyFusion) fuse(m *pattern.Matcher) bool {
	outer := m.MatchRoot()
	g := outer.Graph()

	x, _ := m.Value(p.x)
	innerOut, _ := m.Value(p.inner)
	c1Out, _ := m.Value(p.c1)
	c2Out, _ := m.Value(p.c2)
	c1, _ := ops.AsConstant(c1Out)
	c2, _ := ops.AsConstant(c2Out)

	product, err := p.evaluator.Fold(&ops.Multiply{}, []*ops.Constant{c1, c2})
	if err != nil {
		return false
	}
	scale, err := g.Add(product)
	if err != nil {
		return false
	}
	fused, err := ops.NewMultiply(g, x, scale.Output(0))
	if err != nil {
		_ = g.Remove(scale)
		return false
	}

	inner := innerOut.Node()
	ir.CopyRuntimeInfo([]*ir.Node{outer, inner}, fused)
	if err := g.ReplaceNode(outer, fused); err != nil {
		_ = g.Remove(fused)
		_ = g.Remove(scale)
		return false
	}
	for _, n := range []*ir.Node{inner, c1Out.Node(), c2Out.Node()} {
		if n.Alive() && n.ConsumerCount() == 0 {
			_ = g.Remove(n)
		}
	}
	return true
}
