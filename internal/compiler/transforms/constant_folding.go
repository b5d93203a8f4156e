// Package transforms holds the general purpose graph transformations and the
// default pipeline that strings them together with the low precision ones.
package transforms

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/fold"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
	"github.com/lattice-ir/lattice/internal/telemetry"
)

// ConstantFoldingType identifies ConstantFolding in a PassConfig.
var ConstantFoldingType = rtti.New("ConstantFolding", 0, nil)

// ConstantFolding replaces every compute node whose inputs are all Constants
// with the Constant it evaluates to. Nodes marked with
// ir.DisableConstFoldingKey are kept, as are nodes the evaluator refuses.
type ConstantFolding struct {
	evaluator *fold.Evaluator

	Logger  *zap.Logger
	Metrics *telemetry.Metrics
}

// NewConstantFolding creates the pass; nil uses a private evaluator.
func NewConstantFolding(ev *fold.Evaluator) *ConstantFolding {
	if ev == nil {
		ev = fold.NewEvaluator(fold.DefaultMaxElements)
	}
	return &ConstantFolding{evaluator: ev, Logger: zap.NewNop()}
}

func (*ConstantFolding) TypeInfo() *rtti.TypeInfo { return ConstantFoldingType }
func (*ConstantFolding) Name() string { return ConstantFoldingType.Name() }

// Evaluator returns the evaluator the pass folds with.
func (p *ConstantFolding) Evaluator() *fold.Evaluator { return p.evaluator }

// RunOnGraph folds in topological order, so chains of constant expressions
// collapse in a single run. Fold diagnostics never fail the pass.
func (p *ConstantFolding) RunOnGraph(ctx context.Context, g *ir.Graph) (bool, error) {
	hits, misses := p.evaluator.Stats()
	defer func() {
		h, m := p.evaluator.Stats()
		p.Metrics.ObserveFoldCache(h-hits, m-misses)
	}()

	changed := false
	for _, n := range g.TopologicalOrder() {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		if !n.Alive() || !foldable(n) {
			continue
		}

		inputs := make([]*ir.Node, 0, n.InputCount())
		for _, in := range n.InputValues() {
			inputs = append(inputs, in.Node())
		}
		folded, err := p.evaluator.FoldNode(g, n)
		if err != nil {
			var ce *errors.CompilerError
			if stderrors.As(err, &ce) && ce.Category == errors.CategoryFold {
				p.Logger.Debug("node kept", zap.String("node", n.Name()), zap.String("code", string(ce.Code)))
				continue
			}
			return changed, err
		}
		changed = true
		p.Logger.Debug("node folded", zap.String("node", folded.Name()))

		for _, c := range inputs {
			if c.Alive() && c.ConsumerCount() == 0 {
				_ = g.Remove(c)
			}
		}
	}
	return changed, nil
}

// foldable reports a compute node fed only by Constants.
func foldable(n *ir.Node) bool {
	if ir.RoleOf(n.Op()) != ir.RoleCompute || n.InputCount() == 0 {
		return false
	}
	if off, _ := n.RTInfo()[ir.DisableConstFoldingKey].(bool); off {
		return false
	}
	for _, in := range n.InputValues() {
		if !ops.IsConstant(in) {
			return false
		}
	}
	return true
}
