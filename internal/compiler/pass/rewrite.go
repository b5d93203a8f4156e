package pass

import (
	"context"

	"go.uber.org/zap"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// DefaultMaxIterations caps the traversals of a GraphRewrite.
const DefaultMaxIterations = 10

// GraphRewriteType identifies a GraphRewrite built without its own identity.
var GraphRewriteType = rtti.New("GraphRewrite", 0, nil)

// RewriteResult summarizes a fixed-point run.
type RewriteResult struct {
	Iterations  int
	Matches     int
	Changes     int
	Converged   bool
	Diagnostics errors.ErrorList
}

// GraphRewrite runs a batch of matcher passes to a fixed point. Each traversal
// visits the nodes present when it starts, in Order; nodes removed during the
// traversal are skipped and nodes added during it wait for the next one. For
// every node the passes are tried in registration order and the first
// rewrite moves the traversal on to the next node.
type GraphRewrite struct {
	info   *rtti.TypeInfo
	passes []*MatcherPass

	Order         Order
	MaxIterations int
}

// NewGraphRewrite creates a rewrite identified by info; nil selects
// GraphRewriteType.
func NewGraphRewrite(info *rtti.TypeInfo, passes ...*MatcherPass) *GraphRewrite {
	if info == nil {
		info = GraphRewriteType
	}
	return &GraphRewrite{
		info:          info,
		passes:        append([]*MatcherPass(nil), passes...),
		Order:         TopDown,
		MaxIterations: DefaultMaxIterations,
	}
}

func (r *GraphRewrite) TypeInfo() *rtti.TypeInfo { return r.info }
func (r *GraphRewrite) Name() string { return r.info.Name() }

// Add appends matcher passes.
func (r *GraphRewrite) Add(passes ...*MatcherPass) { r.passes = append(r.passes, passes...) }

// Passes returns the batched matcher passes.
func (r *GraphRewrite) Passes() []*MatcherPass { return append([]*MatcherPass(nil), r.passes...) }

// Run rewrites g to a fixed point under cfg. Hitting MaxIterations is not an
// error: the result carries an FXP601 warning and g holds the rewrites made so
// far.
func (r *GraphRewrite) Run(ctx context.Context, g *ir.Graph, cfg *PassConfig) (RewriteResult, error) {
	if cfg == nil {
		cfg = NewPassConfig()
	}
	if st := runStateFrom(ctx); st == nil || st.config != cfg {
		ctx = withRunState(ctx, &runState{config: cfg})
	}
	stats, err := r.runWithStats(ctx, g, nil)
	return RewriteResult{
		Iterations:  stats.iterations,
		Matches:     stats.matches,
		Changes:     stats.changes,
		Converged:   len(stats.diagnostics) == 0 && err == nil,
		Diagnostics: stats.diagnostics,
	}, err
}

// RunOnGraph runs the rewrite under the current Manager run's config.
func (r *GraphRewrite) RunOnGraph(ctx context.Context, g *ir.Graph) (bool, error) {
	stats, err := r.runWithStats(ctx, g, nil)
	return stats.changes > 0, err
}

func (r *GraphRewrite) runWithStats(ctx context.Context, g *ir.Graph, logger *zap.Logger) (passStats, error) {
	var stats passStats
	cfg := ConfigFrom(ctx)
	if cfg == nil {
		cfg = NewPassConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var active []*MatcherPass
	for _, p := range r.passes {
		p.bind(cfg, logger)
		if !cfg.IsDisabled(p.info) {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return stats, nil
	}

	limit := r.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}

	for stats.iterations < limit {
		stats.iterations++
		changes := 0
		for _, id := range traversal(g, r.Order) {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			n, ok := g.Node(id)
			if !ok {
				continue
			}
			for _, p := range active {
				if !n.Alive() {
					break
				}
				matched, changed := p.apply(n)
				if matched {
					stats.matches++
				}
				if changed {
					changes++
					break
				}
			}
		}
		stats.changes += changes

		if changes == 0 {
			logger.Debug("fixed point reached",
				zap.String("pass", r.Name()),
				zap.Int("iterations", stats.iterations))
			return stats, nil
		}
		if stats.iterations == limit {
			diag := errors.NewNonConvergence(r.Name(), stats.iterations, changes)
			stats.diagnostics = append(stats.diagnostics, diag)
			logger.Warn("fixed point not reached",
				zap.String("pass", r.Name()),
				zap.Int("iterations", stats.iterations),
				zap.Int("last_changes", changes))
		}
	}
	return stats, nil
}
