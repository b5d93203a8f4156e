package pass

import (
	"context"

	"go.uber.org/zap"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/pattern"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// Callback rewrites the subgraph the matcher just bound. It returns true when
// the graph changed. A callback that declines returns false and leaves the
// graph as it was.
type Callback func(m *pattern.Matcher) bool

// MatcherPass applies one pattern and its callback to every node of a graph.
// Transformations usually embed *MatcherPass and override TypeInfo with their
// own static identity.
type MatcherPass struct {
	info     *rtti.TypeInfo
	matcher  *pattern.Matcher
	callback Callback

	config *PassConfig
	logger *zap.Logger
}

// NewMatcherPass creates a pass identified by info.
func NewMatcherPass(info *rtti.TypeInfo, root *pattern.Node, cb Callback) *MatcherPass {
	return &MatcherPass{
		info:     info,
		matcher:  pattern.NewMatcher(root, info.Name()),
		callback: cb,
		logger:   zap.NewNop(),
	}
}

func (p *MatcherPass) TypeInfo() *rtti.TypeInfo { return p.info }
func (p *MatcherPass) Name() string { return p.info.Name() }

// AsMatcherPass returns p; embedding types inherit it.
func (p *MatcherPass) AsMatcherPass() *MatcherPass { return p }

// Matcher returns the pass's matcher.
func (p *MatcherPass) Matcher() *pattern.Matcher { return p.matcher }

// Config returns the PassConfig of the current run. Outside a run it is an
// empty configuration.
func (p *MatcherPass) Config() *PassConfig {
	if p.config == nil {
		p.config = NewPassConfig()
	}
	return p.config
}

// Logger returns the logger of the current run.
func (p *MatcherPass) Logger() *zap.Logger { return p.logger }

// Vetoed reports whether the current run's config vetoes n for this pass.
func (p *MatcherPass) Vetoed(n *ir.Node) bool {
	return p.Config().Vetoed(p.info, n)
}

func (p *MatcherPass) bind(cfg *PassConfig, logger *zap.Logger) {
	p.config = cfg
	if logger != nil {
		p.logger = logger
	}
}

// apply matches n and runs the callback on a match.
func (p *MatcherPass) apply(n *ir.Node) (matched, changed bool) {
	if p.config.IsDisabled(p.info) || p.config.Vetoed(p.info, n) {
		return false, false
	}
	if !p.matcher.MatchNode(n) {
		return false, false
	}
	changed = p.callback(p.matcher)
	if changed {
		p.logger.Debug("rewrite applied",
			zap.String("pass", p.info.Name()),
			zap.String("node", n.Name()))
	}
	return true, changed
}

// RunOnGraph makes a single top-down traversal.
func (p *MatcherPass) RunOnGraph(ctx context.Context, g *ir.Graph) (bool, error) {
	stats, err := p.runWithStats(ctx, g, nil)
	return stats.changes > 0, err
}

func (p *MatcherPass) runWithStats(ctx context.Context, g *ir.Graph, logger *zap.Logger) (passStats, error) {
	var stats passStats
	cfg := ConfigFrom(ctx)
	if cfg == nil {
		cfg = NewPassConfig()
	}
	p.bind(cfg, logger)
	if cfg.IsDisabled(p.info) {
		return stats, nil
	}

	stats.iterations = 1
	for _, id := range traversal(g, TopDown) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		matched, changed := p.apply(n)
		if matched {
			stats.matches++
		}
		if changed {
			stats.changes++
		}
	}
	return stats, nil
}

// passStats is what a pass reports back to the Manager.
type passStats struct {
	matches     int
	changes     int
	iterations  int
	diagnostics errors.ErrorList
}

// statsPass is implemented by the pass kinds that report match statistics.
type statsPass interface {
	runWithStats(ctx context.Context, g *ir.Graph, logger *zap.Logger) (passStats, error)
}
