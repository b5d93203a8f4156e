// Package pass runs graph transformations.
//
// A MatcherPass pairs a pattern with a rewrite callback. A GraphRewrite runs a
// batch of matcher passes over the graph until a traversal changes nothing. A
// Manager sequences passes of every kind, owns the graph for the duration of a
// run and validates it after each pass.
package pass

import (
	"context"

	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// Pass is anything a Manager can run. Each pass has its own discrete type;
// PassConfig addresses passes by it.
type Pass interface {
	rtti.Typed
	Name() string
}

// GraphPass transforms a whole graph at once.
type GraphPass interface {
	Pass
	RunOnGraph(ctx context.Context, g *ir.Graph) (changed bool, err error)
}

// Order is the traversal order of a rewrite.
type Order int

const (
	// TopDown visits producers before consumers.
	TopDown Order = iota
	// BottomUp visits consumers before producers.
	BottomUp
)

func (o Order) String() string {
	if o == BottomUp {
		return "bottom_up"
	}
	return "top_down"
}

// ParseOrder parses "top_down" or "bottom_up".
func ParseOrder(s string) (Order, bool) {
	switch s {
	case "top_down", "":
		return TopDown, true
	case "bottom_up":
		return BottomUp, true
	default:
		return TopDown, false
	}
}

func traversal(g *ir.Graph, order Order) []ir.NodeID {
	nodes := g.TopologicalOrder()
	if order == BottomUp {
		nodes = g.ReverseTopologicalOrder()
	}
	ids := make([]ir.NodeID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	return ids
}

// FuncPass adapts a function to GraphPass.
type FuncPass struct {
	info *rtti.TypeInfo
	fn   func(ctx context.Context, g *ir.Graph) (bool, error)
}

// NewFuncPass creates a GraphPass identified by info.
func NewFuncPass(info *rtti.TypeInfo, fn func(ctx context.Context, g *ir.Graph) (bool, error)) *FuncPass {
	return &FuncPass{info: info, fn: fn}
}

func (p *FuncPass) TypeInfo() *rtti.TypeInfo { return p.info }
func (p *FuncPass) Name() string { return p.info.Name() }

func (p *FuncPass) RunOnGraph(ctx context.Context, g *ir.Graph) (bool, error) {
	return p.fn(ctx, g)
}

// runState travels in the context of a Manager run.
type runState struct {
	owner  string
	config *PassConfig
}

type runStateKey struct{}

func withRunState(ctx context.Context, st *runState) context.Context {
	return context.WithValue(ctx, runStateKey{}, st)
}

func runStateFrom(ctx context.Context) *runState {
	st, _ := ctx.Value(runStateKey{}).(*runState)
	return st
}

// ConfigFrom returns the PassConfig of the Manager run ctx belongs to, or nil.
func ConfigFrom(ctx context.Context) *PassConfig {
	if st := runStateFrom(ctx); st != nil {
		return st.config
	}
	return nil
}
