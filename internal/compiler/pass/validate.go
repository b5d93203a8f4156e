package pass

import (
	"context"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// ValidateType identifies the validation pass.
var ValidateType = rtti.New("Validate", 0, nil)

// Validate re-runs type inference over the graph and, when the run forbids
// them, rejects op types the run's config disabled. It only runs inside the
// Manager run that owns the graph.
type Validate struct{}

// NewValidate creates the validation pass.
func NewValidate() *Validate { return &Validate{} }

func (*Validate) TypeInfo() *rtti.TypeInfo { return ValidateType }
func (*Validate) Name() string { return ValidateType.Name() }

func (*Validate) RunOnGraph(ctx context.Context, g *ir.Graph) (bool, error) {
	st := runStateFrom(ctx)
	if st == nil || !g.OwnedBy(st.owner) {
		return false, errors.NewForeignGraph(g.ID().String())
	}
	if err := g.Validate(); err != nil {
		return false, err
	}
	if st.config.ForbidDisabledOps {
		return false, CheckDisabledOps(g, st.config)
	}
	return false, nil
}

// CheckDisabledOps fails with CFG806 when g still holds an op type cfg
// disabled, naming the first offending op and every node of that type.
func CheckDisabledOps(g *ir.Graph, cfg *PassConfig) error {
	var op string
	var names []string
	for _, n := range g.TopologicalOrder() {
		if !cfg.IsOpDisabled(n) {
			continue
		}
		if op == "" {
			op = n.TypeInfo().String()
		}
		if n.TypeInfo().String() == op {
			names = append(names, n.Name())
		}
	}
	if op == "" {
		return nil
	}
	return errors.NewDisabledOpRemaining(op, names)
}
