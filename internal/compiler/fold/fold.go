// Package fold evaluates ops over constant inputs at compile time.
//
// The evaluator never folds partially: either every output element is
// computed or a fold diagnostic (FLD5xx) is returned and the graph is left
// alone. Fold diagnostics are local; callers keep the original node.
package fold

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
)

// DefaultMaxElements bounds the size of a folded tensor.
const DefaultMaxElements = 1 << 20

const (
	defaultExpiration = 10 * time.Minute
	cleanupInterval   = 30 * time.Minute
)

// Evaluator folds ops over constants and memoizes the results. It is safe for
// concurrent use.
type Evaluator struct {
	// MaxElements bounds inputs and results; zero or less disables the guard.
	MaxElements int

	cache  *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewEvaluator creates an evaluator with a result cache.
func NewEvaluator(maxElements int) *Evaluator {
	return &Evaluator{
		MaxElements: maxElements,
		cache:       gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Stats returns the number of cache hits and misses so far.
func (e *Evaluator) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}

// Fold computes op over inputs. A nil input is reported as non-constant.
func (e *Evaluator) Fold(op ir.Op, inputs []*ops.Constant) (*ops.Constant, error) {
	name := op.TypeInfo().Name()

	descs := make([]ir.TensorDesc, len(inputs))
	for i, in := range inputs {
		if in == nil {
			return nil, errors.NewNonConstantInput(name, i)
		}
		if err := e.checkSize(name, in.Len()); err != nil {
			return nil, err
		}
		descs[i] = ir.TensorDesc{ElementType: in.ElemType, Shape: in.Shape}
	}

	kernel, ok := kernels[op.TypeInfo().Key()]
	if !ok {
		return nil, errors.NewNotFoldable(op.TypeInfo().String())
	}

	outs, err := op.InferTypes(descs)
	if err != nil {
		return nil, errors.NewNotFoldable(op.TypeInfo().String()).WithCause(err)
	}
	out := outs[0]
	dims, ok := out.Shape.ToShape()
	if !ok {
		return nil, errors.NewNotFoldable(op.TypeInfo().String()).
			WithActual("result shape " + out.Shape.String())
	}
	count, _ := out.Shape.ElementCount()
	if err := e.checkSize(name, int(count)); err != nil {
		return nil, err
	}

	key := fingerprint(op, inputs)
	if e.cache != nil {
		if cached, found := e.cache.Get(key); found {
			if c, ok := cached.(*ops.Constant); ok {
				e.hits.Add(1)
				return c.Clone().(*ops.Constant), nil
			}
		}
	}
	e.misses.Add(1)

	values, err := kernel(op, inputs, dims, out.ElementType)
	if err != nil {
		return nil, err
	}
	result, err := ops.NewConstantOp(out.ElementType, dims, values)
	if err != nil {
		return nil, errors.NewNotFoldable(op.TypeInfo().String()).WithCause(err)
	}

	if e.cache != nil {
		e.cache.Set(key, result.Clone(), gocache.DefaultExpiration)
	}
	return result, nil
}

func (e *Evaluator) checkSize(op string, elements int) error {
	if e.MaxElements > 0 && elements > e.MaxElements {
		return errors.NewFoldSizeLimit(op, elements, e.MaxElements)
	}
	return nil
}

// FoldNode folds n when every input is produced by a Constant. The folded
// Constant replaces n, takes over its friendly name and records n in its
// fused names.
func (e *Evaluator) FoldNode(g *ir.Graph, n *ir.Node) (*ir.Node, error) {
	name := n.TypeInfo().String()
	if ir.RoleOf(n.Op()) != ir.RoleCompute || n.OutputCount() != 1 {
		return nil, errors.NewNotFoldable(name)
	}
	if disabled, _ := n.RTInfo()[ir.DisableConstFoldingKey].(bool); disabled {
		return nil, errors.NewNotFoldable(name).WithNode(n.Name(), name).
			WithActual(ir.DisableConstFoldingKey)
	}

	inputs := make([]*ops.Constant, n.InputCount())
	for i, src := range n.InputValues() {
		c, ok := ops.AsConstant(src)
		if !ok {
			return nil, errors.NewNonConstantInput(name, i).WithNode(n.Name(), name)
		}
		inputs[i] = c
	}

	folded, err := e.Fold(n.Op(), inputs)
	if err != nil {
		return nil, err
	}
	replacement, err := g.Add(folded)
	if err != nil {
		return nil, err
	}
	ir.CopyRuntimeInfo([]*ir.Node{n}, replacement)
	if err := g.ReplaceNode(n, replacement); err != nil {
		_ = g.Remove(replacement)
		return nil, err
	}
	return replacement, nil
}

// FoldOutput returns the Constant behind out, folding its producer first when
// all of the producer's inputs are constant.
func (e *Evaluator) FoldOutput(g *ir.Graph, out ir.Output) (*ops.Constant, ir.Output, error) {
	if c, ok := ops.AsConstant(out); ok {
		return c, out, nil
	}
	node, err := e.FoldNode(g, out.Node())
	if err != nil {
		return nil, out, err
	}
	c, _ := ops.AsConstant(node.Output(0))
	return c, node.Output(0), nil
}
