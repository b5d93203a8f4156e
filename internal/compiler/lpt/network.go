package lpt

import (
	"github.com/lattice-ir/lattice/internal/compiler/fold"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
)

// network edits one graph on behalf of a transformation. Every rewrite either
// completes or leaves the graph as it found it.
type network struct {
	g  *ir.Graph
	ev *fold.Evaluator
}

// builder adds nodes and remembers them so a failed rewrite can take them back.
type builder struct {
	g       *ir.Graph
	created []*ir.Node
	err     error
}

func (b *builder) add(op ir.Op, inputs ...ir.Output) ir.Output {
	if b.err != nil {
		return ir.Output{}
	}
	n, err := b.g.Add(op, inputs...)
	if err != nil {
		b.err = err
		return ir.Output{}
	}
	b.created = append(b.created, n)
	return n.Output(0)
}

func (b *builder) constant(c *ops.Constant) ir.Output { return b.add(c) }

// convertTo inserts a Convert when out is not already of type et.
func (b *builder) convertTo(out ir.Output, et ir.ElementType) ir.Output {
	if b.err != nil || out.ElementType() == et {
		return out
	}
	return b.add(&ops.Convert{Destination: et}, out)
}

func (b *builder) rollback() {
	for i := len(b.created) - 1; i >= 0; i-- {
		_ = b.g.Remove(b.created[i])
	}
	b.created = nil
}

// replace swaps old for the node producing out, moving runtime info onto
// every node listed in info, then drops what became unreachable.
func (nw *network) replace(b *builder, old *ir.Node, out ir.Output, info ...*ir.Node) bool {
	if b.err != nil {
		b.rollback()
		return false
	}
	inputs := inputNodes(old)
	for _, n := range info {
		ir.CopyRuntimeInfo([]*ir.Node{old}, n)
	}
	if err := nw.g.ReplaceNode(old, out.Node()); err != nil {
		b.rollback()
		return false
	}
	removeDead(nw.g, inputs...)
	return true
}

func (nw *network) fold(op ir.Op, inputs ...*ops.Constant) (*ops.Constant, bool) {
	c, err := nw.ev.Fold(op, inputs)
	return c, err == nil
}

// foldDequantization folds the chain feeding input i of n when it runs over a
// constant. It reports whether input i is now a Constant.
func (nw *network) foldDequantization(n *ir.Node, i int) bool {
	d := GetDequantization(n, i)
	if !d.DataIsConstant() {
		return ops.IsConstant(n.InputValue(i))
	}
	for _, step := range d.Nodes() {
		inputs := inputNodes(step)
		if _, err := nw.ev.FoldNode(nw.g, step); err != nil {
			break
		}
		removeDead(nw.g, inputs...)
	}
	return ops.IsConstant(n.InputValue(i))
}

// fuseWithSubtract rewrites Add(Subtract(X, C1), C2) to Subtract(X, C1-C2).
func (nw *network) fuseWithSubtract(add *ir.Node) (*ir.Node, bool) {
	if !ir.IsType[*ops.Add](add) {
		return nil, false
	}
	for s := 0; s < 2; s++ {
		sub := add.InputNode(s)
		if !ir.IsType[*ops.Subtract](sub) {
			continue
		}
		c1, ok := ops.AsConstant(sub.InputValue(1))
		if !ok {
			continue
		}
		c2, ok := ops.AsConstant(add.InputValue(1 - s))
		if !ok {
			continue
		}
		shift, ok := nw.fold(&ops.Subtract{}, c1, c2)
		if !ok {
			return nil, false
		}

		b := &builder{g: nw.g}
		out := b.add(&ops.Subtract{}, sub.InputValue(0), b.constant(shift))
		if !nw.replace(b, add, out, out.Node()) {
			return nil, false
		}
		return out.Node(), true
	}
	return nil, false
}

// replaceToSubtract rewrites Add(X, C) to Subtract(X, -C). Adds fed by a
// convolution or by a matrix product with a constant operand are left for
// the bias fusions.
func (nw *network) replaceToSubtract(add *ir.Node) (*ir.Node, bool) {
	if !ir.IsType[*ops.Add](add) {
		return nil, false
	}
	constBranch := -1
	for i := 0; i < 2; i++ {
		if ops.IsConstant(add.InputValue(i)) {
			constBranch = i
			break
		}
	}
	if constBranch == -1 {
		return nil, false
	}
	data := add.InputValue(1 - constBranch)
	if feedsBias(data.Node()) {
		return nil, false
	}

	c, _ := ops.AsConstant(add.InputValue(constBranch))
	negated, ok := nw.fold(&ops.Negative{}, c)
	if !ok {
		return nil, false
	}

	b := &builder{g: nw.g}
	out := b.add(&ops.Subtract{}, data, b.constant(negated))
	if !nw.replace(b, add, out, out.Node()) {
		return nil, false
	}
	return out.Node(), true
}

func feedsBias(n *ir.Node) bool {
	if ir.IsType[*ops.Convolution](n) {
		return true
	}
	if ir.IsType[*ops.MatMul](n) {
		return ops.IsConstant(n.InputValue(0)) || ops.IsConstant(n.InputValue(1))
	}
	return false
}

// swapMultiplyAndAdd rewrites Add(Multiply(X, S), C) to
// Multiply(Add(X, C/S), S) where mulBranch is the Multiply's input index.
func (nw *network) swapMultiplyAndAdd(add *ir.Node, mulBranch int) (*ir.Node, bool) {
	mul := add.InputNode(mulBranch)
	scale, x, ok := constantOperand(mul)
	if !ok {
		return nil, false
	}
	c, ok := ops.AsConstant(add.InputValue(1 - mulBranch))
	if !ok {
		return nil, false
	}
	shift, ok := nw.fold(&ops.Divide{}, c, scale)
	if !ok {
		return nil, false
	}

	b := &builder{g: nw.g}
	sum := b.add(&ops.Add{}, x, b.constant(shift))
	out := b.add(&ops.Multiply{}, sum, b.constant(scale.Clone().(*ops.Constant)))
	if !nw.replace(b, add, out, out.Node(), sum.Node()) {
		return nil, false
	}
	return out.Node(), true
}

func inputNodes(n *ir.Node) []*ir.Node {
	out := make([]*ir.Node, 0, n.InputCount())
	for i := 0; i < n.InputCount(); i++ {
		out = append(out, n.InputNode(i))
	}
	return out
}

// removeDead drops nodes left without consumers, walking up through their
// producers. Parameters and Results are never removed.
func removeDead(g *ir.Graph, nodes ...*ir.Node) {
	stack := append([]*ir.Node(nil), nodes...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil || !n.Alive() || n.ConsumerCount() > 0 {
			continue
		}
		if role := ir.RoleOf(n.Op()); role == ir.RoleParameter || role == ir.RoleResult {
			continue
		}
		inputs := inputNodes(n)
		if g.Remove(n) == nil {
			stack = append(stack, inputs...)
		}
	}
}
