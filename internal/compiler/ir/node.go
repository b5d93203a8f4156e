package ir

import (
	stderrors "errors"
	"fmt"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// NodeID is a stable handle into a graph's arena.
type NodeID int64

// OutputRef is the (producer, output index) half of an edge
type OutputRef struct {
	Node  NodeID
	Index int
}

// InputRef is the (consumer, input index) half of an edge.
type InputRef struct {
	Node  NodeID
	Index int
}

// Node is a single operation in a graph. The graph's arena owns every node;
// a node refers to its producers through OutputRefs and never to its consumers.
type Node struct {
	graph   *Graph
	id      NodeID
	op      Op
	name    string
	inputs  []OutputRef
	outputs []TensorDesc
	rt      RTInfo
}

// ID returns the node's arena handle.
func (n *Node) ID() NodeID { return n.id }

// Op returns the node's operation.
func (n *Node) Op() Op { return n.op }

// TypeInfo returns the discrete type of the node's op.
func (n *Node) TypeInfo() *rtti.TypeInfo { return n.op.TypeInfo() }

// Name returns the friendly name.
func (n *Node) Name() string { return n.name }

// Graph returns the owning graph, or nil once the node was removed.
func (n *Node) Graph() *Graph { return n.graph }

// Alive reports whether the node is still in its graph's arena.
func (n *Node) Alive() bool {
	return n.graph != nil && n.graph.nodes[n.id] == n
}

// SetName renames the node; names are unique within a graph.
func (n *Node) SetName(name string) error {
	if n.graph == nil {
		n.name = name
		return nil
	}
	return n.graph.rename(n, name)
}

// RTInfo returns the node's runtime metadata, creating it on first use.
func (n *Node) RTInfo() RTInfo {
	if n.rt == nil {
		n.rt = RTInfo{}
	}
	return n.rt
}

// InputCount returns the number of inputs.
func (n *Node) InputCount() int { return len(n.inputs) }

// OutputCount returns the number of outputs
func (n *Node) OutputCount() int { return len(n.outputs) }

// Input returns the i-th input handle.
func (n *Node) Input(i int) Input { return Input{node: n, index: i} }

// Inputs returns every input handle.
func (n *Node) Inputs() []Input {
	out := make([]Input, len(n.inputs))
	for i := range n.inputs {
		out[i] = Input{node: n, index: i}
	}
	return out
}

// InputValue returns the output feeding input i.
func (n *Node) InputValue(i int) Output {
	ref := n.inputs[i]
	return Output{node: n.graph.nodes[ref.Node], index: ref.Index}
}

// InputValues returns the outputs feeding every input.
func (n *Node) InputValues() []Output {
	out := make([]Output, len(n.inputs))
	for i := range n.inputs {
		out[i] = n.InputValue(i)
	}
	return out
}

// InputNode returns the producer of input i.
func (n *Node) InputNode(i int) *Node {
	return n.graph.nodes[n.inputs[i].Node]
}

// Output returns the i-th output handle
func (n *Node) Output(i int) Output { return Output{node: n, index: i} }

// Outputs returns every output handle
func (n *Node) Outputs() []Output {
	out := make([]Output, len(n.outputs))
	for i := range n.outputs {
		out[i] = Output{node: n, index: i}
	}
	return out
}

// ConsumerCount returns the number of inputs fed by any of n's outputs.
func (n *Node) ConsumerCount() int {
	total := 0
	for i := range n.outputs {
		total += len(n.Output(i).Targets())
	}
	return total
}

// VisitAttributes walks the op's attributes.
func (n *Node) VisitAttributes(v AttributeVisitor) { n.op.VisitAttributes(v) }

// ValidateAndInferTypes recomputes this node's outputs from its current inputs.
// It writes nothing but this node's own output descriptors.
func (n *Node) ValidateAndInferTypes() error {
	descs := make([]TensorDesc, len(n.inputs))
	for i := range n.inputs {
		descs[i] = n.InputValue(i).Desc()
	}

	outs, err := n.op.InferTypes(descs)
	if err != nil {
		return n.annotate(err)
	}
	n.outputs = outs
	return nil
}

// CloneWithNewInputs adds a copy of n bound to different producers.
func (n *Node) CloneWithNewInputs(inputs []Output) (*Node, error) {
	if n.graph == nil {
		return nil, errors.NewForeignNode(n.name)
	}
	clone, err := n.graph.Add(n.op.Clone(), inputs...)
	if err != nil {
		return nil, err
	}
	for k, v := range n.rt {
		clone.RTInfo()[k] = v
	}
	return clone, nil
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.name, n.op.TypeInfo())
}

// annotate attaches node identity to an inference error.
func (n *Node) annotate(err error) error {
	var ce *errors.CompilerError
	if stderrors.As(err, &ce) {
		if ce.Node == "" {
			ce.WithNode(n.name, n.op.TypeInfo().String())
		}
		return err
	}
	return fmt.Errorf("%s: %w", n.name, err)
}

// Output is a (node, index) handle to a produced value
type Output struct {
	node  *Node
	index int
}

// Node returns the producer.
func (o Output) Node() *Node { return o.node }

// Index returns the output index on the producer.
func (o Output) Index() int { return o.index }

// IsValid reports whether the handle refers to a node.
func (o Output) IsValid() bool { return o.node != nil }

// Ref returns the arena edge form of the handle.
func (o Output) Ref() OutputRef { return OutputRef{Node: o.node.id, Index: o.index} }

// Desc returns the inferred element type and shape.
func (o Output) Desc() TensorDesc { return o.node.outputs[o.index] }

// ElementType returns the inferred element type.
func (o Output) ElementType() ElementType { return o.node.outputs[o.index].ElementType }

// Shape returns the inferred shape.
func (o Output) Shape() PartialShape { return o.node.outputs[o.index].Shape }

// Targets returns every input consuming this output.
func (o Output) Targets() []Input {
	g := o.node.graph
	if g == nil {
		return nil
	}
	refs := g.consumers[o.Ref()]
	out := make([]Input, 0, len(refs))
	for _, ref := range refs {
		out = append(out, Input{node: g.nodes[ref.Node], index: ref.Index})
	}
	return out
}

func (o Output) String() string {
	return fmt.Sprintf("%s:%d", o.node.name, o.index)
}

// Input is a (node, index) handle to a consuming edge endpoint.
type Input struct {
	node  *Node
	index int
}

// Node returns the consumer.
func (in Input) Node() *Node { return in.node }

// Index returns the input index on the consumer.
func (in Input) Index() int { return in.index }

// Ref returns the arena edge form of the handle.
func (in Input) Ref() InputRef { return InputRef{Node: in.node.id, Index: in.index} }

// Source returns the output feeding this input.
func (in Input) Source() Output { return in.node.InputValue(in.index) }

// Replace rewires this input to consume out and re-infers downstream types.
// An edge that would close a cycle is refused, and a failed re-inference
// restores the previous producer.
func (in Input) Replace(out Output) error {
	g := in.node.graph
	if g == nil {
		return errors.NewForeignNode(in.node.name)
	}
	if err := g.owns(out.node); err != nil {
		return err
	}
	if g.dependsOn(out.node, in.node) {
		return errors.NewCycle(in.node.name, out.String())
	}
	moves := []move{{in: in.Ref(), from: in.node.inputs[in.index]}}
	g.rewire(in.Ref(), out.Ref())
	if err := g.reinfer([]*Node{in.node}); err != nil {
		g.undo(moves)
		return err
	}
	return nil
}

// IsType reports whether n's op is castable to T.
func IsType[T rtti.Typed](n *Node) bool {
	return n != nil && rtti.IsType[T](n.op)
}

// AsType returns n's op viewed as T.
func AsType[T rtti.Typed](n *Node) (T, bool) {
	if n == nil {
		var zero T
		return zero, false
	}
	return rtti.AsType[T](n.op)
}
