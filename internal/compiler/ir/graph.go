// Package ir implements the mutable computation graph the compiler rewrites.
//
// A Graph is an arena: it owns every Node and addresses it by a stable NodeID.
// Edges are plain (NodeID, index) pairs stored on the consuming node, and a
// separate consumer index answers "who reads this output" without giving
// outputs ownership of their consumers. Removing a node is an explicit arena
// operation.
package ir

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
)

// Graph is a directed acyclic graph of typed operations.
type Graph struct {
	id   uuid.UUID
	name string

	nextID     NodeID
	nodes      map[NodeID]*Node
	names      map[string]NodeID
	consumers  map[OutputRef][]InputRef
	parameters []NodeID
	results    []NodeID

	ownerMu sync.Mutex
	owner   string
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		id:        uuid.New(),
		name:      name,
		nextID:    1,
		nodes:     make(map[NodeID]*Node),
		names:     make(map[string]NodeID),
		consumers: make(map[OutputRef][]InputRef),
	}
}

// ID returns the graph's unique identity.
func (g *Graph) ID() uuid.UUID { return g.id }

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Len returns the number of live nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node looks a node up by handle.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeByName looks a node up by friendly name.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	id, ok := g.names[name]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// Nodes returns every live node ordered by handle.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Parameters returns the graph inputs in creation order.
func (g *Graph) Parameters() []*Node { return g.lookupAll(g.parameters) }

// Results returns the graph outputs in creation order.
func (g *Graph) Results() []*Node { return g.lookupAll(g.results) }

func (g *Graph) lookupAll(ids []NodeID) []*Node {
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Add creates a node running op over inputs, infers its output types and
// inserts it into the arena. On inference failure nothing is inserted.
func (g *Graph) Add(op Op, inputs ...Output) (*Node, error) {
	for _, in := range inputs {
		if !in.IsValid() {
			return nil, errors.NewForeignNode("<invalid output>")
		}
		if err := g.owns(in.node); err != nil {
			return nil, err
		}
	}

	n := &Node{
		graph:  g,
		id:     g.nextID,
		op:     op,
		inputs: make([]OutputRef, len(inputs)),
	}
	for i, in := range inputs {
		n.inputs[i] = in.Ref()
	}
	n.name = g.uniqueName(fmt.Sprintf("%s_%d", op.TypeInfo().Name(), n.id))

	if err := n.ValidateAndInferTypes(); err != nil {
		return nil, err
	}

	g.nextID++
	g.nodes[n.id] = n
	g.names[n.name] = n.id
	for i, ref := range n.inputs {
		g.consumers[ref] = append(g.consumers[ref], InputRef{Node: n.id, Index: i})
	}

	switch RoleOf(op) {
	case RoleParameter:
		g.parameters = append(g.parameters, n.id)
	case RoleResult:
		g.results = append(g.results, n.id)
	}
	return n, nil
}

// MustAdd is Add for graph construction in tests and fixtures.
func (g *Graph) MustAdd(op Op, inputs ...Output) *Node {
	n, err := g.Add(op, inputs...)
	if err != nil {
		panic(err)
	}
	return n
}

func (g *Graph) uniqueName(base string) string {
	name := base
	for i := 1; ; i++ {
		if _, taken := g.names[name]; !taken {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

func (g *Graph) rename(n *Node, name string) error {
	if name == n.name {
		return nil
	}
	if other, taken := g.names[name]; taken && other != n.id {
		return errors.NewDuplicateName(name)
	}
	delete(g.names, n.name)
	n.name = name
	g.names[name] = n.id
	return nil
}

func (g *Graph) owns(n *Node) error {
	if n == nil || n.graph != g || g.nodes[n.id] != n {
		name := "<nil>"
		if n != nil {
			name = n.name
		}
		return errors.NewForeignNode(name)
	}
	return nil
}

// rewire points one input at a new producer, keeping the consumer index in step.
func (g *Graph) rewire(in InputRef, to OutputRef) {
	n := g.nodes[in.Node]
	from := n.inputs[in.Index]
	g.dropConsumer(from, in)
	n.inputs[in.Index] = to
	g.consumers[to] = append(g.consumers[to], in)
}

func (g *Graph) dropConsumer(from OutputRef, in InputRef) {
	refs := g.consumers[from]
	for i, ref := range refs {
		if ref == in {
			refs = append(refs[:i], refs[i+1:]...)
			break
		}
	}
	if len(refs) == 0 {
		delete(g.consumers, from)
	} else {
		g.consumers[from] = refs
	}
}

// reinfer re-runs inference on start and, whenever a node's outputs change,
// on its consumers, so no output carries stale types after a splice.
func (g *Graph) reinfer(start []*Node) error {
	queue := append([]*Node(nil), start...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if !n.Alive() {
			continue
		}

		before := append([]TensorDesc(nil), n.outputs...)
		if err := n.ValidateAndInferTypes(); err != nil {
			return err
		}
		if descsEqual(before, n.outputs) {
			continue
		}
		for i := range n.outputs {
			for _, in := range n.Output(i).Targets() {
				queue = append(queue, in.node)
			}
		}
	}
	return nil
}

func descsEqual(a, b []TensorDesc) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// ReplaceNode redirects every consumer of old's output i to replacement's
// output i. Inputs of replacement itself are left alone. When old ends up with
// no consumers it is removed from the arena and replacement takes over its
// friendly name. On error the graph is left as it was.
func (g *Graph) ReplaceNode(old, replacement *Node) error {
	if err := g.owns(old); err != nil {
		return err
	}
	if err := g.owns(replacement); err != nil {
		return err
	}
	if old.OutputCount() != replacement.OutputCount() {
		return errors.NewOutputCountMismatch(old.name, replacement.name, old.OutputCount(), replacement.OutputCount())
	}
	if old == replacement {
		return nil
	}
	for i := range old.outputs {
		if err := g.checkRedirect(old.Output(i), replacement.Output(i)); err != nil {
			return err
		}
	}

	var touched []*Node
	var moves []move
	for i := range old.outputs {
		n, m := g.redirect(old.Output(i), replacement.Output(i))
		touched = append(touched, n...)
		moves = append(moves, m...)
	}
	if err := g.reinfer(touched); err != nil {
		g.undo(moves)
		return err
	}

	if old.ConsumerCount() == 0 && RoleOf(old.op) != RoleParameter {
		name := old.name
		g.detach(old)
		_ = g.rename(replacement, name)
	}
	return nil
}

// ReplaceOutput redirects every consumer of from to to, except inputs of to's
// own node, and re-infers the consumers. On error the graph is left as it was.
func (g *Graph) ReplaceOutput(from, to Output) error {
	if err := g.owns(from.node); err != nil {
		return err
	}
	if err := g.owns(to.node); err != nil {
		return err
	}
	if err := g.checkRedirect(from, to); err != nil {
		return err
	}
	touched, moves := g.redirect(from, to)
	if err := g.reinfer(touched); err != nil {
		g.undo(moves)
		return err
	}
	return nil
}

// move records one rewired input and the producer it read before.
type move struct {
	in   InputRef
	from OutputRef
}

// checkRedirect refuses a redirect that would make a consumer of from read
// from a node that already depends on it.
func (g *Graph) checkRedirect(from, to Output) error {
	for _, in := range from.Targets() {
		if in.node != to.node && g.dependsOn(to.node, in.node) {
			return errors.NewCycle(in.node.name, to.String())
		}
	}
	return nil
}

func (g *Graph) redirect(from, to Output) ([]*Node, []move) {
	var touched []*Node
	var moves []move
	for _, in := range from.Targets() {
		if in.node == to.node {
			continue
		}
		moves = append(moves, move{in: in.Ref(), from: from.Ref()})
		g.rewire(in.Ref(), to.Ref())
		touched = append(touched, in.node)
	}
	return touched, moves
}

// undo puts rewired inputs back on their previous producers and re-infers
// the consumers so their outputs match the restored edges.
func (g *Graph) undo(moves []move) {
	touched := make([]*Node, 0, len(moves))
	for i := len(moves) - 1; i >= 0; i-- {
		g.rewire(moves[i].in, moves[i].from)
		touched = append(touched, g.nodes[moves[i].in.Node])
	}
	_ = g.reinfer(touched)
}

// dependsOn reports whether n reads from target, directly or through other
// nodes. A node depends on itself.
func (g *Graph) dependsOn(n, target *Node) bool {
	seen := make(map[NodeID]bool)
	stack := []NodeID{n.id}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target.id {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, ref := range g.nodes[id].inputs {
			stack = append(stack, ref.Node)
		}
	}
	return false
}

// Remove deletes a node without consumers from the arena.
func (g *Graph) Remove(n *Node) error {
	if err := g.owns(n); err != nil {
		return err
	}
	if c := n.ConsumerCount(); c > 0 {
		return errors.NewNodeInUse(n.name, c)
	}
	g.detach(n)
	return nil
}

// detach drops n's edges and arena entry.
func (g *Graph) detach(n *Node) {
	for i, ref := range n.inputs {
		g.dropConsumer(ref, InputRef{Node: n.id, Index: i})
	}
	for i := range n.outputs {
		delete(g.consumers, OutputRef{Node: n.id, Index: i})
	}
	delete(g.nodes, n.id)
	if g.names[n.name] == n.id {
		delete(g.names, n.name)
	}
	g.parameters = removeID(g.parameters, n.id)
	g.results = removeID(g.results, n.id)
	n.graph = nil
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Prune removes every node that no result depends on. Parameters are kept.
// It returns the number of removed nodes.
func (g *Graph) Prune() int {
	live := make(map[NodeID]bool, len(g.nodes))
	stack := append([]NodeID(nil), g.results...)
	stack = append(stack, g.parameters...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if live[id] {
			continue
		}
		live[id] = true
		for _, ref := range g.nodes[id].inputs {
			stack = append(stack, ref.Node)
		}
	}

	removed := 0
	for _, n := range g.Nodes() {
		if !live[n.id] {
			g.detach(n)
			removed++
		}
	}
	return removed
}

// TopologicalOrder returns every node with producers before consumers. Ties
// are broken by ascending handle so the order is deterministic. Nodes on a
// cycle are left out; Validate reports them.
func (g *Graph) TopologicalOrder() []*Node {
	inDegree := make(map[NodeID]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.inputs)
	}

	ready := &idHeap{}
	for id, d := range inDegree {
		if d == 0 {
			ready.push(id)
		}
	}

	order := make([]*Node, 0, len(g.nodes))
	for ready.Len() > 0 {
		id := ready.pop()
		n := g.nodes[id]
		order = append(order, n)
		for i := range n.outputs {
			for _, in := range g.consumers[OutputRef{Node: id, Index: i}] {
				inDegree[in.Node]--
				if inDegree[in.Node] == 0 {
					ready.push(in.Node)
				}
			}
		}
	}
	return order
}

// ReverseTopologicalOrder returns consumers before producers.
func (g *Graph) ReverseTopologicalOrder() []*Node {
	order := g.TopologicalOrder()
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Validate re-runs inference over the whole graph in topological order and
// returns the first contract violation.
func (g *Graph) Validate() error {
	order := g.TopologicalOrder()
	if len(order) != len(g.nodes) {
		return g.cycleError(order)
	}
	for _, n := range order {
		if err := n.ValidateAndInferTypes(); err != nil {
			return err
		}
	}
	return nil
}

// cycleError names an edge between two nodes the topological order could not
// place. Every unplaced node has at least one unplaced producer.
func (g *Graph) cycleError(order []*Node) error {
	placed := make(map[NodeID]bool, len(order))
	for _, n := range order {
		placed[n.id] = true
	}
	for _, n := range g.Nodes() {
		if placed[n.id] {
			continue
		}
		for _, ref := range n.inputs {
			if !placed[ref.Node] {
				return errors.NewCycle(n.name, g.nodes[ref.Node].name)
			}
		}
	}
	return errors.NewInvalidGraph(g.name, "topological order is incomplete")
}

// Clone deep-copies the graph under a fresh identity. Node handles and names
// are preserved so callers can correlate nodes across the copies.
func (g *Graph) Clone() *Graph {
	c := NewGraph(g.name)
	c.nextID = g.nextID
	for id, n := range g.nodes {
		cn := &Node{
			graph:   c,
			id:      id,
			op:      n.op.Clone(),
			name:    n.name,
			inputs:  append([]OutputRef(nil), n.inputs...),
			outputs: append([]TensorDesc(nil), n.outputs...),
		}
		if n.rt != nil {
			cn.rt = n.rt.Clone()
		}
		c.nodes[id] = cn
		c.names[cn.name] = id
	}
	for ref, ins := range g.consumers {
		c.consumers[ref] = append([]InputRef(nil), ins...)
	}
	c.parameters = append([]NodeID(nil), g.parameters...)
	c.results = append([]NodeID(nil), g.results...)
	return c
}

// Acquire claims exclusive ownership of the graph for owner.
func (g *Graph) Acquire(owner string) error {
	g.ownerMu.Lock()
	defer g.ownerMu.Unlock()
	if g.owner != "" && g.owner != owner {
		return errors.NewGraphInUse(g.id.String())
	}
	g.owner = owner
	return nil
}

// Release gives up ownership if owner holds it.
func (g *Graph) Release(owner string) {
	g.ownerMu.Lock()
	defer g.ownerMu.Unlock()
	if g.owner == owner {
		g.owner = ""
	}
}

// OwnedBy reports whether owner currently holds the graph.
func (g *Graph) OwnedBy(owner string) bool {
	g.ownerMu.Lock()
	defer g.ownerMu.Unlock()
	return owner != "" && g.owner == owner
}
