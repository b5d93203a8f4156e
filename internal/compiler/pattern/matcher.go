package pattern

import (
	"github.com/lattice-ir/lattice/internal/compiler/ir"
)

// Matcher binds a pattern against graph values. A successful match leaves a
// pattern-value map describing which value each pattern node bound to; a
// failed match leaves it empty. Matching never mutates the graph.
type Matcher struct {
	root *Node
	name string

	pvm     map[*Node]ir.Output
	bound   []*Node
	matched []*ir.Node
	top     *ir.Node
}

// NewMatcher creates a matcher for root.
func NewMatcher(root *Node, name string) *Matcher {
	return &Matcher{
		root: root,
		name: name,
		pvm:  make(map[*Node]ir.Output),
	}
}

// Name returns the matcher's name.
func (m *Matcher) Name() string { return m.name }

// Pattern returns the root pattern node.
func (m *Matcher) Pattern() *Node { return m.root }

// Match reports whether out matches the pattern.
func (m *Matcher) Match(out ir.Output) bool {
	m.reset()
	if !out.IsValid() || !m.match(m.root, out) {
		m.reset()
		return false
	}
	m.top = out.Node()
	return true
}

// MatchNode tries each output of n in turn.
func (m *Matcher) MatchNode(n *ir.Node) bool {
	for _, out := range n.Outputs() {
		if m.Match(out) {
			return true
		}
	}
	return false
}

// Map returns the pattern-value map of the last successful match.
func (m *Matcher) Map() map[*Node]ir.Output {
	out := make(map[*Node]ir.Output, len(m.pvm))
	for k, v := range m.pvm {
		out[k] = v
	}
	return out
}

// Value returns the value p bound to in the last successful match.
func (m *Matcher) Value(p *Node) (ir.Output, bool) {
	out, ok := m.pvm[p]
	return out, ok
}

// MatchRoot returns the node whose output matched the root pattern.
func (m *Matcher) MatchRoot() *ir.Node { return m.top }

// MatchedNodes returns the graph nodes bound by typed pattern nodes, in
// binding order.
func (m *Matcher) MatchedNodes() []*ir.Node {
	return append([]*ir.Node(nil), m.matched...)
}

func (m *Matcher) reset() {
	for k := range m.pvm {
		delete(m.pvm, k)
	}
	m.bound = m.bound[:0]
	m.matched = m.matched[:0]
	m.top = nil
}

type checkpoint struct{ bound, matched int }

func (m *Matcher) save() checkpoint { return checkpoint{len(m.bound), len(m.matched)} }

func (m *Matcher) rollback(to checkpoint) {
	for _, p := range m.bound[to.bound:] {
		delete(m.pvm, p)
	}
	m.bound = m.bound[:to.bound]
	m.matched = m.matched[:to.matched]
}

func (m *Matcher) bind(p *Node, out ir.Output) {
	m.pvm[p] = out
	m.bound = append(m.bound, p)
}

func (m *Matcher) match(p *Node, out ir.Output) bool {
	if prev, ok := m.pvm[p]; ok {
		return prev.Node() == out.Node() && prev.Index() == out.Index()
	}

	if len(p.alternatives) > 0 {
		for _, alt := range p.alternatives {
			at := m.save()
			if m.match(alt, out) {
				m.bind(p, out)
				return true
			}
			m.rollback(at)
		}
		return false
	}

	for _, pred := range p.predicates {
		if !pred(out) {
			return false
		}
	}

	if len(p.types) == 0 {
		m.bind(p, out)
		return true
	}

	n := out.Node()
	if !typeMatches(p, n) {
		return false
	}

	if len(p.inputs) > 0 {
		if n.InputCount() != len(p.inputs) {
			return false
		}
		at := m.save()
		if !m.matchInputs(p.inputs, n, false) {
			m.rollback(at)
			if len(p.inputs) != 2 || !ir.IsCommutative(n.Op()) || !m.matchInputs(p.inputs, n, true) {
				m.rollback(at)
				return false
			}
		}
	}

	m.bind(p, out)
	m.matched = append(m.matched, n)
	return true
}

func (m *Matcher) matchInputs(inputs []*Node, n *ir.Node, swapped bool) bool {
	for i, in := range inputs {
		src := i
		if swapped {
			src = len(inputs) - 1 - i
		}
		if !m.match(in, n.InputValue(src)) {
			return false
		}
	}
	return true
}

func typeMatches(p *Node, n *ir.Node) bool {
	info := n.TypeInfo()
	for _, t := range p.types {
		if info.IsCastable(t) {
			return true
		}
	}
	return false
}
