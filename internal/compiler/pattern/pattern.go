// Package pattern describes subgraph shapes to look for and matches them
// against a graph.
//
// Pattern nodes are never inserted into a real graph. A pattern is a small DAG
// of Nodes, each constraining the value it binds to by op type, by predicates
// on the value, and recursively by its inputs.
package pattern

import (
	"fmt"
	"strings"

	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// Node is one vertex of a pattern.
type Node struct {
	name         string
	types        []*rtti.TypeInfo
	inputs       []*Node
	predicates   []Predicate
	alternatives []*Node
}

// Any matches any value that satisfies every predicate, regardless of its
// producer or inputs.
func Any(preds ...Predicate) *Node {
	return &Node{predicates: preds}
}

// WrapType matches a value produced by an op castable to one of types. When
// inputs is empty the producer's inputs are not inspected; otherwise the
// producer must have exactly len(inputs) inputs matching them in order.
func WrapType(types []*rtti.TypeInfo, inputs []*Node, preds ...Predicate) *Node {
	return &Node{
		types:      append([]*rtti.TypeInfo(nil), types...),
		inputs:     append([]*Node(nil), inputs...),
		predicates: preds,
	}
}

// Wrap is WrapType for a single statically known op type.
func Wrap[T rtti.Typed](inputs []*Node, preds ...Predicate) *Node {
	return WrapType([]*rtti.TypeInfo{rtti.StaticType[T]()}, inputs, preds...)
}

// Or matches a value matching any of the alternatives, tried in order.
func Or(alternatives ...*Node) *Node {
	return &Node{alternatives: append([]*Node(nil), alternatives...)}
}

// Inputs is shorthand for building input lists.
func Inputs(nodes ...*Node) []*Node { return nodes }

// Named sets a label used in diagnostics and returns p.
func (p *Node) Named(name string) *Node {
	p.name = name
	return p
}

// Name returns the label set with Named.
func (p *Node) Name() string { return p.name }

func (p *Node) String() string {
	var b strings.Builder
	p.write(&b)
	return b.String()
}

func (p *Node) write(b *strings.Builder) {
	if p.name != "" {
		b.WriteString(p.name + ":")
	}
	switch {
	case len(p.alternatives) > 0:
		b.WriteString("Or(")
		for i, alt := range p.alternatives {
			if i > 0 {
				b.WriteString("|")
			}
			alt.write(b)
		}
		b.WriteString(")")
		return
	case len(p.types) == 0:
		b.WriteString("Any")
	default:
		names := make([]string, len(p.types))
		for i, t := range p.types {
			names[i] = t.String()
		}
		b.WriteString(strings.Join(names, "|"))
	}
	if len(p.inputs) > 0 {
		b.WriteString("(")
		for i, in := range p.inputs {
			if i > 0 {
				b.WriteString(", ")
			}
			in.write(b)
		}
		b.WriteString(")")
	}
	if len(p.predicates) > 0 {
		fmt.Fprintf(b, "[%d]", len(p.predicates))
	}
}
