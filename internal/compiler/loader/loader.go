// Package loader reads and writes the YAML graph description used by the
// command line tool and by fixtures:
//
//	name: model
//	nodes:
//	  - name: x
//	    op: Parameter
//	    attributes: {element_type: u8, shape: [1, "?"]}
//	  - name: scale
//	    op: Constant
//	    attributes: {element_type: f32, shape: [], value: [0.5]}
//	  - name: y
//	    op: Multiply
//	    inputs: [x, scale]
//	  - name: out
//	    op: Result
//	    inputs: [y]
//
// Ops are resolved through an rtti.Registry, so only registered op types can
// be loaded. An input is "node" or "node:index". Omitting version selects the
// newest registered variant.
package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// GraphDef is the root of a graph description.
type GraphDef struct {
	Name  string    `yaml:"name"`
	Nodes []NodeDef `yaml:"nodes"`
}

// NodeDef describes one node.
type NodeDef struct {
	Name       string               `yaml:"name"`
	Op         string               `yaml:"op"`
	Version    *uint64              `yaml:"version,omitempty"`
	Inputs     []string             `yaml:"inputs,omitempty"`
	Attributes map[string]yaml.Node `yaml:"attributes,omitempty"`
	// DisableConstFolding sets ir.DisableConstFoldingKey on the node.
	DisableConstFolding bool `yaml:"disable_const_folding,omitempty"`
}

// NewOpRegistry returns a sealed registry holding the op catalog.
func NewOpRegistry() (*rtti.Registry, error) {
	reg := rtti.NewRegistry()
	if err := ops.Register(reg); err != nil {
		return nil, err
	}
	reg.Seal()
	return reg, nil
}

// LoadFile reads a graph description from path.
func LoadFile(path string, reg *rtti.Registry) (*ir.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	g, err := Load(bytes.NewReader(data), reg)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return g, nil
}

// Load decodes a graph description and builds the graph. Nodes must be listed
// after the nodes they read from.
func Load(r io.Reader, reg *rtti.Registry) (*ir.Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def GraphDef
	if err := dec.Decode(&def); err != nil {
		return nil, errors.NewInvalidGraph("<input>", err.Error())
	}
	return Build(def, reg)
}

// Build creates the graph a decoded description describes.
func Build(def GraphDef, reg *rtti.Registry) (*ir.Graph, error) {
	if def.Name == "" {
		def.Name = "graph"
	}
	g := ir.NewGraph(def.Name)
	for i, nd := range def.Nodes {
		if err := addNode(g, reg, nd); err != nil {
			label := nd.Name
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("node %s: %w", label, err)
		}
	}
	return g, nil
}

func addNode(g *ir.Graph, reg *rtti.Registry, nd NodeDef) error {
	op, err := newOp(reg, nd)
	if err != nil {
		return err
	}

	assign := &assigner{attrs: nd.Attributes, seen: map[string]bool{}}
	op.VisitAttributes(assign)
	if assign.err != nil {
		return assign.err
	}
	for name := range nd.Attributes {
		if !assign.seen[name] {
			return errors.NewInvalidAttribute(name, fmt.Sprintf("not an attribute of %s", nd.Op))
		}
	}

	inputs := make([]ir.Output, len(nd.Inputs))
	for i, ref := range nd.Inputs {
		out, err := resolve(g, ref)
		if err != nil {
			return err
		}
		inputs[i] = out
	}

	n, err := g.Add(op, inputs...)
	if err != nil {
		return err
	}
	if nd.Name != "" {
		if err := n.SetName(nd.Name); err != nil {
			_ = g.Remove(n)
			return err
		}
	}
	if nd.DisableConstFolding {
		n.RTInfo()[ir.DisableConstFoldingKey] = true
	}
	return nil
}

func newOp(reg *rtti.Registry, nd NodeDef) (ir.Op, error) {
	var (
		entry *rtti.Entry
		ok    bool
	)
	if nd.Version != nil {
		entry, ok = reg.Lookup(nd.Op, *nd.Version)
	} else {
		entry, ok = reg.LookupLatest(nd.Op)
	}
	if !ok || entry.Factory == nil {
		return nil, errors.NewUnknownType("op", nd.Op).
			WithSuggestion("Run 'lattice types' to list the registered ops")
	}
	op, ok := entry.Factory().(ir.Op)
	if !ok {
		return nil, errors.NewUnknownType("op", entry.Info.String())
	}
	return op, nil
}

// resolve maps "name" or "name:index" to an output of an existing node.
func resolve(g *ir.Graph, ref string) (ir.Output, error) {
	name, index := ref, 0
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		n, err := strconv.Atoi(ref[i+1:])
		if err != nil || n < 0 {
			return ir.Output{}, errors.NewInvalidGraph(g.Name(), fmt.Sprintf("malformed input reference '%s'", ref))
		}
		name, index = ref[:i], n
	}
	n, ok := g.NodeByName(name)
	if !ok {
		return ir.Output{}, errors.NewInvalidGraph(g.Name(), fmt.Sprintf("input '%s' is not defined before use", name))
	}
	if index >= n.OutputCount() {
		return ir.Output{}, errors.NewInvalidGraph(g.Name(),
			fmt.Sprintf("node '%s' has %d output(s), input refers to %d", name, n.OutputCount(), index))
	}
	return n.Output(index), nil
}

// assigner sets op attributes from their YAML values. Attributes missing from
// the description keep the op's defaults.
type assigner struct {
	attrs map[string]yaml.Node
	seen  map[string]bool
	err   error
}

func (a *assigner) value(name string) (*yaml.Node, bool) {
	if a.err != nil {
		return nil, false
	}
	node, ok := a.attrs[name]
	if !ok {
		return nil, false
	}
	a.seen[name] = true
	return &node, true
}

func (a *assigner) decode(name string, into interface{}) {
	node, ok := a.value(name)
	if !ok {
		return
	}
	if err := node.Decode(into); err != nil {
		a.err = errors.NewInvalidAttribute(name, err.Error())
	}
}

func (a *assigner) OnInt(name string, v *int64)        { a.decode(name, v) }
func (a *assigner) OnBool(name string, v *bool)        { a.decode(name, v) }
func (a *assigner) OnString(name string, v *string)    { a.decode(name, v) }
func (a *assigner) OnFloats(name string, v *[]float64) { a.decode(name, v) }
func (a *assigner) OnInts(name string, v *[]int64)     { a.decode(name, v) }

func (a *assigner) OnElementType(name string, v *ir.ElementType) {
	var s string
	a.decode(name, &s)
	if a.err != nil || !a.seen[name] {
		return
	}
	et, ok := ir.ParseElementType(s)
	if !ok {
		a.err = errors.NewInvalidAttribute(name, fmt.Sprintf("unknown element type '%s'", s))
		return
	}
	*v = et
}

func (a *assigner) OnShape(name string, v *ir.PartialShape) {
	node, ok := a.value(name)
	if !ok {
		return
	}
	shape, err := decodeShape(node)
	if err != nil {
		a.err = errors.NewInvalidAttribute(name, err.Error())
		return
	}
	*v = shape
}

// decodeShape accepts "..." for a dynamic rank, or a list whose entries are
// lengths or "?" for a dynamic dimension.
func decodeShape(node *yaml.Node) (ir.PartialShape, error) {
	if node.Kind == yaml.ScalarNode && node.Value == "..." {
		return ir.DynamicRank(), nil
	}
	if node.Kind != yaml.SequenceNode {
		return ir.PartialShape{}, fmt.Errorf("shape must be a list or \"...\"")
	}
	dims := make([]ir.Dimension, len(node.Content))
	for i, item := range node.Content {
		if item.Value == "?" {
			dims[i] = ir.DynamicDim
			continue
		}
		var d int64
		if err := item.Decode(&d); err != nil || d < 0 {
			return ir.PartialShape{}, fmt.Errorf("dimension %d: '%s' is not a length or \"?\"", i, item.Value)
		}
		dims[i] = ir.Dimension(d)
	}
	return ir.ShapeOf(dims...), nil
}
