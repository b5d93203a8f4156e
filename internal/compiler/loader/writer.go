package loader

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lattice-ir/lattice/internal/compiler/ir"
)

// Describe converts g back into a description, nodes in topological order.
func Describe(g *ir.Graph) (GraphDef, error) {
	def := GraphDef{Name: g.Name()}
	for _, n := range g.TopologicalOrder() {
		nd := NodeDef{
			Name: n.Name(),
			Op:   n.TypeInfo().Name(),
		}
		if v := n.TypeInfo().Version(); v != 0 {
			nd.Version = &v
		}
		for _, in := range n.InputValues() {
			ref := in.Node().Name()
			if in.Index() != 0 {
				ref = fmt.Sprintf("%s:%d", ref, in.Index())
			}
			nd.Inputs = append(nd.Inputs, ref)
		}

		enc := &encoder{attrs: map[string]yaml.Node{}}
		n.VisitAttributes(enc)
		if enc.err != nil {
			return GraphDef{}, fmt.Errorf("node %s: %w", n.Name(), enc.err)
		}
		if len(enc.attrs) > 0 {
			nd.Attributes = enc.attrs
		}
		if off, _ := n.RTInfo()[ir.DisableConstFoldingKey].(bool); off {
			nd.DisableConstFolding = true
		}
		def.Nodes = append(def.Nodes, nd)
	}
	return def, nil
}

// Write encodes g as YAML.
func Write(w io.Writer, g *ir.Graph) error {
	def, err := Describe(g)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return err
	}
	return enc.Close()
}

// WriteFile writes g to path.
func WriteFile(path string, g *ir.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, g); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// encoder renders attributes as YAML nodes.
type encoder struct {
	attrs map[string]yaml.Node
	err   error
}

func (e *encoder) put(name string, v interface{}) {
	if e.err != nil {
		return
	}
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		e.err = err
		return
	}
	e.attrs[name] = node
}

func (e *encoder) OnInt(name string, v *int64)                  { e.put(name, *v) }
func (e *encoder) OnBool(name string, v *bool)                  { e.put(name, *v) }
func (e *encoder) OnString(name string, v *string)              { e.put(name, *v) }
func (e *encoder) OnFloats(name string, v *[]float64)           { e.flow(name, *v) }
func (e *encoder) OnInts(name string, v *[]int64)               { e.flow(name, *v) }
func (e *encoder) OnElementType(name string, v *ir.ElementType) { e.put(name, v.String()) }

func (e *encoder) OnShape(name string, v *ir.PartialShape) {
	if !v.RankStatic() {
		e.put(name, "...")
		return
	}
	dims := make([]interface{}, v.Rank())
	for i, d := range v.Dims() {
		if d.IsStatic() {
			dims[i] = int64(d)
		} else {
			dims[i] = "?"
		}
	}
	e.flow(name, dims)
}

// flow writes lists inline, e.g. [1, 4].
func (e *encoder) flow(name string, v interface{}) {
	e.put(name, v)
	if node, ok := e.attrs[name]; ok {
		node.Style = yaml.FlowStyle
		e.attrs[name] = node
	}
}
