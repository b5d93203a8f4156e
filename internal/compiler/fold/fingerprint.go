package fold

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/ops"
)

// fingerprint keys the result cache by op identity, attributes and input values.
func fingerprint(op ir.Op, inputs []*ops.Constant) string {
	d := xxhash.New()
	_, _ = d.WriteString(op.TypeInfo().String())
	op.VisitAttributes(&hashVisitor{d: d})

	for _, in := range inputs {
		_, _ = d.WriteString("|" + in.ElemType.String() + in.Shape.String())
		writeFloats(d, in.Values)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func writeFloats(d *xxhash.Digest, values []float64) {
	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
}

// hashVisitor feeds attribute names and values into a digest.
type hashVisitor struct {
	d *xxhash.Digest
}

func (h *hashVisitor) field(name, value string) {
	_, _ = h.d.WriteString(";" + name + "=" + value)
}

func (h *hashVisitor) OnInt(name string, v *int64) { h.field(name, strconv.FormatInt(*v, 10)) }
func (h *hashVisitor) OnBool(name string, v *bool) { h.field(name, strconv.FormatBool(*v)) }
func (h *hashVisitor) OnString(name string, v *string) { h.field(name, strconv.Quote(*v)) }
func (h *hashVisitor) OnElementType(name string, v *ir.ElementType) { h.field(name, v.String()) }
func (h *hashVisitor) OnShape(name string, v *ir.PartialShape) { h.field(name, v.String()) }

func (h *hashVisitor) OnFloats(name string, v *[]float64) {
	h.field(name, strconv.Itoa(len(*v)))
	writeFloats(h.d, *v)
}

func (h *hashVisitor) OnInts(name string, v *[]int64) {
	h.field(name, strconv.Itoa(len(*v)))
	for _, x := range *v {
		_, _ = h.d.WriteString("," + strconv.FormatInt(x, 10))
	}
}
