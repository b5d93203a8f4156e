package pass

import (
	"sort"

	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
)

// Veto decides, per candidate node, that a pass must leave it alone.
type Veto func(n *ir.Node) bool

// PassConfig holds the per-run switches a backend sets on a pipeline: which
// passes are disabled, which nodes each pass must skip, and which op types
// must not survive the run.
type PassConfig struct {
	disabled    map[rtti.Key]bool
	vetoes      map[rtti.Key]Veto
	globalVeto  Veto
	disabledOps map[rtti.Key]*rtti.TypeInfo

	// ForbidDisabledOps makes the run fail when a disabled op type is still
	// present after the last pass.
	ForbidDisabledOps bool
}

// NewPassConfig creates an empty configuration: every pass enabled, no vetoes.
func NewPassConfig() *PassConfig {
	return &PassConfig{
		disabled:    make(map[rtti.Key]bool),
		vetoes:      make(map[rtti.Key]Veto),
		disabledOps: make(map[rtti.Key]*rtti.TypeInfo),
	}
}

// Disable turns passes off.
func (c *PassConfig) Disable(infos ...*rtti.TypeInfo) {
	for _, info := range infos {
		c.disabled[info.Key()] = true
	}
}

// Enable turns passes back on.
func (c *PassConfig) Enable(infos ...*rtti.TypeInfo) {
	for _, info := range infos {
		delete(c.disabled, info.Key())
	}
}

// IsDisabled reports whether the pass identified by info is off.
func (c *PassConfig) IsDisabled(info *rtti.TypeInfo) bool {
	return c != nil && c.disabled[info.Key()]
}

// IsEnabled is the negation of IsDisabled.
func (c *PassConfig) IsEnabled(info *rtti.TypeInfo) bool { return !c.IsDisabled(info) }

// SetCallback installs veto for the given passes, or for every pass when no
// pass is named.
func (c *PassConfig) SetCallback(veto Veto, infos ...*rtti.TypeInfo) {
	if len(infos) == 0 {
		c.globalVeto = veto
		return
	}
	for _, info := range infos {
		c.vetoes[info.Key()] = veto
	}
}

// Callback returns the veto that applies to the pass, if any.
func (c *PassConfig) Callback(info *rtti.TypeInfo) Veto {
	if c == nil {
		return nil
	}
	if v, ok := c.vetoes[info.Key()]; ok {
		return v
	}
	return c.globalVeto
}

// Vetoed reports whether the pass must skip n.
func (c *PassConfig) Vetoed(info *rtti.TypeInfo, n *ir.Node) bool {
	veto := c.Callback(info)
	return veto != nil && veto(n)
}

// DisableOp records an op type the target cannot execute.
func (c *PassConfig) DisableOp(infos ...*rtti.TypeInfo) {
	for _, info := range infos {
		c.disabledOps[info.Key()] = info
	}
}

// IsOpDisabled reports whether n's op type, or one of its ancestors, was
// disabled with DisableOp.
func (c *PassConfig) IsOpDisabled(n *ir.Node) bool {
	if c == nil {
		return false
	}
	for _, info := range n.TypeInfo().Lineage() {
		if _, ok := c.disabledOps[info.Key()]; ok {
			return true
		}
	}
	return false
}

// DisabledOps returns the disabled op types ordered by name.
func (c *PassConfig) DisabledOps() []*rtti.TypeInfo {
	out := make([]*rtti.TypeInfo, 0, len(c.disabledOps))
	for _, info := range c.disabledOps {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Clone returns an independent copy.
func (c *PassConfig) Clone() *PassConfig {
	out := NewPassConfig()
	if c == nil {
		return out
	}
	for k, v := range c.disabled {
		out.disabled[k] = v
	}
	for k, v := range c.vetoes {
		out.vetoes[k] = v
	}
	for k, v := range c.disabledOps {
		out.disabledOps[k] = v
	}
	out.globalVeto = c.globalVeto
	out.ForbidDisabledOps = c.ForbidDisabledOps
	return out
}

// Disable turns off the pass type T.
func Disable[T rtti.Typed](c *PassConfig) { c.Disable(rtti.StaticType[T]()) }

// Enable turns the pass type T back on.
func Enable[T rtti.Typed](c *PassConfig) { c.Enable(rtti.StaticType[T]()) }

// IsDisabled reports whether the pass type T is off.
func IsDisabled[T rtti.Typed](c *PassConfig) bool { return c.IsDisabled(rtti.StaticType[T]()) }

// SetCallback installs veto for the pass type T.
func SetCallback[T rtti.Typed](c *PassConfig, veto Veto) {
	c.SetCallback(veto, rtti.StaticType[T]())
}
