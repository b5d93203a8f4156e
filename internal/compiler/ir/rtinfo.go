package ir

import "sort"

// Well-known runtime metadata keys.
const (
	// FusedNamesKey lists the friendly names of the original nodes a node replaces.
	FusedNamesKey = "fused_names"
	// DisableConstFoldingKey marks a node constant folding must leave alone.
	DisableConstFoldingKey = "disable_const_folding"
)

// RTInfo is the open runtime metadata attached to a node. Passes use it to
// record rewrite provenance; shape and type inference never reads it.
type RTInfo map[string]interface{}

// Clone returns a shallow copy; slice values are copied.
func (rt RTInfo) Clone() RTInfo {
	out := make(RTInfo, len(rt))
	for k, v := range rt {
		if names, ok := v.([]string); ok {
			v = append([]string(nil), names...)
		}
		out[k] = v
	}
	return out
}

// FusedNames returns the provenance names recorded on n. A node without
// provenance reports its own friendly name.
func FusedNames(n *Node) []string {
	if names, ok := n.rt[FusedNamesKey].([]string); ok && len(names) > 0 {
		return append([]string(nil), names...)
	}
	return []string{n.name}
}

// CopyRuntimeInfo merges the metadata of from into to. Fused names are
// unioned and sorted; any other key is copied unless to already has it.
func CopyRuntimeInfo(from []*Node, to *Node) {
	seen := map[string]bool{}
	var names []string
	add := func(list []string) {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	if existing, ok := to.rt[FusedNamesKey].([]string); ok {
		add(existing)
	}

	rt := to.RTInfo()
	for _, src := range from {
		if src == nil || src == to {
			continue
		}
		add(FusedNames(src))
		for k, v := range src.rt {
			if k == FusedNamesKey {
				continue
			}
			if _, ok := rt[k]; !ok {
				rt[k] = v
			}
		}
	}

	sort.Strings(names)
	rt[FusedNamesKey] = names
}
