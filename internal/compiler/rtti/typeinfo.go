// Package rtti implements discrete type identity for graph ops and passes.
//
// Every op variant (and every pass) declares exactly one TypeInfo. A TypeInfo may
// cite a previous version as its parent; "is-a" queries walk that single-parent
// chain instead of relying on Go type assertions alone.
package rtti

import "strconv"

// TypeInfo is an immutable discrete type descriptor.
type TypeInfo struct {
	name      string
	version   uint64
	versionID string
	parent    *TypeInfo
}

// New creates a TypeInfo with a numeric version and an optional parent.
func New(name string, version uint64, parent *TypeInfo) *TypeInfo {
	return &TypeInfo{name: name, version: version, parent: parent}
}

// NewWithID creates a TypeInfo carrying a textual version id (e.g. "opset5").
func NewWithID(name string, version uint64, versionID string, parent *TypeInfo) *TypeInfo {
	return &TypeInfo{name: name, version: version, versionID: versionID, parent: parent}
}

// Name returns the type name.
func (t *TypeInfo) Name() string { return t.name }

// Version returns the numeric version.
func (t *TypeInfo) Version() uint64 { return t.version }

// Parent returns the parent type, or nil.
func (t *TypeInfo) Parent() *TypeInfo { return t.parent }

// VersionString returns the version id when set, otherwise the numeric version.
func (t *TypeInfo) VersionString() string {
	if t.versionID != "" {
		return t.versionID
	}
	return strconv.FormatUint(t.version, 10)
}

// String returns "name_version".
func (t *TypeInfo) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.name + "_" + t.VersionString()
}

// Equal reports name + version identity.
func (t *TypeInfo) Equal(other *TypeInfo) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.name == other.name && t.version == other.version
}

// IsCastable reports whether t is target or descends from it.
func (t *TypeInfo) IsCastable(target *TypeInfo) bool {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.Equal(target) {
			return true
		}
	}
	return false
}

// Lineage returns t followed by its ancestors.
func (t *TypeInfo) Lineage() []*TypeInfo {
	var out []*TypeInfo
	for cur := t; cur != nil; cur = cur.parent {
		out = append(out, cur)
	}
	return out
}

// Key identifies a TypeInfo by name and version.
type Key struct {
	Name    string
	Version uint64
}

// Key returns the registry key for t.
func (t *TypeInfo) Key() Key {
	return Key{Name: t.name, Version: t.version}
}
