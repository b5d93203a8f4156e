package rtti

// Typed is implemented by anything carrying a discrete type: ops and passes.
//
// Implementations must not dereference the receiver in TypeInfo so that the
// static type info of T can be read from a nil *T.
type Typed interface {
	TypeInfo() *TypeInfo
}

// Viewer is implemented by a variant that can present itself as its parent
// variant. A v8 op embedding its v5 ancestor returns the embedded value.
type Viewer interface {
	ParentView() Typed
}

// StaticType returns the TypeInfo declared by T.
func StaticType[T Typed]() *TypeInfo {
	var zero T
	return zero.TypeInfo()
}

// IsType reports whether v's discrete type is castable to T's.
func IsType[T Typed](v Typed) bool {
	if v == nil {
		return false
	}
	info := v.TypeInfo()
	return info != nil && info.IsCastable(StaticType[T]())
}

// AsType returns v viewed as T, or the zero T and false when v is not a T.
// It never panics.
func AsType[T Typed](v Typed) (T, bool) {
	var zero T
	if !IsType[T](v) {
		return zero, false
	}
	for cur := v; cur != nil; {
		if typed, ok := cur.(T); ok {
			return typed, true
		}
		viewer, ok := cur.(Viewer)
		if !ok {
			break
		}
		cur = viewer.ParentView()
	}
	return zero, false
}
