package errors

import "fmt"

// Inference contract error codes (INF300-399).
const (
	// ErrRankMismatch indicates input ranks violate the op contract.
	ErrRankMismatch ErrorCode = "INF301"
	// ErrElementTypeMismatch indicates incompatible input element types.
	ErrElementTypeMismatch ErrorCode = "INF302"
	// ErrNotBroadcastable indicates shapes that cannot be numpy-broadcast together.
	ErrNotBroadcastable ErrorCode = "INF303"
	// ErrInvalidIndices indicates an indices input with a non-integer element type.
	ErrInvalidIndices ErrorCode = "INF304"
	// ErrInvalidAttribute indicates an attribute value the op cannot accept.
	ErrInvalidAttribute ErrorCode = "INF305"
	// ErrInputCount indicates an op received the wrong number of inputs.
	ErrInputCount ErrorCode = "INF306"
	// ErrOutputCountMismatch indicates a node replacement with differing output counts.
	ErrOutputCountMismatch ErrorCode = "INF307"
	// ErrShapeMismatch indicates dimensions that must agree do not.
	ErrShapeMismatch ErrorCode = "INF308"
	// ErrCycle indicates an edge that would make a node depend on itself.
	ErrCycle ErrorCode = "INF309"
)

var (
	// RankMismatch is a sentinel for errors.Is checks against INF301.
	RankMismatch = sentinel(ErrRankMismatch)
	// ElementTypeMismatch is a sentinel for errors.Is checks against INF302.
	ElementTypeMismatch = sentinel(ErrElementTypeMismatch)
	// NotBroadcastable is a sentinel for errors.Is checks against INF303.
	NotBroadcastable = sentinel(ErrNotBroadcastable)
	// InvalidIndices is a sentinel for errors.Is checks against INF304.
	InvalidIndices = sentinel(ErrInvalidIndices)
	// InvalidAttribute is a sentinel for errors.Is checks against INF305.
	InvalidAttribute = sentinel(ErrInvalidAttribute)
	// InputCount is a sentinel for errors.Is checks against INF306.
	InputCount = sentinel(ErrInputCount)
	// OutputCountMismatch is a sentinel for errors.Is checks against INF307.
	OutputCountMismatch = sentinel(ErrOutputCountMismatch)
	// ShapeMismatch is a sentinel for errors.Is checks against INF308.
	ShapeMismatch = sentinel(ErrShapeMismatch)
	// Cycle is a sentinel for errors.Is checks against INF309.
	Cycle = sentinel(ErrCycle)
)

// NewRankMismatch creates an INF301 error.
func NewRankMismatch(context, expected, actual string) *CompilerError {
	return newError(
		ErrRankMismatch,
		"rank_mismatch",
		CategoryInference,
		SeverityError,
		fmt.Sprintf("Rank mismatch in %s", context),
	).WithExpected(expected).WithActual(actual)
}

// NewElementTypeMismatch creates an INF302 error.
func NewElementTypeMismatch(context, expected, actual string) *CompilerError {
	return newError(
		ErrElementTypeMismatch,
		"element_type_mismatch",
		CategoryInference,
		SeverityError,
		fmt.Sprintf("Incompatible element types in %s", context),
	).WithExpected(expected).WithActual(actual).
		WithSuggestion("Insert a Convert node so both inputs share one element type")
}

// NewNotBroadcastable creates an INF303 error.
func NewNotBroadcastable(left, right string) *CompilerError {
	return newError(
		ErrNotBroadcastable,
		"not_broadcastable",
		CategoryInference,
		SeverityError,
		fmt.Sprintf("Shapes %s and %s are not broadcastable", left, right),
	)
}

// NewInvalidIndices creates an INF304 error.
func NewInvalidIndices(actual string) *CompilerError {
	return newError(
		ErrInvalidIndices,
		"invalid_indices",
		CategoryInference,
		SeverityError,
		"Indices input must have an integer element type",
	).WithExpected("i32 or i64").WithActual(actual)
}

// NewInvalidAttribute creates an INF305 error.
func NewInvalidAttribute(attribute, reason string) *CompilerError {
	return newError(
		ErrInvalidAttribute,
		"invalid_attribute",
		CategoryInference,
		SeverityError,
		fmt.Sprintf("Invalid value for attribute '%s': %s", attribute, reason),
	)
}

// NewInputCount creates an INF306 error.
func NewInputCount(op string, expected, actual int) *CompilerError {
	return newError(
		ErrInputCount,
		"input_count",
		CategoryInference,
		SeverityError,
		fmt.Sprintf("%s received the wrong number of inputs", op),
	).WithExpected(fmt.Sprintf("%d", expected)).WithActual(fmt.Sprintf("%d", actual))
}

// NewOutputCountMismatch creates an INF307 error.
func NewOutputCountMismatch(oldName, newName string, oldCount, newCount int) *CompilerError {
	return newError(
		ErrOutputCountMismatch,
		"output_count_mismatch",
		CategoryInference,
		SeverityError,
		fmt.Sprintf("Cannot replace %s with %s: output counts differ", oldName, newName),
	).WithExpected(fmt.Sprintf("%d outputs", oldCount)).
		WithActual(fmt.Sprintf("%d outputs", newCount))
}

// NewShapeMismatch creates an INF308 error.
func NewShapeMismatch(context, expected, actual string) *CompilerError {
	return newError(
		ErrShapeMismatch,
		"shape_mismatch",
		CategoryInference,
		SeverityError,
		fmt.Sprintf("Shape mismatch in %s", context),
	).WithExpected(expected).WithActual(actual)
}

// NewCycle creates an INF309 error for consumer reading from producer when
// producer already depends on consumer.
func NewCycle(consumer, producer string) *CompilerError {
	return newError(
		ErrCycle,
		"cycle",
		CategoryInference,
		SeverityError,
		fmt.Sprintf("%s cannot consume %s: the graph would contain a cycle", consumer, producer),
	)
}
