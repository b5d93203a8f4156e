package errors

import "fmt"

// Fold error codes (FLD500-599) - local and recoverable, never escalated.
const (
	// ErrNotFoldable indicates the evaluator has no kernel for the op.
	ErrNotFoldable ErrorCode = "FLD501"
	// ErrNonConstantInput indicates an input that is not a compile-time constant.
	ErrNonConstantInput ErrorCode = "FLD502"
	// ErrFoldSizeLimit indicates an input or result exceeding the size guard.
	ErrFoldSizeLimit ErrorCode = "FLD503"
)

var (
	// NotFoldable is a sentinel for errors.Is checks against FLD501.
	NotFoldable = sentinel(ErrNotFoldable)
	// NonConstantInput is a sentinel for errors.Is checks against FLD502.
	NonConstantInput = sentinel(ErrNonConstantInput)
	// FoldSizeLimit is a sentinel for errors.Is checks against FLD503.
	FoldSizeLimit = sentinel(ErrFoldSizeLimit)
)

// NewNotFoldable creates a FLD501 error.
func NewNotFoldable(op string) *CompilerError {
	return newError(
		ErrNotFoldable,
		"not_foldable",
		CategoryFold,
		SeverityInfo,
		fmt.Sprintf("No constant folding kernel for %s", op),
	)
}

// NewNonConstantInput creates a FLD502 error.
func NewNonConstantInput(op string, index int) *CompilerError {
	return newError(
		ErrNonConstantInput,
		"non_constant_input",
		CategoryFold,
		SeverityInfo,
		fmt.Sprintf("Input %d of %s is not a constant", index, op),
	)
}

// NewFoldSizeLimit creates a FLD503 error.
func NewFoldSizeLimit(op string, elements, limit int) *CompilerError {
	return newError(
		ErrFoldSizeLimit,
		"fold_size_limit",
		CategoryFold,
		SeverityInfo,
		fmt.Sprintf("Folding %s would produce %d elements", op, elements),
	).WithExpected(fmt.Sprintf("at most %d elements", limit))
}
