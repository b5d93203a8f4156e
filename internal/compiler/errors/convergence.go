package errors

import "fmt"

// Fixed-point report codes (FXP600-699).
const (
	// ErrNonConvergence indicates the iteration cap was reached with matches still firing.
	ErrNonConvergence ErrorCode = "FXP601"
)

// NonConvergence is a sentinel for errors.Is checks against FXP601.
var NonConvergence = sentinel(ErrNonConvergence)

// NewNonConvergence creates an FXP601 warning.
func NewNonConvergence(pass string, iterations, lastChanges int) *CompilerError {
	return newError(
		ErrNonConvergence,
		"non_convergence",
		CategoryConvergence,
		SeverityWarning,
		fmt.Sprintf("%s did not reach a fixed point after %d iteration(s)", pass, iterations),
	).WithPass(pass).
		WithActual(fmt.Sprintf("%d rewrite(s) in the last traversal", lastChanges)).
		WithSuggestion("Raise passes.max_iterations or check for rewrites that undo each other")
}
