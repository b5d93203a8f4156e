// Package errors provides structured diagnostics for the lattice graph compiler.
// It defines error codes, categories, and formatting for both human-readable
// terminal output and machine-parseable JSON for tooling.
package errors

import (
	"encoding/json"
	stderrors "errors"
)

// ErrorCode represents a unique diagnostic code.
type ErrorCode string

// ErrorCategory represents the category of a diagnostic.
type ErrorCategory string

const (
	// CategoryInference represents op inference contract violations (INF300-399).
	CategoryInference ErrorCategory = "inference"
	// CategoryFold represents constant folding failures (FLD500-599).
	CategoryFold ErrorCategory = "fold"
	// CategoryConvergence represents fixed-point iteration reports (FXP600-699).
	CategoryConvergence ErrorCategory = "convergence"
	// CategoryConfiguration represents registry and pass setup errors (CFG800-899).
	CategoryConfiguration ErrorCategory = "configuration"
)

// ErrorSeverity indicates the severity level of a diagnostic.
type ErrorSeverity string

const (
	// SeverityError indicates an error that aborts the current run.
	SeverityError ErrorSeverity = "error"
	// SeverityWarning indicates a reported condition that does not abort the run.
	SeverityWarning ErrorSeverity = "warning"
	// SeverityInfo indicates informational messages.
	SeverityInfo ErrorSeverity = "info"
)

// CompilerError represents a structured diagnostic with enough information
// for both terminal output and tooling consumption.
type CompilerError struct {
	// Code is the unique error code (e.g., "INF301", "CFG801").
	Code ErrorCode `json:"code"`
	// Type is a machine-readable error type identifier.
	Type string `json:"type"`
	// Category is the error category.
	Category ErrorCategory `json:"category"`
	// Severity is the error severity level.
	Severity ErrorSeverity `json:"severity"`
	// Message is the primary error message.
	Message string `json:"message"`
	// Node is the friendly name of the node the error refers to (optional).
	Node string `json:"node,omitempty"`
	// Op is the discrete type of the node the error refers to (optional).
	Op string `json:"op,omitempty"`
	// Pass is the name of the pass that was running (optional).
	Pass string `json:"pass,omitempty"`
	// Expected describes what was expected (optional).
	Expected string `json:"expected,omitempty"`
	// Actual describes what was actually found (optional).
	Actual string `json:"actual,omitempty"`
	// Suggestion provides a hint for fixing the error (optional).
	Suggestion string `json:"suggestion,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *CompilerError) Error() string {
	return FormatCompact(e)
}

// Format returns a human-readable error message for terminal output.
func (e *CompilerError) Format() string {
	return FormatError(e)
}

// Unwrap returns the underlying cause, if any.
func (e *CompilerError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a CompilerError carrying the same code.
// This lets callers use errors.Is against the package-level sentinels.
func (e *CompilerError) Is(target error) bool {
	var other *CompilerError
	if !stderrors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// ToJSON returns the error as a JSON string.
func (e *CompilerError) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// WithNode sets the node the error refers to.
func (e *CompilerError) WithNode(name, op string) *CompilerError {
	e.Node = name
	e.Op = op
	return e
}

// WithPass sets the pass that produced the error.
func (e *CompilerError) WithPass(pass string) *CompilerError {
	e.Pass = pass
	return e
}

// WithExpected sets the expected value for the error.
func (e *CompilerError) WithExpected(expected string) *CompilerError {
	e.Expected = expected
	return e
}

// WithActual sets the actual value for the error.
func (e *CompilerError) WithActual(actual string) *CompilerError {
	e.Actual = actual
	return e
}

// WithSuggestion sets a suggestion for fixing the error.
func (e *CompilerError) WithSuggestion(suggestion string) *CompilerError {
	e.Suggestion = suggestion
	return e
}

// WithCause attaches the underlying error.
func (e *CompilerError) WithCause(err error) *CompilerError {
	e.cause = err
	return e
}

// IsFatal reports whether err carries a diagnostic that must abort a pass manager run.
// Configuration and inference errors are fatal; fold failures and convergence
// reports are not.
func IsFatal(err error) bool {
	var ce *CompilerError
	if !stderrors.As(err, &ce) {
		return err != nil
	}
	if ce.Severity != SeverityError {
		return false
	}
	return ce.Category == CategoryConfiguration || ce.Category == CategoryInference
}

// CategoryOf returns the category of err, or "" when err is not a CompilerError.
func CategoryOf(err error) ErrorCategory {
	var ce *CompilerError
	if stderrors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// ErrorList is a collection of diagnostics.
type ErrorList []*CompilerError

// Error implements the error interface.
func (el ErrorList) Error() string {
	if len(el) == 0 {
		return "no errors"
	}
	return FormatErrorList(el)
}

// HasErrors returns true if the list contains any errors (excludes warnings/info).
func (el ErrorList) HasErrors() bool {
	for _, err := range el {
		if err.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if the list contains any warnings.
func (el ErrorList) HasWarnings() bool {
	for _, err := range el {
		if err.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// ToJSON returns all errors as a JSON array.
func (el ErrorList) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(el, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// ErrorCount returns the number of diagnostics by severity.
func (el ErrorList) ErrorCount() (errors, warnings, info int) {
	for _, err := range el {
		switch err.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		case SeverityInfo:
			info++
		}
	}
	return
}

// newError creates a new CompilerError with the given parameters.
func newError(
	code ErrorCode,
	typ string,
	category ErrorCategory,
	severity ErrorSeverity,
	message string,
) *CompilerError {
	return &CompilerError{
		Code:     code,
		Type:     typ,
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

func sentinel(code ErrorCode) *CompilerError {
	return &CompilerError{Code: code}
}
