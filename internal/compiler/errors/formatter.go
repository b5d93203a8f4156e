package errors

import (
	"fmt"
	"strings"
)

// FormatError returns a human-readable error message for terminal output.
func FormatError(e *CompilerError) string {
	var b strings.Builder

	icon := severityIcon(e.Severity)
	categoryName := categoryDisplayName(e.Category)

	fmt.Fprintf(&b, "%s %s [%s]\n", icon, categoryName, e.Code)

	// Where it happened
	if e.Node != "" {
		if e.Op != "" {
			fmt.Fprintf(&b, "Node %s (%s):\n", e.Node, e.Op)
		} else {
			fmt.Fprintf(&b, "Node %s:\n", e.Node)
		}
	}
	if e.Pass != "" {
		fmt.Fprintf(&b, "Pass %s:\n", e.Pass)
	}

	fmt.Fprintf(&b, "  %s\n", e.Message)

	if e.Expected != "" || e.Actual != "" {
		b.WriteString("\n")
		if e.Expected != "" {
			fmt.Fprintf(&b, "  Expected: %s\n", e.Expected)
		}
		if e.Actual != "" {
			fmt.Fprintf(&b, "  Actual:   %s\n", e.Actual)
		}
	}

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n💡 %s\n", e.Suggestion)
	}

	if e.cause != nil {
		fmt.Fprintf(&b, "\nCaused by: %v\n", e.cause)
	}

	return b.String()
}

// FormatErrorList returns a formatted string of all errors.
func FormatErrorList(errors ErrorList) string {
	if len(errors) == 0 {
		return "no errors"
	}

	var b strings.Builder

	errCount, warnCount, infoCount := errors.ErrorCount()
	fmt.Fprintf(&b, "%d error(s), %d warning(s), %d info\n\n",
		errCount, warnCount, infoCount)

	for i, err := range errors {
		if i > 0 {
			b.WriteString("\n" + strings.Repeat("-", 80) + "\n\n")
		}
		b.WriteString(err.Format())
	}

	return b.String()
}

// FormatCompact returns a compact one-line error format.
func FormatCompact(e *CompilerError) string {
	var where string
	switch {
	case e.Node != "" && e.Pass != "":
		where = e.Pass + ":" + e.Node + ": "
	case e.Node != "":
		where = e.Node + ": "
	case e.Pass != "":
		where = e.Pass + ": "
	}
	msg := fmt.Sprintf("%s%s: %s [%s]", where, e.Severity, e.Message, e.Code)
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(" (expected %s, got %s)", orNone(e.Expected), orNone(e.Actual))
	}
	return msg
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// severityIcon returns the emoji/icon for a severity level.
func severityIcon(severity ErrorSeverity) string {
	switch severity {
	case SeverityError:
		return "❌"
	case SeverityWarning:
		return "⚠️ "
	case SeverityInfo:
		return "ℹ️ "
	default:
		return "❓"
	}
}

// categoryDisplayName returns a human-readable category name.
func categoryDisplayName(category ErrorCategory) string {
	switch category {
	case CategoryInference:
		return "Inference Error"
	case CategoryFold:
		return "Fold Failure"
	case CategoryConvergence:
		return "Convergence Warning"
	case CategoryConfiguration:
		return "Configuration Error"
	default:
		return "Compiler Error"
	}
}
