package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
)

// ErrorLevel represents the severity of a message.
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures message formatting.
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Detail       []string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError renders a message block:
//
//	❌ UNKNOWN PASS: MultiplyFuse
//	   Unknown pass 'MultiplyFuse'
//
//	   Did you mean: MultiplyFusion?
//
//	   → List passes: lattice passes
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	headerColor, bodyColor, symbol := levelStyle(opts.Level)
	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Detail) > 0 {
		b.WriteString("\n")
		for _, line := range opts.Detail {
			bodyColor.Fprintf(&b, "   %s\n", line)
		}
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

func levelStyle(level ErrorLevel) (header, body *color.Color, symbol string) {
	switch level {
	case ErrorLevelWarning:
		return color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "⚠️"
	case ErrorLevelInfo:
		return color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "ℹ️"
	default:
		return color.New(color.FgRed, color.Bold), color.New(color.FgRed), "❌"
	}
}

// WriteError writes a formatted message to the writer.
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message.
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer.
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// Diagnostic renders a compiler diagnostic. The level follows its severity,
// the context its category.
func Diagnostic(e *errors.CompilerError, noColor bool) string {
	level := ErrorLevelError
	switch e.Severity {
	case errors.SeverityWarning:
		level = ErrorLevelWarning
	case errors.SeverityInfo:
		level = ErrorLevelInfo
	}

	var detail []string
	if e.Node != "" {
		detail = append(detail, fmt.Sprintf("node:     %s (%s)", e.Node, e.Op))
	}
	if e.Pass != "" {
		detail = append(detail, fmt.Sprintf("pass:     %s", e.Pass))
	}
	if e.Expected != "" {
		detail = append(detail, fmt.Sprintf("expected: %s", e.Expected))
	}
	if e.Actual != "" {
		detail = append(detail, fmt.Sprintf("actual:   %s", e.Actual))
	}

	var help []string
	if e.Suggestion != "" {
		help = append(help, e.Suggestion)
	}

	return FormatError(ErrorOptions{
		Level:        level,
		Context:      fmt.Sprintf("%s %s", e.Code, e.Category),
		Problem:      e.Message,
		Detail:       detail,
		HelpCommands: help,
		NoColor:      noColor,
	})
}

// UnknownNameError reports an unknown pass or op name with close matches.
func UnknownNameError(kind, name string, candidates []string, noColor bool) string {
	list := "lattice passes"
	if kind == "op" {
		list = "lattice types"
	}
	return FormatError(ErrorOptions{
		Level:        ErrorLevelError,
		Context:      "UNKNOWN " + kind,
		Problem:      fmt.Sprintf("Unknown %s '%s'", kind, name),
		Suggestions:  Suggest(name, candidates),
		HelpCommands: []string{fmt.Sprintf("List %ss: %s", kind, list)},
		NoColor:      noColor,
	})
}

// ConfigError reports an invalid lattice.yml.
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "CONFIGURATION ERROR",
		Problem: message,
		HelpCommands: []string{
			"View config: cat lattice.yml",
			"Get help: lattice run --help",
		},
		NoColor: noColor,
	})
}

// Warning creates a warning message.
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}
