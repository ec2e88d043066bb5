package project

import (
	"fmt"
	"strings"
)

// Severity is the category of a diagnostic.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
	SeverityMessage    Severity = "message"
)

// Diagnostic is one compiler message. Line and Column are 1-based; both are
// zero when the diagnostic has no location.
type Diagnostic struct {
	Severity Severity `json:"severity" cbor:"severity"`
	File     string   `json:"file,omitempty" cbor:"file,omitempty"`
	Line     int      `json:"line,omitempty" cbor:"line,omitempty"`
	Column   int      `json:"column,omitempty" cbor:"column,omitempty"`
	Code     string   `json:"code,omitempty" cbor:"code,omitempty"`
	Text     string   `json:"text" cbor:"text"`
}

// String formats the diagnostic the way tsc does without --pretty:
// file(line,col): error TS1005: text
func (d Diagnostic) String() string {
	var b strings.Builder
	if d.File != "" {
		b.WriteString(d.File)
		if d.Line > 0 {
			fmt.Fprintf(&b, "(%d,%d)", d.Line, d.Column)
		}
		b.WriteString(": ")
	}
	b.WriteString(string(d.Severity))
	if d.Code != "" {
		b.WriteString(" ")
		b.WriteString(d.Code)
	}
	b.WriteString(": ")
	b.WriteString(d.Text)
	return b.String()
}

// Errorf returns an error diagnostic for file.
func Errorf(file, code, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Severity: SeverityError, File: file, Code: code, Text: fmt.Sprintf(format, args...)}
}

// CountErrors returns the number of error diagnostics.
func CountErrors(diags []Diagnostic) int {
	n := 0
	for _, d := range diags {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Reporter receives every diagnostic collected during a compilation,
// including warnings.
type Reporter interface {
	Report(diags []Diagnostic)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(diags []Diagnostic)

// Report calls f.
func (f ReporterFunc) Report(diags []Diagnostic) {
	f(diags)
}

// CompileError aggregates the error diagnostics of a failed compilation.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	n := CountErrors(e.Diagnostics)
	for _, d := range e.Diagnostics {
		if d.Severity == SeverityError {
			if n == 1 {
				return fmt.Sprintf("failed to compile project: %s", d)
			}
			return fmt.Sprintf("failed to compile project: %d errors, first: %s", n, d)
		}
	}
	return "failed to compile project"
}
