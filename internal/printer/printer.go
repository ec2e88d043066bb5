package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dyluth/tsb/internal/project"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

func init() {
	// Colors only on a terminal. NO_COLOR always wins.
	color.NoColor = os.Getenv("NO_COLOR") != "" || !IsTerminal(os.Stdout)
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var (
	// Color definitions
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		green.Printf("✓ %s", msg)
	} else {
		green.Print(msg)
	}
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		yellow.Printf("⚠️  %s", msg)
	} else {
		yellow.Print(msg)
	}
}

// Error prints a titled error with an explanation and suggestions to
// stderr, and returns an error carrying only the title. The root command
// silences cobra's own error output, so nothing is printed twice.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error plus sorted "key: value" context lines.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for key := range context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(os.Stderr, "\n")
		for _, key := range keys {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", key, context[key])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(os.Stderr, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(os.Stderr, "\nEither:\n")
		for i, suggestion := range suggestions {
			fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
		}
	}

	return fmt.Errorf("%s", title)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Println(a...)
}

// Field prints one "name: value" line of a key/value listing.
func Field(name string, value any) {
	fmt.Printf("%-15s %v\n", name+":", value)
}

// Diagnostics writes one line per diagnostic to w followed by an error
// count. With pretty set, locations and severities are colored the way
// tsc --pretty does.
func Diagnostics(w io.Writer, diags []project.Diagnostic, pretty bool) {
	if len(diags) == 0 {
		return
	}

	location := color.New(color.FgCyan)
	code := color.New(color.FgHiBlack)
	severity := map[project.Severity]*color.Color{
		project.SeverityError:      color.New(color.FgRed, color.Bold),
		project.SeverityWarning:    color.New(color.FgYellow),
		project.SeveritySuggestion: color.New(color.FgBlue),
		project.SeverityMessage:    color.New(color.FgBlue),
	}
	for _, c := range append([]*color.Color{location, code}, mapValues(severity)...) {
		if pretty {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for _, d := range diags {
		if !pretty {
			fmt.Fprintln(w, d.String())
			continue
		}

		if d.File != "" {
			loc := d.File
			if d.Line > 0 {
				loc = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
			}
			location.Fprint(w, loc)
			fmt.Fprint(w, " - ")
		}
		sev, ok := severity[d.Severity]
		if !ok {
			sev = severity[project.SeverityMessage]
		}
		sev.Fprint(w, string(d.Severity))
		if d.Code != "" {
			fmt.Fprint(w, " ")
			code.Fprint(w, d.Code)
		}
		fmt.Fprintf(w, ": %s\n", d.Text)
	}

	if n := project.CountErrors(diags); n > 0 {
		noun := "errors"
		if n == 1 {
			noun = "error"
		}
		fmt.Fprintf(w, "\nFound %d %s.\n", n, noun)
	}
}

func mapValues(m map[project.Severity]*color.Color) []*color.Color {
	out := make([]*color.Color, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
