package project

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Checker type-checks a program before it is emitted.
type Checker interface {
	Check(ctx context.Context, p *Program) ([]Diagnostic, error)
}

// ExecChecker runs an external type checker such as "tsc --noEmit -p ." in
// the program's base directory and parses its diagnostics. A non-zero exit
// is expected when the checker reports errors and is not itself an error.
type ExecChecker struct {
	Command []string
}

// tsc prints diagnostics as: file(line,col): error TS2322: text
var tscLine = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (error|warning|message|suggestion) (TS\d+): (.*)$`)

// tsc also prints global diagnostics without a location.
var tscGlobal = regexp.MustCompile(`^(error|warning|message|suggestion) (TS\d+): (.*)$`)

// Check runs the command and returns the diagnostics it printed.
func (c *ExecChecker) Check(ctx context.Context, p *Program) ([]Diagnostic, error) {
	if len(c.Command) == 0 {
		return nil, fmt.Errorf("type check command is empty")
	}

	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Dir = p.BasePath

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("failed to run %s: %w", c.Command[0], err)
	}

	diags := ParseTSCOutput(out.Bytes(), p.BasePath)
	if err != nil && CountErrors(diags) == 0 {
		// the checker failed without telling us why
		diags = append(diags, Errorf("", "", "%s exited with code %d: %s",
			c.Command[0], exitErr.ExitCode(), strings.TrimSpace(out.String())))
	}
	return diags, nil
}

// ParseTSCOutput parses tsc's plain diagnostic output. Relative file names
// are resolved against base. Continuation lines are appended to the
// preceding diagnostic.
func ParseTSCOutput(out []byte, base string) []Diagnostic {
	var diags []Diagnostic

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if m := tscLine.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[2])
			col, _ := strconv.Atoi(m[3])
			file := m[1]
			if !filepath.IsAbs(file) {
				file = filepath.Join(base, file)
			}
			diags = append(diags, Diagnostic{
				Severity: Severity(m[4]),
				File:     file,
				Line:     lineNo,
				Column:   col,
				Code:     m[5],
				Text:     m[6],
			})
			continue
		}

		if m := tscGlobal.FindStringSubmatch(line); m != nil {
			diags = append(diags, Diagnostic{Severity: Severity(m[1]), Code: m[2], Text: m[3]})
			continue
		}

		if strings.HasPrefix(line, "  ") && len(diags) > 0 {
			last := &diags[len(diags)-1]
			last.Text += "\n" + strings.TrimSpace(line)
		}
	}

	return diags
}

// CodeUnchecked marks the warning reported when no type checker is available.
const CodeUnchecked = "TSB6001"

// TSCChecker runs the TypeScript compiler at Path with --noEmit against the
// program's tsconfig, or its root files for inline configs.
type TSCChecker struct {
	Path string
}

// Check runs tsc for p.
func (c *TSCChecker) Check(ctx context.Context, p *Program) ([]Diagnostic, error) {
	args := []string{c.Path, "--noEmit", "--pretty", "false"}
	if p.ConfigPath != "" {
		args = append(args, "-p", p.ConfigPath)
	} else {
		args = append(args, p.Files...)
	}
	return (&ExecChecker{Command: args}).Check(ctx, p)
}

// uncheckedChecker stands in when tsc cannot be found. Emit still runs.
type uncheckedChecker struct{}

func (uncheckedChecker) Check(ctx context.Context, p *Program) ([]Diagnostic, error) {
	return []Diagnostic{{
		Severity: SeverityWarning,
		Code:     CodeUnchecked,
		Text:     "tsc not found on PATH; type errors are not checked",
	}}, nil
}

// DefaultChecker returns a TSCChecker for the tsc on PATH, or a checker that
// only warns that types go unchecked.
func DefaultChecker() Checker {
	path, err := exec.LookPath("tsc")
	if err != nil {
		return uncheckedChecker{}
	}
	return &TSCChecker{Path: path}
}
