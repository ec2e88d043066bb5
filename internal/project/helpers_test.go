package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFiles creates files under root from a path -> contents map.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

// fakeFrontend copies sources through as JavaScript. A line containing
// "ERROR" produces an error diagnostic for that file, and every source also
// emits a .d.ts asset.
type fakeFrontend struct{}

func (fakeFrontend) Emit(ctx context.Context, p *Program, write WriteFunc) []Diagnostic {
	var diags []Diagnostic
	for _, f := range p.SourceFiles() {
		data, err := os.ReadFile(f)
		if err != nil {
			diags = append(diags, Errorf(f, "", "%v", err))
			continue
		}
		out, d := fakeFrontend{}.Transpile(f, string(data), p.Config.CompilerOptions)
		diags = append(diags, d...)

		js := p.OutputPath(f)
		if err := write(js, out); err != nil {
			diags = append(diags, Errorf(js, "", "%v", err))
		}
		decl := strings.TrimSuffix(js, ".js") + ".d.ts"
		if err := write(decl, "export {};\n"); err != nil {
			diags = append(diags, Errorf(decl, "", "%v", err))
		}
	}
	return diags
}

func (fakeFrontend) Transpile(path, text string, _ CompilerOptions) (string, []Diagnostic) {
	var diags []Diagnostic
	for i, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "ERROR") {
			diags = append(diags, Diagnostic{
				Severity: SeverityError, File: path, Line: i + 1, Column: 1,
				Code: "TS1005", Text: "';' expected.",
			})
		}
		if strings.Contains(line, "WARN") {
			diags = append(diags, Diagnostic{Severity: SeverityWarning, File: path, Line: i + 1, Column: 1, Text: "suspicious"})
		}
	}
	return strings.ReplaceAll(text, ": number", ""), diags
}

// fakeCodec prefixes text so tests can tell artifacts from plain output.
type fakeCodec struct{}

func (fakeCodec) Compile(text string, wrap bool) ([]byte, error) {
	if strings.Contains(text, "codec-fail") {
		return nil, errors.New("engine refused to compile")
	}
	if wrap {
		text = "wrapped(" + text + ")"
	}
	return []byte("blob:" + text), nil
}

// collectReporter records reported diagnostics.
type collectReporter struct {
	diags []Diagnostic
	calls int
}

func (r *collectReporter) Report(diags []Diagnostic) {
	r.calls++
	r.diags = append(r.diags, diags...)
}

func newTestCompiler() (*Compiler, *collectReporter) {
	rep := &collectReporter{}
	c := NewCompiler(fakeFrontend{}, fakeCodec{})
	c.Checker = nil
	c.Reporter = rep
	return c, rep
}
