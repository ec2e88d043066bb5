// Package frontend implements the project front-end on top of esbuild.
//
// esbuild transpiles each file on its own and does not type-check. Syntax
// errors are reported as diagnostics; type errors need a project.Checker.
package frontend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/tsb/internal/project"
	"github.com/evanw/esbuild/pkg/api"
)

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es6":    api.ES2015,
	"es2016": api.ES2016,
	"es7":    api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// DefaultTarget is used when neither the frontend nor the tsconfig names one.
const DefaultTarget = "es2022"

// Esbuild is a project.Frontend backed by esbuild's transform API.
type Esbuild struct {
	// Target overrides compilerOptions.target when set.
	Target string
}

// New returns an esbuild frontend. An empty target defers to the tsconfig.
func New(target string) *Esbuild {
	return &Esbuild{Target: target}
}

// Emit transpiles every source file of p to CommonJS.
func (e *Esbuild) Emit(ctx context.Context, p *project.Program, write project.WriteFunc) []project.Diagnostic {
	var diags []project.Diagnostic
	opts := p.Config.CompilerOptions

	for _, file := range p.SourceFiles() {
		if ctx.Err() != nil {
			break
		}

		data, err := os.ReadFile(file)
		if err != nil {
			diags = append(diags, project.Errorf(file, "TS6053", "File '%s' not found.", file))
			continue
		}

		out := p.OutputPath(file)
		result, fileDiags := e.transform(file, string(data), opts)
		diags = append(diags, fileDiags...)
		if project.CountErrors(fileDiags) > 0 {
			continue
		}

		code := string(result.Code)
		if opts.SourceMap && !opts.InlineSourceMap && len(result.Map) > 0 {
			mapPath := out + ".map"
			if err := write(mapPath, string(result.Map)); err != nil {
				diags = append(diags, project.Errorf(mapPath, "", "%v", err))
			}
			code += "//# sourceMappingURL=" + filepath.Base(mapPath) + "\n"
		}

		if err := write(out, code); err != nil {
			diags = append(diags, project.Errorf(out, "", "%v", err))
		}
	}

	return diags
}

// Transpile converts one file to CommonJS.
func (e *Esbuild) Transpile(path, text string, opts project.CompilerOptions) (string, []project.Diagnostic) {
	result, diags := e.transform(path, text, opts)
	return string(result.Code), diags
}

func (e *Esbuild) transform(path, text string, opts project.CompilerOptions) (api.TransformResult, []project.Diagnostic) {
	var diags []project.Diagnostic

	targetName := e.Target
	if targetName == "" {
		targetName = opts.Target
	}
	target, targetDiag := resolveTarget(targetName)
	if targetDiag != nil {
		targetDiag.File = path
		diags = append(diags, *targetDiag)
	}

	options := api.TransformOptions{
		Loader:      loaderFor(path),
		Format:      api.FormatCommonJS,
		Target:      target,
		Sourcefile:  path,
		TsconfigRaw: tsconfigRaw(opts),
		LogLevel:    api.LogLevelSilent,
	}
	switch {
	case opts.InlineSourceMap:
		options.Sourcemap = api.SourceMapInline
	case opts.SourceMap:
		options.Sourcemap = api.SourceMapExternal
	}
	if opts.JSX == "preserve" {
		options.JSX = api.JSXPreserve
	}
	if strings.HasPrefix(opts.JSX, "react-jsx") {
		options.JSX = api.JSXAutomatic
		options.JSXDev = opts.JSX == "react-jsxdev"
	}
	if opts.JSXFactory != "" {
		options.JSXFactory = opts.JSXFactory
	}
	if opts.JSXFragmentFactory != "" {
		options.JSXFragment = opts.JSXFragmentFactory
	}
	if opts.JSXImportSource != "" {
		options.JSXImportSource = opts.JSXImportSource
	}

	result := api.Transform(text, options)
	diags = append(diags, convert(path, project.SeverityError, result.Errors)...)
	diags = append(diags, convert(path, project.SeverityWarning, result.Warnings)...)
	return result, diags
}

func loaderFor(path string) api.Loader {
	switch filepath.Ext(path) {
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	case ".js", ".mjs", ".cjs":
		return api.LoaderJS
	default:
		return api.LoaderTS
	}
}

func resolveTarget(name string) (api.Target, *project.Diagnostic) {
	name = strings.ToLower(name)
	if name == "" {
		name = DefaultTarget
	}
	if t, ok := targets[name]; ok {
		return t, nil
	}
	if name == "es3" || name == "es5" {
		return api.ES2015, &project.Diagnostic{
			Severity: project.SeverityWarning,
			Text:     "target " + name + " is not supported by the front-end; using es2015",
		}
	}
	return targets[DefaultTarget], &project.Diagnostic{
		Severity: project.SeverityWarning,
		Text:     "unknown target " + name + "; using " + DefaultTarget,
	}
}

// tsconfigRaw passes the options esbuild reads from a tsconfig.
func tsconfigRaw(opts project.CompilerOptions) string {
	type compilerOptions struct {
		AlwaysStrict            *bool `json:"alwaysStrict,omitempty"`
		ExperimentalDecorators  *bool `json:"experimentalDecorators,omitempty"`
		UseDefineForClassFields *bool `json:"useDefineForClassFields,omitempty"`
		Strict                  *bool `json:"strict,omitempty"`
	}
	raw := struct {
		CompilerOptions compilerOptions `json:"compilerOptions"`
	}{}

	set := func(b bool) *bool {
		if !b {
			return nil
		}
		return &b
	}
	raw.CompilerOptions.AlwaysStrict = set(opts.AlwaysStrict)
	raw.CompilerOptions.ExperimentalDecorators = set(opts.ExperimentalDecorators)
	raw.CompilerOptions.Strict = set(opts.Strict)
	raw.CompilerOptions.UseDefineForClassFields = opts.UseDefineForClassFields

	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(b)
}

func convert(path string, severity project.Severity, msgs []api.Message) []project.Diagnostic {
	var diags []project.Diagnostic
	for _, m := range msgs {
		d := project.Diagnostic{
			Severity: severity,
			File:     path,
			Code:     m.ID,
			Text:     m.Text,
		}
		if m.Location != nil {
			if m.Location.File != "" {
				d.File = m.Location.File
			}
			d.Line = m.Location.Line
			d.Column = m.Location.Column + 1
		}
		diags = append(diags, d)
	}
	return diags
}
