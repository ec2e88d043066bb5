package project

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dyluth/tsb/internal/store"
	"github.com/dyluth/tsb/internal/transform"
)

// WriteFunc receives one emitted file. A front-end must turn an error
// returned by write into an error diagnostic for path.
type WriteFunc func(path, text string) error

// Frontend is the TypeScript front-end compiler.
type Frontend interface {
	// Emit transpiles every source file of p and passes each output file to
	// write. It returns the diagnostics of the emit.
	Emit(ctx context.Context, p *Program, write WriteFunc) []Diagnostic

	// Transpile converts one file's text to JavaScript.
	Transpile(path, text string, opts CompilerOptions) (string, []Diagnostic)
}

// Codec produces artifacts from JavaScript text.
type Codec interface {
	Compile(text string, wrap bool) ([]byte, error)
}

// Options controls one compilation.
type Options struct {
	// Pipeline runs over every emitted file before it is compiled.
	Pipeline transform.Pipeline

	// OutDir is appended to the config's outDir.
	OutDir string

	// RootPath overrides the base path of the project.
	RootPath string

	// Codegen turns artifact generation on or off. Nil means on. When off
	// the cache holds transformed text instead of artifacts.
	Codegen *bool

	// Ignore lists glob patterns matched against the base name of emitted
	// files. Matching files are written through as plain JavaScript.
	Ignore []string
}

func (o Options) codegen() bool {
	return o.Codegen == nil || *o.Codegen
}

// Bool returns a pointer to b, for Options.Codegen.
func Bool(b bool) *bool {
	return &b
}

// Interceptor is the write callback of a compilation. It fills a cache with
// compiled JavaScript and writes every other file through.
type Interceptor struct {
	ctx    context.Context
	opts   Options
	codec  Codec
	assets store.Store
	cache  Cache
}

// NewInterceptor creates an interceptor. Files that are not compiled are
// written through to assets.
func NewInterceptor(ctx context.Context, opts Options, codec Codec, assets store.Store) *Interceptor {
	return &Interceptor{ctx: ctx, opts: opts, codec: codec, assets: assets, cache: Cache{}}
}

// Cache returns the entries collected so far.
func (i *Interceptor) Cache() Cache {
	return i.cache
}

// Write handles one emitted file.
func (i *Interceptor) Write(path, text string) error {
	text = i.opts.Pipeline.Apply(text)

	if !i.allowed(path) {
		return i.assets.Put(i.ctx, path, []byte(text))
	}

	key := strings.TrimSuffix(path, ".js")
	if !i.opts.codegen() {
		i.cache[key] = []byte(text)
		return nil
	}

	blob, err := i.codec.Compile(text, true)
	if err != nil {
		return err
	}
	i.cache[key] = blob
	return nil
}

func (i *Interceptor) allowed(path string) bool {
	if !strings.HasSuffix(path, ".js") {
		return false
	}
	base := filepath.Base(path)
	for _, pattern := range i.opts.Ignore {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return false
		}
	}
	return true
}

// Result is the outcome of a project compilation.
type Result struct {
	// Cache is empty whenever Diagnostics holds an error.
	Cache       Cache
	Diagnostics []Diagnostic
	Files       int
}

// Err returns a *CompileError when the compilation produced any error
// diagnostic.
func (r *Result) Err() error {
	if CountErrors(r.Diagnostics) == 0 {
		return nil
	}
	return &CompileError{Diagnostics: r.Diagnostics}
}

// Compiler compiles projects with a front-end and an artifact codec.
type Compiler struct {
	Frontend Frontend
	Codec    Codec

	// Checker, if set, type-checks the program before emit. NewCompiler
	// sets DefaultChecker.
	Checker Checker

	// Reporter receives all diagnostics of every compilation.
	Reporter Reporter

	// Assets receives emitted files that are not compiled.
	Assets store.Store
}

// NewCompiler returns a compiler that type-checks with tsc when it is on
// PATH, writes assets to the local filesystem and logs diagnostics.
func NewCompiler(frontend Frontend, codec Codec) *Compiler {
	return &Compiler{
		Frontend: frontend,
		Codec:    codec,
		Checker:  DefaultChecker(),
		Reporter: ReporterFunc(logDiagnostics),
		Assets:   store.NewFileStore(""),
	}
}

func logDiagnostics(diags []Diagnostic) {
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			log.Printf("[ERROR] %s", d)
		case SeverityWarning:
			log.Printf("[WARN] %s", d)
		default:
			log.Printf("[INFO] %s", d)
		}
	}
}

// Project compiles the project named by source. A project with no source
// files yields an empty cache and no error; the diagnostics saying so are
// still reported and returned. If any error diagnostic is
// collected the cache is empty and the returned error is a *CompileError;
// the Result is still returned so callers can inspect the diagnostics.
func (c *Compiler) Project(ctx context.Context, source Source, opts Options) (*Result, error) {
	program, err := NewProgram(source, opts)
	if err != nil {
		return nil, err
	}

	if len(program.Files) == 0 {
		log.Printf("[WARN] Could not find any source files in %s", source)
		c.report(program.Diagnostics)
		return &Result{Cache: Cache{}, Diagnostics: program.Diagnostics}, nil
	}

	log.Printf("[INFO] Compiling %d files from %s into %s", len(program.Files), source, program.OutDir)

	diags := append([]Diagnostic{}, program.Diagnostics...)

	if c.Checker != nil {
		checked, err := c.Checker.Check(ctx, program)
		if err != nil {
			return nil, fmt.Errorf("type check failed: %w", err)
		}
		diags = append(diags, checked...)
	}

	interceptor := NewInterceptor(ctx, opts, c.Codec, c.assets())
	diags = append(diags, c.Frontend.Emit(ctx, program, interceptor.Write)...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.report(diags)

	result := &Result{
		Cache:       interceptor.Cache(),
		Diagnostics: diags,
		Files:       len(program.Files),
	}
	if err := result.Err(); err != nil {
		result.Cache = Cache{}
		return result, err
	}

	log.Printf("[INFO] Compiled %d artifacts", len(result.Cache))
	return result, nil
}

// File compiles a single JavaScript or TypeScript file into an artifact.
// TypeScript input is transpiled first.
func (c *Compiler) File(ctx context.Context, path string, opts Options) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.Text(ctx, path, string(data), opts)
}

// Text compiles one file's contents. path only selects the loader and
// labels diagnostics.
func (c *Compiler) Text(ctx context.Context, path, text string, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ext := filepath.Ext(path); ext == ".ts" || ext == ".tsx" || ext == ".jsx" {
		out, diags := c.Frontend.Transpile(path, text, CompilerOptions{})
		c.report(diags)
		if CountErrors(diags) > 0 {
			return nil, &CompileError{Diagnostics: diags}
		}
		text = out
	}

	text = opts.Pipeline.Apply(text)
	if !opts.codegen() {
		return []byte(text), nil
	}
	return c.Codec.Compile(text, true)
}

func (c *Compiler) report(diags []Diagnostic) {
	if c.Reporter != nil && len(diags) > 0 {
		c.Reporter.Report(diags)
	}
}

func (c *Compiler) assets() store.Store {
	if c.Assets == nil {
		return store.NewFileStore("")
	}
	return c.Assets
}
