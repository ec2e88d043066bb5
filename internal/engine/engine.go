// Package engine hosts scripts on V8 through rogchap.com/v8go.
//
// A V8 value owns one isolate and one context. It produces code-cache
// blobs for the artifact codec and consumes them again at load time. It is
// not safe for concurrent use.
package engine

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/dyluth/tsb/pkg/artifact"
	"rogchap.com/v8go"
)

var flagsOnce sync.Once

// StartupFlags returns the process-wide V8 flags required to produce and
// consume artifacts on generation g. Lazy compilation is disabled so the
// cache covers every function, and bytecode flushing is disabled where the
// engine supports it since a flushed function would be recompiled from the
// placeholder text.
func StartupFlags(g artifact.Generation) []string {
	flags := []string{"--no-lazy"}
	if g.SupportsFlushFlag() {
		flags = append(flags, "--no-flush-bytecode")
	}
	return flags
}

type options struct {
	stdout     io.Writer
	stderr     io.Writer
	generation artifact.Generation
}

// Option configures New.
type Option func(*options)

// WithStdout sets the writer behind console.log, console.info and
// console.debug.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr sets the writer behind console.warn and console.error.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithGeneration skips the version probe when choosing startup flags.
func WithGeneration(g artifact.Generation) Option {
	return func(o *options) { o.generation = g }
}

// V8 is one isolate plus one context.
type V8 struct {
	iso *v8go.Isolate
	ctx *v8go.Context

	stdout io.Writer
	stderr io.Writer
}

// New applies the startup flags on first use, then creates an isolate and a
// context with a console object installed.
func New(opts ...Option) (*V8, error) {
	o := options{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	flagsOnce.Do(func() {
		g := o.generation
		if g == "" {
			detected, err := artifact.DetectGeneration(v8go.Version())
			if err != nil {
				log.Printf("[WARN] %v; bytecode flushing stays enabled", err)
			}
			g = detected
		}
		flags := StartupFlags(g)
		log.Printf("[DEBUG] Applying V8 flags %v", flags)
		v8go.SetFlags(flags...)
	})

	iso := v8go.NewIsolate()
	e := &V8{
		iso:    iso,
		ctx:    v8go.NewContext(iso),
		stdout: o.stdout,
		stderr: o.stderr,
	}

	if err := e.installConsole(); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to install console: %w", err)
	}

	return e, nil
}

// Close disposes the context and the isolate.
func (e *V8) Close() {
	if e.ctx != nil {
		e.ctx.Close()
		e.ctx = nil
	}
	if e.iso != nil {
		e.iso.Dispose()
		e.iso = nil
	}
}

// Version returns the linked V8 version, e.g. "11.1.277.13".
func (e *V8) Version() string {
	return LinkedVersion()
}

// LinkedVersion is Version without an isolate.
func LinkedVersion() string {
	return v8go.Version()
}

// Isolate returns the underlying isolate.
func (e *V8) Isolate() *v8go.Isolate {
	return e.iso
}

// Context returns the context scripts run in.
func (e *V8) Context() *v8go.Context {
	return e.ctx
}

// Global returns the context's global object.
func (e *V8) Global() *v8go.Object {
	return e.ctx.Global()
}

// CreateCache compiles source and returns its serialized code cache.
func (e *V8) CreateCache(source, origin string) ([]byte, error) {
	script, err := e.iso.CompileUnboundScript(source, origin, v8go.CompileOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", originName(origin), err)
	}

	cache := script.CreateCodeCache()
	if cache == nil || len(cache.Bytes) == 0 {
		return nil, fmt.Errorf("engine produced no cached data for %s", originName(origin))
	}
	return cache.Bytes, nil
}

// CompileCached compiles placeholder text against the cached data. The
// engine does not fail the compile when it refuses the data; check
// Script.CacheRejected.
func (e *V8) CompileCached(placeholder string, data []byte, origin string) (*Script, error) {
	opts := v8go.CompileOptions{
		CachedData: &v8go.CompilerCachedData{Bytes: data},
	}

	script, err := e.iso.CompileUnboundScript(placeholder, origin, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to compile cached %s: %w", originName(origin), err)
	}

	return &Script{unbound: script, ctx: e.ctx, rejected: opts.CachedData.Rejected}, nil
}

// CompileSource compiles source text without cached data.
func (e *V8) CompileSource(source, origin string) (*Script, error) {
	script, err := e.iso.CompileUnboundScript(source, origin, v8go.CompileOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", originName(origin), err)
	}
	return &Script{unbound: script, ctx: e.ctx}, nil
}

// RunScript compiles and runs source in the engine context.
func (e *V8) RunScript(source, origin string) (*v8go.Value, error) {
	return e.ctx.RunScript(source, origin)
}

func originName(origin string) string {
	if origin == "" {
		return "<anonymous>"
	}
	return origin
}

// Script is a compiled, unbound script.
type Script struct {
	unbound  *v8go.UnboundScript
	ctx      *v8go.Context
	rejected bool
}

// CacheRejected reports whether the engine refused the cached data the
// script was compiled against.
func (s *Script) CacheRejected() bool {
	return s.rejected
}

// Run binds the script to the engine context and runs it.
func (s *Script) Run() (*v8go.Value, error) {
	return s.unbound.Run(s.ctx)
}
