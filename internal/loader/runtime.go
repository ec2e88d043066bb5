package loader

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dyluth/tsb/internal/engine"
	"rogchap.com/v8go"
)

// Runtime is a CommonJS module system running on one engine.
type Runtime struct {
	engine   *engine.V8
	registry *Registry

	modules map[string]*module
	main    *module

	process      *v8go.Object
	requireCache *v8go.Object
	extensions   *v8go.Value

	// pending holds the Go error behind the most recent exception thrown
	// by require, so callers get a typed error rather than a JS message.
	pending error
}

type module struct {
	path   string
	obj    *v8go.Object
	loaded bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	argv []string
	env  map[string]string
}

// WithArgv sets process.argv.
func WithArgv(argv ...string) RuntimeOption {
	return func(o *runtimeOptions) { o.argv = argv }
}

// WithEnv sets process.env. By default the host environment is exposed.
func WithEnv(env map[string]string) RuntimeOption {
	return func(o *runtimeOptions) { o.env = env }
}

// NewRuntime creates a module system over eng resolving through reg.
// require.extensions reflects the extensions registered at this point.
func NewRuntime(eng *engine.V8, reg *Registry, opts ...RuntimeOption) (*Runtime, error) {
	o := runtimeOptions{argv: os.Args, env: hostEnv()}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{
		engine:   eng,
		registry: reg,
		modules:  map[string]*module{},
	}

	var err error
	if r.process, err = r.newProcess(o); err != nil {
		return nil, fmt.Errorf("failed to create process object: %w", err)
	}
	if r.requireCache, err = eng.NewObject(); err != nil {
		return nil, fmt.Errorf("failed to create require cache: %w", err)
	}
	if r.extensions, err = eng.FromGo(reg.Extensions()); err != nil {
		return nil, fmt.Errorf("failed to expose extensions: %w", err)
	}

	global := eng.Global()
	if err := global.Set("global", global); err != nil {
		return nil, err
	}
	if err := global.Set("process", r.process); err != nil {
		return nil, err
	}

	return r, nil
}

func hostEnv() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func (r *Runtime) newProcess(o runtimeOptions) (*v8go.Object, error) {
	wd, _ := os.Getwd()
	v, err := r.engine.FromGo(map[string]interface{}{
		"argv":     o.argv,
		"env":      o.env,
		"platform": runtime.GOOS,
		"arch":     runtime.GOARCH,
		"pid":      os.Getpid(),
		"versions": map[string]string{"v8": r.engine.Version()},
	})
	if err != nil {
		return nil, err
	}
	process, err := v.AsObject()
	if err != nil {
		return nil, err
	}

	cwd := r.engine.NewFunction(func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		return r.engine.NewString(wd)
	})
	if err := process.Set("cwd", cwd); err != nil {
		return nil, err
	}
	return process, nil
}

// Main loads path as the entry module.
func (r *Runtime) Main(path string) (*v8go.Value, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return r.Require(abs, "")
}

// Require loads id relative to the directory fromDir and returns its
// exports. Modules are cached by absolute path; a cycle sees the partial
// exports of the module still loading.
func (r *Runtime) Require(id, fromDir string) (*v8go.Value, error) {
	path, handler, err := r.Resolve(id, fromDir)
	if err != nil {
		return nil, err
	}

	if m, ok := r.modules[path]; ok {
		return m.obj.Get("exports")
	}

	m, err := r.newModule(path)
	if err != nil {
		return nil, err
	}
	r.modules[path] = m
	if r.main == nil {
		r.main = m
	}
	if err := r.requireCache.Set(path, m.obj); err != nil {
		return nil, err
	}

	if err := r.load(m, handler); err != nil {
		delete(r.modules, path)
		if r.main == m {
			r.main = nil
		}
		if !r.requireCache.Delete(path) {
			log.Printf("[DEBUG] %s was not in require.cache", path)
		}
		return nil, err
	}

	m.loaded = true
	if err := m.obj.Set("loaded", true); err != nil {
		return nil, err
	}
	return m.obj.Get("exports")
}

func (r *Runtime) load(m *module, handler Handler) error {
	unit, err := handler.Resolve(m.path)
	if err != nil {
		return err
	}

	b, err := r.bindings(m)
	if err != nil {
		return err
	}

	r.pending = nil
	if err := unit.Run(b); err != nil {
		if inner := r.pending; inner != nil && strings.Contains(err.Error(), inner.Error()) {
			// an inner require failed and the module did not catch it
			r.pending = nil
			return inner
		}
		return fmt.Errorf("failed to run %s: %w", m.path, err)
	}
	return nil
}

func (r *Runtime) newModule(path string) (*module, error) {
	obj, err := r.engine.NewObject()
	if err != nil {
		return nil, err
	}
	exports, err := r.engine.NewObject()
	if err != nil {
		return nil, err
	}

	for k, v := range map[string]interface{}{
		"id":       path,
		"filename": path,
		"path":     filepath.Dir(path),
		"loaded":   false,
		"exports":  exports,
	} {
		if err := obj.Set(k, v); err != nil {
			return nil, err
		}
	}

	return &module{path: path, obj: obj}, nil
}

func (r *Runtime) bindings(m *module) (*Bindings, error) {
	exportsValue, err := m.obj.Get("exports")
	if err != nil {
		return nil, err
	}
	exports, err := exportsValue.AsObject()
	if err != nil {
		return nil, err
	}

	require, err := r.requireFunction(filepath.Dir(m.path))
	if err != nil {
		return nil, err
	}
	if err := m.obj.Set("require", require); err != nil {
		return nil, err
	}

	return &Bindings{
		Exports:  exports,
		Require:  require,
		Module:   m.obj,
		Filename: r.engine.NewString(m.path),
		Dirname:  r.engine.NewString(filepath.Dir(m.path)),
		Process:  r.process,
		Global:   r.engine.Global(),
		Path:     m.path,
	}, nil
}

func (r *Runtime) requireFunction(dir string) (*v8go.Function, error) {
	eng := r.engine

	require := eng.NewFunction(func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) == 0 || !args[0].IsString() {
			return eng.Throw(errors.New("require: id must be a string"))
		}

		v, err := r.Require(args[0].String(), dir)
		if err != nil {
			r.pending = err
			return eng.Throw(err)
		}
		return v
	})

	resolve := eng.NewFunction(func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) == 0 {
			return eng.Throw(errors.New("require.resolve: id must be a string"))
		}
		path, _, err := r.Resolve(args[0].String(), dir)
		if err != nil {
			return eng.Throw(err)
		}
		return eng.NewString(path)
	})

	props := map[string]interface{}{
		"resolve":    resolve,
		"cache":      r.requireCache,
		"extensions": r.extensions,
	}
	if r.main != nil {
		props["main"] = r.main.obj
	}
	obj, err := require.AsObject()
	if err != nil {
		return nil, err
	}
	for k, v := range props {
		if err := obj.Set(k, v); err != nil {
			return nil, err
		}
	}
	return require, nil
}

// Resolve maps id to an absolute path and the handler that loads it. Ids
// must be relative ("./", "../") or absolute. A path ending in a
// registered extension resolves directly; otherwise each extension is
// tried in registration order, then index files inside a directory.
func (r *Runtime) Resolve(id, fromDir string) (string, Handler, error) {
	if !isPathID(id) {
		return "", nil, &ModuleNotFoundError{ID: id, From: fromDir}
	}

	p := id
	if !filepath.IsAbs(p) {
		base := fromDir
		if base == "" {
			base, _ = os.Getwd()
		}
		p = filepath.Join(base, p)
	}
	p = filepath.Clean(p)

	if _, h, ok := r.registry.match(p); ok {
		return p, h, nil
	}

	for _, ext := range r.registry.Extensions() {
		if h, ok := r.registry.Lookup(ext); ok && exists(h, p+ext) {
			return p + ext, h, nil
		}
	}
	for _, ext := range r.registry.Extensions() {
		candidate := filepath.Join(p, "index"+ext)
		if h, ok := r.registry.Lookup(ext); ok && exists(h, candidate) {
			return candidate, h, nil
		}
	}

	return "", nil, &ModuleNotFoundError{ID: id, From: fromDir}
}

func isPathID(id string) bool {
	return id == "." || id == ".." ||
		strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../") ||
		filepath.IsAbs(id)
}

func exists(h Handler, path string) bool {
	if l, ok := h.(Locator); ok {
		return l.Exists(path)
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
