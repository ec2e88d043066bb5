package loader

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dyluth/tsb/internal/engine"
	"github.com/dyluth/tsb/internal/project"
	"github.com/dyluth/tsb/internal/store"
	"github.com/dyluth/tsb/pkg/artifact"
)

// DefaultTranspileCacheDir is where transpiled TypeScript is kept, relative
// to the working directory.
var DefaultTranspileCacheDir = filepath.Join(".cache", "ts-import")

// Transpiler converts one TypeScript file to CommonJS. project.Frontend
// implementations satisfy it.
type Transpiler interface {
	Transpile(path, text string, opts project.CompilerOptions) (string, []project.Diagnostic)
}

// TypeScriptHandler transpiles .ts files when they are required. Output is
// stored in Cache under the source digest, so an unchanged file is not
// transpiled twice.
type TypeScriptHandler struct {
	Engine     *engine.V8
	Transpiler Transpiler

	// Cache holds transpiled output. Nil disables caching.
	Cache    store.Store
	CacheDir string
}

// NewTypeScriptHandler returns a handler caching transpiled files under
// cacheDir on the local filesystem.
func NewTypeScriptHandler(eng *engine.V8, t Transpiler, cacheDir string) *TypeScriptHandler {
	return &TypeScriptHandler{Engine: eng, Transpiler: t, Cache: store.NewFileStore(""), CacheDir: cacheDir}
}

// Resolve transpiles path, or reuses its cached output, and compiles it.
// Error diagnostics fail the load with a *project.CompileError.
func (h *TypeScriptHandler) Resolve(path string) (Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ModuleNotFoundError{ID: path}
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	js, err := h.transpile(path, data)
	if err != nil {
		return nil, err
	}

	script, err := h.Engine.CompileSource(artifact.Wrap(js), path)
	if err != nil {
		return nil, err
	}
	return &scriptUnit{script: script, path: path}, nil
}

func (h *TypeScriptHandler) transpile(path string, data []byte) (string, error) {
	ctx := context.Background()
	key := filepath.Join(h.CacheDir, store.Digest(data)+".js")

	if h.Cache != nil {
		cached, err := h.Cache.Get(ctx, key)
		if err == nil {
			return string(cached), nil
		}
		if !store.IsNotFound(err) {
			log.Printf("[WARN] Ignoring transpile cache for %s: %v", path, err)
		}
	}

	out, diags := h.Transpiler.Transpile(path, stripShebang(string(data)), project.CompilerOptions{})
	if project.CountErrors(diags) > 0 {
		return "", &project.CompileError{Diagnostics: diags}
	}

	if h.Cache != nil {
		if err := h.Cache.Put(ctx, key, []byte(out)); err != nil {
			log.Printf("[WARN] Failed to cache transpiled %s: %v", path, err)
		}
	}
	return out, nil
}
