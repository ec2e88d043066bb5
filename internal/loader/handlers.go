package loader

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dyluth/tsb/internal/engine"
	"github.com/dyluth/tsb/internal/store"
	"github.com/dyluth/tsb/pkg/artifact"
)

// Resolver maps the path being loaded to the key an artifact is stored under.
type Resolver func(path string) string

// ArtifactHandler loads precompiled artifacts.
type ArtifactHandler struct {
	Codec  *artifact.Codec
	Engine *engine.V8
	Store  store.Store

	// Resolver rewrites load paths into store keys. Nil means identity.
	Resolver Resolver
}

// NewArtifactHandler returns a handler reading artifacts from s.
func NewArtifactHandler(codec *artifact.Codec, eng *engine.V8, s store.Store) *ArtifactHandler {
	return &ArtifactHandler{Codec: codec, Engine: eng, Store: s}
}

func (h *ArtifactHandler) key(path string) string {
	if h.Resolver == nil {
		return path
	}
	return h.Resolver(path)
}

// Exists reports whether an artifact is stored for path.
func (h *ArtifactHandler) Exists(path string) bool {
	ok, err := h.Store.Exists(context.Background(), h.key(path))
	if err != nil {
		log.Printf("[WARN] Failed to probe artifact %s: %v", path, err)
		return false
	}
	return ok
}

// Resolve reads the artifact for path, patches it for the running engine
// and compiles it against its placeholder text.
func (h *ArtifactHandler) Resolve(path string) (Unit, error) {
	ctx := context.Background()
	key := h.key(path)

	data, err := h.Store.Get(ctx, key)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, &MissingArtifactFileError{Path: key}
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", key, err)
	}

	fixed, err := h.Codec.Fix(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	script, err := h.Engine.CompileCached(fixed.Placeholder, fixed.Data, path)
	if err != nil {
		return nil, err
	}
	if err := artifact.Assert(script); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	return &scriptUnit{script: script, path: path}, nil
}

// SourceHandler loads plain JavaScript files, so development builds and
// artifacts can share one module graph.
type SourceHandler struct {
	Engine *engine.V8
}

// NewSourceHandler returns a handler compiling source files on eng.
func NewSourceHandler(eng *engine.V8) *SourceHandler {
	return &SourceHandler{Engine: eng}
}

// Resolve reads and compiles the wrapped source at path.
func (h *SourceHandler) Resolve(path string) (Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ModuleNotFoundError{ID: path}
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	script, err := h.Engine.CompileSource(artifact.Wrap(stripShebang(string(data))), path)
	if err != nil {
		return nil, err
	}
	return &scriptUnit{script: script, path: path}, nil
}

func stripShebang(src string) string {
	if len(src) > 2 && src[0] == '#' && src[1] == '!' {
		for i := 2; i < len(src); i++ {
			if src[i] == '\n' {
				return "//" + src[2:]
			}
		}
		return ""
	}
	return src
}

// JSONHandler loads .json files as module.exports = JSON.parse(text).
type JSONHandler struct {
	Engine *engine.V8
}

// NewJSONHandler returns a JSON handler parsing on eng.
func NewJSONHandler(eng *engine.V8) *JSONHandler {
	return &JSONHandler{Engine: eng}
}

// Resolve reads the file at path.
func (h *JSONHandler) Resolve(path string) (Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ModuleNotFoundError{ID: path}
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &jsonUnit{engine: h.Engine, text: string(data), path: path}, nil
}

type jsonUnit struct {
	engine *engine.V8
	text   string
	path   string
}

func (u *jsonUnit) Run(b *Bindings) error {
	v, err := u.engine.ParseJSON(u.text)
	if err != nil {
		return fmt.Errorf("%s: %w", u.path, err)
	}
	return b.SetExports(v)
}

// scriptUnit runs a compiled module wrapper.
type scriptUnit struct {
	script *engine.Script
	path   string
}

func (u *scriptUnit) Run(b *Bindings) error {
	v, err := u.script.Run()
	if err != nil {
		return err
	}

	fn, err := v.AsFunction()
	if err != nil {
		return fmt.Errorf("%s did not evaluate to a module function: %w", u.path, err)
	}

	_, err = fn.Call(b.Exports, b.Args()...)
	return err
}
