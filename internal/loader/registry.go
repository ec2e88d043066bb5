// Package loader plugs artifact loading into a CommonJS-style module system.
//
// A Registry maps file extensions to Handlers. A Runtime resolves require
// calls against the registry, so a module compiled to an artifact loads
// exactly like its source would. Registries are plain values owned by the
// embedding application; nothing here is global.
package loader

import (
	"strings"
	"sync"
)

// Handler turns a resolved file path into a runnable unit.
type Handler interface {
	Resolve(path string) (Unit, error)
}

// Unit is a loaded module body. Run executes it against the module bindings,
// filling b.Module's exports.
type Unit interface {
	Run(b *Bindings) error
}

// Locator is implemented by handlers whose files do not live on the local
// filesystem. The runtime uses it to probe candidate paths.
type Locator interface {
	Exists(path string) bool
}

// Registry maps extensions to handlers. Extensions are kept in registration
// order, which is also the order the runtime tries them in.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register installs h for ext. Registering an extension twice fails with
// *DuplicateExtensionError and leaves the first handler in place.
func (r *Registry) Register(ext string, h Handler) error {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[ext]; exists {
		return &DuplicateExtensionError{Extension: ext}
	}
	r.handlers[ext] = h
	r.order = append(r.order, ext)
	return nil
}

// Lookup returns the handler registered for ext.
func (r *Registry) Lookup(ext string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[ext]
	return h, ok
}

// Extensions returns the registered extensions in registration order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// match returns the longest registered extension path ends with.
func (r *Registry) match(path string) (string, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	for _, ext := range r.order {
		if strings.HasSuffix(path, ext) && len(ext) > len(best) {
			best = ext
		}
	}
	if best == "" {
		return "", nil, false
	}
	return best, r.handlers[best], true
}
