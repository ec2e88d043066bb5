// Package transform holds text transforms applied to emitted JavaScript
// before it is compiled into an artifact.
//
// Transforms are plain functions. Because functions cannot cross a process
// boundary, each built-in transform is also registered under a name and
// pipelines can be rebuilt from a list of names on the other side.
package transform

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Func transforms one emitted file.
type Func func(text string) string

// Pipeline is an ordered list of transforms.
type Pipeline []Func

// Apply runs every transform in order.
func (p Pipeline) Apply(text string) string {
	for _, fn := range p {
		text = fn(text)
	}
	return text
}

var (
	mu       sync.RWMutex
	registry = map[string]Func{}
)

// Register makes fn available under name. Registering a name twice panics,
// as with database/sql drivers.
func Register(name string, fn Func) {
	mu.Lock()
	defer mu.Unlock()

	if fn == nil {
		panic("transform: Register func is nil")
	}
	if _, dup := registry[name]; dup {
		panic("transform: Register called twice for " + name)
	}
	registry[name] = fn
}

// Lookup returns the transform registered under name.
func Lookup(name string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered transform names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds a pipeline from names, in order.
func Resolve(names []string) (Pipeline, error) {
	p := make(Pipeline, 0, len(names))
	for _, name := range names {
		fn, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown transform %q (available: %s)", name, strings.Join(Names(), ", "))
		}
		p = append(p, fn)
	}
	return p, nil
}
