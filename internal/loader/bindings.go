package loader

import (
	"rogchap.com/v8go"
)

// Bindings are the values a module body is invoked with, in the order of
// the module wrapper's parameter list.
type Bindings struct {
	Exports  *v8go.Object
	Require  *v8go.Function
	Module   *v8go.Object
	Filename *v8go.Value
	Dirname  *v8go.Value
	Process  *v8go.Object
	Global   *v8go.Object

	// Path is the absolute path of the module being loaded.
	Path string
}

// Args returns the bindings as call arguments.
func (b *Bindings) Args() []v8go.Valuer {
	return []v8go.Valuer{b.Exports, b.Require, b.Module, b.Filename, b.Dirname, b.Process, b.Global}
}

// SetExports replaces module.exports.
func (b *Bindings) SetExports(v v8go.Valuer) error {
	return b.Module.Set("exports", v)
}
