package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"rogchap.com/v8go"
)

// NewObject returns an empty plain object.
func (e *V8) NewObject() (*v8go.Object, error) {
	return v8go.NewObjectTemplate(e.iso).NewInstance(e.ctx)
}

// NewFunction wraps a Go callback as a JavaScript function.
func (e *V8) NewFunction(cb v8go.FunctionCallback) *v8go.Function {
	return v8go.NewFunctionTemplate(e.iso, cb).GetFunction(e.ctx)
}

// NewString returns a string value.
func (e *V8) NewString(s string) *v8go.Value {
	v, err := v8go.NewValue(e.iso, s)
	if err != nil {
		// strings always convert
		panic(err)
	}
	return v
}

// Undefined returns the undefined value.
func (e *V8) Undefined() *v8go.Value {
	return v8go.Undefined(e.iso)
}

// FromGo converts any JSON-marshalable Go value into a JavaScript value.
func (e *V8) FromGo(v interface{}) (*v8go.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return v8go.JSONParse(e.ctx, string(b))
}

// ParseJSON parses text with the engine's JSON.parse.
func (e *V8) ParseJSON(text string) (*v8go.Value, error) {
	return v8go.JSONParse(e.ctx, text)
}

// Throw schedules a JavaScript Error carrying err's message and returns the
// value a callback should return.
func (e *V8) Throw(err error) *v8go.Value {
	msg := e.NewString(err.Error())

	ctor, cerr := e.ctx.Global().Get("Error")
	if cerr == nil {
		if fn, ferr := ctor.AsFunction(); ferr == nil {
			if exc, xerr := fn.Call(v8go.Undefined(e.iso), msg); xerr == nil {
				return e.iso.ThrowException(exc)
			}
		}
	}
	return e.iso.ThrowException(msg)
}

// Describe renders a value the way console.log prints it: strings verbatim,
// objects as JSON when they can be stringified.
func (e *V8) Describe(v *v8go.Value) string {
	if v == nil {
		return "undefined"
	}
	if v.IsString() || v.IsFunction() || v.IsNativeError() || v.IsSymbol() {
		return v.String()
	}
	if v.IsObject() {
		if s, err := v8go.JSONStringify(e.ctx, v); err == nil && s != "" {
			return s
		}
	}
	return v.String()
}

func (e *V8) describeArgs(args []*v8go.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = e.Describe(arg)
	}
	return strings.Join(parts, " ")
}
