package engine

import (
	"fmt"
	"io"

	"rogchap.com/v8go"
)

func (e *V8) installConsole() error {
	console, err := e.NewObject()
	if err != nil {
		return err
	}

	methods := map[string]io.Writer{
		"log":   e.stdout,
		"info":  e.stdout,
		"debug": e.stdout,
		"warn":  e.stderr,
		"error": e.stderr,
	}
	for name, w := range methods {
		if err := console.Set(name, e.consoleMethod(w)); err != nil {
			return fmt.Errorf("console.%s: %w", name, err)
		}
	}

	return e.ctx.Global().Set("console", console)
}

func (e *V8) consoleMethod(w io.Writer) *v8go.Function {
	return e.NewFunction(func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		fmt.Fprintln(w, e.describeArgs(info.Args()))
		return nil
	})
}
