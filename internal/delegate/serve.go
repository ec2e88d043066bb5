package delegate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/dyluth/tsb/internal/project"
)

// Handler answers one request on the child side. Failures belong in the
// response, not in a Go error.
type Handler interface {
	Handle(ctx context.Context, req *Request) *Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) *Response

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) *Response {
	return f(ctx, req)
}

// Serve is the child side of the protocol: it decodes arg, runs h and
// writes the encoded response to stdout. An error means no response was
// written and the child should exit non-zero.
func Serve(ctx context.Context, arg string, stdout io.Writer, h Handler) error {
	req, err := DecodeRequest(arg)
	if err != nil {
		return err
	}

	resp := h.Handle(ctx, req)
	if resp == nil {
		return fmt.Errorf("delegate handler returned no response for request %s", req.ID)
	}
	resp.ID = req.ID

	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	if _, err := stdout.Write(data); err != nil {
		return fmt.Errorf("failed to write delegate response: %w", err)
	}
	return nil
}

// CompilerHandler serves requests with an in-process compiler.
type CompilerHandler struct {
	Compiler *project.Compiler
}

// Handle implements Handler.
func (h *CompilerHandler) Handle(ctx context.Context, req *Request) *Response {
	opts, err := req.Options.Project()
	if err != nil {
		return &Response{Error: err.Error()}
	}

	switch req.Mode {
	case ModeNative:
		return h.native(ctx, req, opts)
	case ModeProject:
		return h.project(ctx, req, opts)
	}
	return &Response{Error: fmt.Sprintf("invalid delegate mode %q", req.Mode)}
}

func (h *CompilerHandler) native(ctx context.Context, req *Request, opts project.Options) *Response {
	var (
		blob []byte
		err  error
	)
	if req.Buffer != "" {
		path := req.Source
		if path == "" {
			path = "buffer.js"
		}
		blob, err = h.Compiler.Text(ctx, path, req.Buffer, opts)
	} else {
		blob, err = h.Compiler.File(ctx, req.Source, opts)
	}
	if err != nil {
		return failure(err)
	}
	return &Response{OK: true, Artifact: blob}
}

func (h *CompilerHandler) project(ctx context.Context, req *Request, opts project.Options) *Response {
	result, err := h.Compiler.Project(ctx, project.Source{Path: req.Source, Config: req.Config}, opts)
	if err != nil {
		resp := failure(err)
		if result != nil {
			resp.Diagnostics = result.Diagnostics
		}
		return resp
	}

	resp := &Response{OK: true, Diagnostics: result.Diagnostics, Files: result.Files}
	for _, key := range result.Cache.Keys() {
		resp.Entries = append(resp.Entries, Entry{Path: key, Data: result.Cache[key]})
	}
	log.Printf("[INFO] Delegate compiled %d entries: request_id=%s", len(resp.Entries), req.ID)
	return resp
}

func failure(err error) *Response {
	resp := &Response{Error: err.Error()}
	var compileErr *project.CompileError
	if errors.As(err, &compileErr) {
		resp.Diagnostics = compileErr.Diagnostics
	}
	return resp
}
