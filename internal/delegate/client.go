package delegate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dyluth/tsb/internal/project"
	"github.com/google/uuid"
)

// Script is the input of a native compilation. Buffer, when set, is
// compiled instead of the contents of FilePath.
type Script struct {
	FilePath string
	Buffer   string
}

// Client compiles in a child process, one child per request.
type Client struct {
	Runner Runner

	// Stderr receives the child's stderr. Nil means os.Stderr.
	Stderr io.Writer
}

// NewClient returns a client that starts children with r.
func NewClient(r Runner) *Client {
	return &Client{Runner: r}
}

// CompileNativeFile compiles one script in the child and returns its
// artifact. If the child exits non-zero without a usable response the
// artifact is nil and so is the error.
func (c *Client) CompileNativeFile(ctx context.Context, script Script, opts Options) ([]byte, error) {
	resp, err := c.roundTrip(ctx, &Request{
		Mode:    ModeNative,
		Source:  script.FilePath,
		Buffer:  script.Buffer,
		Options: opts,
	})
	if err != nil || resp == nil {
		return nil, err
	}
	return resp.Artifact, nil
}

// CompileProject compiles a project in the child. If the child exits
// non-zero without a usable response the result has an empty cache and
// the error is nil. Error diagnostics come back as a *RemoteError that
// unwraps to *project.CompileError.
func (c *Client) CompileProject(ctx context.Context, source project.Source, opts Options) (*project.Result, error) {
	resp, err := c.roundTrip(ctx, &Request{
		Mode:    ModeProject,
		Source:  source.Path,
		Config:  source.Config,
		Options: opts,
	})
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) {
			return &project.Result{Cache: project.Cache{}, Diagnostics: remote.Diagnostics}, err
		}
		return nil, err
	}
	if resp == nil {
		return &project.Result{Cache: project.Cache{}}, nil
	}
	return &project.Result{
		Cache:       resp.Cache(),
		Diagnostics: resp.Diagnostics,
		Files:       resp.Files,
	}, nil
}

// roundTrip runs one child. A nil response with a nil error means the
// child failed without answering.
func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	req.ID = uuid.New().String()
	arg, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	stderr := c.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	log.Printf("[DEBUG] Starting %s delegate: request_id=%s source=%s", req.Mode, req.ID, req.Source)

	var stdout bytes.Buffer
	runErr := c.Runner.Run(ctx, arg, &stdout, stderr)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	var exitErr *ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return nil, fmt.Errorf("failed to run delegate: %w", runErr)
	}

	resp, decodeErr := DecodeResponse(stdout.Bytes())
	if exitErr != nil {
		if decodeErr != nil || resp.ID != req.ID {
			log.Printf("[WARN] Delegate exited with code %d without a response: request_id=%s", exitErr.Code, req.ID)
			return nil, nil
		}
	} else {
		if decodeErr != nil {
			return nil, decodeErr
		}
		if resp.ID != req.ID {
			return nil, fmt.Errorf("delegate response id %q does not match request %q", resp.ID, req.ID)
		}
	}

	if !resp.OK {
		return nil, &RemoteError{Message: resp.Error, Diagnostics: resp.Diagnostics}
	}
	return resp, nil
}
