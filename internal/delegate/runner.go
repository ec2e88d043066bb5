package delegate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// maxResponseSize bounds what a child may write to stdout.
const maxResponseSize = 512 << 20

// Runner starts one child for arg, copies its output to stdout and stderr
// and blocks until it exits. A non-zero exit is reported as *ExitError;
// any other error means the child could not be run.
type Runner interface {
	Run(ctx context.Context, arg string, stdout, stderr io.Writer) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, arg string, stdout, stderr io.Writer) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, arg string, stdout, stderr io.Writer) error {
	return f(ctx, arg, stdout, stderr)
}

// ExecRunner runs a tsb binary as a local subprocess.
type ExecRunner struct {
	// Path is the binary. Empty means the running executable.
	Path string

	// Args precede the request argument. Nil means ["delegate"].
	Args []string

	// Env is appended to the parent's environment.
	Env []string

	// Dir is the child's working directory. Empty means the parent's.
	Dir string
}

// Run implements Runner. Cancelling ctx kills the child.
func (r *ExecRunner) Run(ctx context.Context, arg string, stdout, stderr io.Writer) error {
	path := r.Path
	if path == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate tsb executable: %w", err)
		}
		path = self
	}

	args := r.Args
	if args == nil {
		args = []string{"delegate"}
	}
	args = append(append([]string{}, args...), arg)

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	out := &limitedWriter{w: stdout, limit: maxResponseSize}
	cmd.Stdout = out
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start delegate %s: %w", path, err)
	}

	err := cmd.Wait()
	if out.exceeded {
		return fmt.Errorf("delegate output exceeded %d bytes", maxResponseSize)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("delegate failed: %w", err)
	}
	return nil
}

// limitedWriter wraps a writer and enforces a size limit.
// Once the limit is reached, further writes are discarded.
type limitedWriter struct {
	w        io.Writer
	limit    int
	written  int
	exceeded bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		lw.exceeded = len(p) > 0 || lw.exceeded
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
		lw.exceeded = true
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err
}
