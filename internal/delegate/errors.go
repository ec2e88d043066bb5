package delegate

import (
	"errors"
	"fmt"

	"github.com/dyluth/tsb/internal/project"
)

// ErrCancelled is returned when the caller's context ends before the child
// exits. The child is killed.
var ErrCancelled = errors.New("delegate cancelled")

// ExitError reports a child that exited with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("delegate exited with code %d", e.Code)
}

// RemoteError is a failure reported by the child in its response.
type RemoteError struct {
	Message     string
	Diagnostics []project.Diagnostic
}

func (e *RemoteError) Error() string {
	return "delegate: " + e.Message
}

// Unwrap exposes error diagnostics as a *project.CompileError, so callers
// handle remote and in-process compile failures the same way.
func (e *RemoteError) Unwrap() error {
	if project.CountErrors(e.Diagnostics) == 0 {
		return nil
	}
	return &project.CompileError{Diagnostics: e.Diagnostics}
}
