package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateExtension is wrapped by DuplicateExtensionError.
	ErrDuplicateExtension = errors.New("extension already registered")

	// ErrMissingArtifactFile is wrapped by MissingArtifactFileError.
	ErrMissingArtifactFile = errors.New("missing artifact file")

	// ErrModuleNotFound is wrapped by ModuleNotFoundError.
	ErrModuleNotFound = errors.New("cannot find module")
)

// DuplicateExtensionError is returned when a second handler is registered
// for an extension. The first handler stays active.
type DuplicateExtensionError struct {
	Extension string
}

func (e *DuplicateExtensionError) Error() string {
	return fmt.Sprintf("%s: a handler for %q is already registered", ErrDuplicateExtension, e.Extension)
}

func (e *DuplicateExtensionError) Unwrap() error {
	return ErrDuplicateExtension
}

// MissingArtifactFileError is returned when no artifact exists at the
// resolved path.
type MissingArtifactFileError struct {
	Path string
}

func (e *MissingArtifactFileError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingArtifactFile, e.Path)
}

func (e *MissingArtifactFileError) Unwrap() error {
	return ErrMissingArtifactFile
}

// ModuleNotFoundError is returned when an id resolves to no registered file.
type ModuleNotFoundError struct {
	ID   string
	From string
}

func (e *ModuleNotFoundError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("%s '%s'", ErrModuleNotFound, e.ID)
	}
	return fmt.Sprintf("%s '%s' from %s", ErrModuleNotFound, e.ID, e.From)
}

func (e *ModuleNotFoundError) Unwrap() error {
	return ErrModuleNotFound
}
