package artifact

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the codec.
var (
	// ErrInvalidArtifact is returned when a blob is too short to carry a
	// header, decodes to an impossible source length, or is rejected by the
	// engine after patching. Callers may fall back to compiling from source.
	ErrInvalidArtifact = errors.New("invalid or incompatible cached data")

	// ErrUnsupportedEngineGeneration is wrapped by
	// UnsupportedEngineGenerationError.
	ErrUnsupportedEngineGeneration = errors.New("unsupported engine generation")
)

// UnsupportedEngineGenerationError reports an engine build whose artifact
// header layout is not in the generation table.
type UnsupportedEngineGenerationError struct {
	Version    string
	Generation Generation
}

func (e *UnsupportedEngineGenerationError) Error() string {
	if e.Generation != "" {
		return fmt.Sprintf("unknown artifact generation %q", e.Generation)
	}
	return fmt.Sprintf("engine version %q has no known artifact layout", e.Version)
}

func (e *UnsupportedEngineGenerationError) Unwrap() error {
	return ErrUnsupportedEngineGeneration
}
