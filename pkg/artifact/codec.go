package artifact

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
)

// Version is written into the reference script compiled by Fix.
const Version = "1.0.0"

// MaxSourceLength bounds the decoded source length. Anything larger is
// treated as a corrupted header instead of allocating the placeholder.
const MaxSourceLength = 1 << 30

// filler is the zero-width space used to pad placeholder text.
const filler = "\u200b"

// Module wrapper applied by Compile when the unit is a module. The parameter
// list matches the bindings the loader passes in.
const (
	ModulePreamble  = "(function (exports, require, module, __filename, __dirname, process, global) { "
	ModulePostamble = "\n});"
)

// Engine is the host engine boundary. It produces code-cache blobs and
// reports its build version so the header layout can be resolved.
type Engine interface {
	// Version returns the engine version string, e.g. "11.1.277.13".
	Version() string

	// CreateCache compiles source and returns the engine's serialized
	// code cache for it.
	CreateCache(source, origin string) ([]byte, error)
}

// Script is an engine script compiled against cached data.
type Script interface {
	// CacheRejected reports whether the engine refused the cached data.
	CacheRejected() bool
}

// Fixed is a blob patched for the running engine together with the
// placeholder text it must be consumed against.
type Fixed struct {
	Data         []byte
	Placeholder  string
	SourceLength uint32
}

// Option configures a Codec.
type Option func(*Codec)

// WithGeneration skips the engine version probe and uses g.
func WithGeneration(g Generation) Option {
	return func(c *Codec) {
		c.generation = g
	}
}

// Codec compiles and patches artifacts for one engine.
// A Codec is safe for sequential use by a single goroutine, matching the
// engine it wraps.
type Codec struct {
	engine     Engine
	generation Generation
	layout     Layout

	refOnce sync.Once
	ref     []byte
	refErr  error
}

// NewCodec resolves the header layout of engine and returns a codec for it.
// Returns UnsupportedEngineGenerationError when the engine version is not in
// the generation table and no override was given.
func NewCodec(engine Engine, opts ...Option) (*Codec, error) {
	c := &Codec{engine: engine}
	for _, opt := range opts {
		opt(c)
	}

	if c.generation == "" {
		g, err := DetectGeneration(engine.Version())
		if err != nil {
			return nil, err
		}
		c.generation = g
	}

	layout, err := LayoutFor(c.generation)
	if err != nil {
		return nil, err
	}
	c.layout = layout

	return c, nil
}

// Layout returns the header layout the codec patches against.
func (c *Codec) Layout() Layout {
	return c.layout
}

// Generation returns the resolved engine generation.
func (c *Codec) Generation() Generation {
	return c.generation
}

// Compile asks the engine for a code-cache blob of text. When wrap is true
// the text is first wrapped in the module preamble and postamble.
func (c *Codec) Compile(text string, wrap bool) ([]byte, error) {
	if wrap {
		text = Wrap(text)
	}

	blob, err := c.engine.CreateCache(text, "")
	if err != nil {
		return nil, fmt.Errorf("failed to produce cached data: %w", err)
	}

	return blob, nil
}

// Wrap surrounds text with the module preamble and postamble.
func Wrap(text string) string {
	return ModulePreamble + text + ModulePostamble
}

// Fix returns a copy of blob with its fingerprint replaced by the running
// engine's fingerprint, plus the placeholder text needed to consume it.
// Fix never mutates blob, and applying it to its own output is a no-op on
// the bytes.
func (c *Codec) Fix(blob []byte) (*Fixed, error) {
	if len(blob) < c.layout.HeaderSize {
		return nil, fmt.Errorf("%w: artifact is %d bytes, header needs %d",
			ErrInvalidArtifact, len(blob), c.layout.HeaderSize)
	}

	ref, err := c.reference()
	if err != nil {
		return nil, err
	}

	data := make([]byte, len(blob))
	copy(data, blob)
	for _, r := range c.layout.Fingerprint {
		copy(data[r.Start:r.End], ref[r.Start:r.End])
	}

	n, err := SourceLength(data, c.layout)
	if err != nil {
		return nil, err
	}

	return &Fixed{
		Data:         data,
		Placeholder:  Placeholder(n),
		SourceLength: n,
	}, nil
}

// reference compiles the trivial reference script once per codec.
func (c *Codec) reference() ([]byte, error) {
	c.refOnce.Do(func() {
		ref, err := c.engine.CreateCache(fmt.Sprintf("%q", "tsb-"+Version), "")
		if err != nil {
			c.refErr = fmt.Errorf("failed to compile reference script: %w", err)
			return
		}
		if len(ref) < c.layout.HeaderSize {
			c.refErr = fmt.Errorf("reference artifact is %d bytes, header needs %d", len(ref), c.layout.HeaderSize)
			return
		}
		c.ref = ref
	})
	return c.ref, c.refErr
}

// SourceLength decodes the little-endian source length field of blob.
func SourceLength(blob []byte, layout Layout) (uint32, error) {
	r := layout.SourceLength
	if len(blob) < layout.HeaderSize || len(blob) < r.End {
		return 0, fmt.Errorf("%w: artifact is %d bytes, header needs %d",
			ErrInvalidArtifact, len(blob), layout.HeaderSize)
	}

	n := binary.LittleEndian.Uint32(blob[r.Start:r.End])
	if n > MaxSourceLength {
		return 0, fmt.Errorf("%w: source length %d exceeds %d", ErrInvalidArtifact, n, MaxSourceLength)
	}

	return n, nil
}

// Placeholder returns a quoted string literal whose length in characters is
// n, or the empty string when n <= 1.
func Placeholder(n uint32) string {
	if n <= 1 {
		return ""
	}

	var b strings.Builder
	b.Grow(int(n-2)*len(filler) + 2)
	b.WriteByte('"')
	b.WriteString(strings.Repeat(filler, int(n-2)))
	b.WriteByte('"')
	return b.String()
}

// Assert fails with ErrInvalidArtifact when the engine rejected the cached
// data backing script.
func Assert(script Script) error {
	if script == nil || script.CacheRejected() {
		return fmt.Errorf("%w: rejected by the running engine", ErrInvalidArtifact)
	}
	return nil
}
