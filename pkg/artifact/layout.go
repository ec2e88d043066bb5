package artifact

import (
	"fmt"
	"strconv"
	"strings"
)

// Generation names a family of engine builds sharing one header layout.
type Generation string

const (
	// GenerationLegacy covers the 6.1 engine line.
	GenerationLegacy Generation = "legacy"
	// GenerationLTS covers engines 7.4 through 10.2.
	GenerationLTS Generation = "lts"
	// GenerationCurrent covers engines 10.7 through 13.x.
	GenerationCurrent Generation = "current"
)

// HeaderSize is the minimum number of bytes an artifact must have before any
// header field is read.
const HeaderSize = 24

// Range is a half-open byte range [Start, End) inside an artifact.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Layout describes where the header fields of one generation live.
type Layout struct {
	Generation Generation

	// Fingerprint lists the ranges copied from the reference blob when a
	// blob is patched for the running engine.
	Fingerprint []Range

	// SourceLength is the little-endian source length field.
	SourceLength Range

	// HeaderSize is the minimum blob size for this layout.
	HeaderSize int
}

var layouts = map[Generation]Layout{
	GenerationLegacy: {
		Generation:   GenerationLegacy,
		Fingerprint:  []Range{{16, 20}, {20, 24}},
		SourceLength: Range{12, 16},
		HeaderSize:   HeaderSize,
	},
	GenerationLTS: {
		Generation:   GenerationLTS,
		Fingerprint:  []Range{{12, 16}},
		SourceLength: Range{8, 12},
		HeaderSize:   HeaderSize,
	},
	GenerationCurrent: {
		Generation:   GenerationCurrent,
		Fingerprint:  []Range{{12, 16}, {16, 20}},
		SourceLength: Range{8, 12},
		HeaderSize:   HeaderSize,
	},
}

// LayoutFor returns the header layout of a generation.
func LayoutFor(g Generation) (Layout, error) {
	layout, ok := layouts[g]
	if !ok {
		return Layout{}, &UnsupportedEngineGenerationError{Generation: g}
	}
	return layout, nil
}

// EngineVersion is the major.minor part of an engine version string.
type EngineVersion struct {
	Major int
	Minor int
}

func (v EngineVersion) less(o EngineVersion) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v EngineVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseEngineVersion parses strings such as "11.1.277.13" or "v10.2".
// Only the major and minor components are significant.
func ParseEngineVersion(s string) (EngineVersion, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) < 2 {
		return EngineVersion{}, fmt.Errorf("malformed engine version %q", s)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return EngineVersion{}, fmt.Errorf("malformed engine version %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return EngineVersion{}, fmt.Errorf("malformed engine version %q: %w", s, err)
	}

	return EngineVersion{Major: major, Minor: minor}, nil
}

// generationSpan maps the half-open engine range [from, until) to a generation.
type generationSpan struct {
	from       EngineVersion
	until      EngineVersion
	generation Generation
}

// Engines between the spans (6.2 to 7.3, 10.3 to 10.6) and from 14.0 on have
// never been verified against a layout and are refused.
var generationSpans = []generationSpan{
	{from: EngineVersion{6, 1}, until: EngineVersion{6, 2}, generation: GenerationLegacy},
	{from: EngineVersion{7, 4}, until: EngineVersion{10, 3}, generation: GenerationLTS},
	{from: EngineVersion{10, 7}, until: EngineVersion{14, 0}, generation: GenerationCurrent},
}

// DetectGeneration resolves the generation of an engine version string.
func DetectGeneration(version string) (Generation, error) {
	v, err := ParseEngineVersion(version)
	if err != nil {
		return "", &UnsupportedEngineGenerationError{Version: version}
	}

	for _, span := range generationSpans {
		if !v.less(span.from) && v.less(span.until) {
			return span.generation, nil
		}
	}

	return "", &UnsupportedEngineGenerationError{Version: version}
}

// SupportsFlushFlag reports whether engines of this generation accept the
// --no-flush-bytecode flag.
func (g Generation) SupportsFlushFlag() bool {
	return g == GenerationLTS || g == GenerationCurrent
}
