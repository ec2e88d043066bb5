package delegate

import (
	"encoding/json"
	"fmt"

	"github.com/dyluth/tsb/internal/project"
	"github.com/dyluth/tsb/internal/transform"
	"github.com/fxamacker/cbor/v2"
)

// Mode selects what a delegate child compiles.
type Mode string

const (
	// ModeNative compiles one script to one artifact.
	ModeNative Mode = "native"

	// ModeProject compiles a whole project to a cache.
	ModeProject Mode = "project"
)

// Request is the child's only input, passed as its last argument.
type Request struct {
	ID   string `json:"id"`
	Mode Mode   `json:"mode"`

	// Source is the script path (native) or the tsconfig path (project).
	Source string `json:"source,omitempty"`

	// Buffer holds script text to compile instead of reading Source.
	Buffer string `json:"buffer,omitempty"`

	// Config is an in-memory tsconfig, used instead of Source.
	Config *project.TSConfig `json:"config,omitempty"`

	Options Options `json:"options"`
}

// Options is the serializable form of project.Options. Transforms are
// named and resolved through the transform registry on the child side.
type Options struct {
	Pipeline []string `json:"pipeline,omitempty"`
	OutDir   string   `json:"outDir,omitempty"`
	RootPath string   `json:"rootPath,omitempty"`
	Codegen  *bool    `json:"codegen,omitempty"`
	Ignore   []string `json:"ignore,omitempty"`
}

// Project resolves the pipeline names and returns compiler options.
func (o Options) Project() (project.Options, error) {
	pipeline, err := transform.Resolve(o.Pipeline)
	if err != nil {
		return project.Options{}, err
	}
	return project.Options{
		Pipeline: pipeline,
		OutDir:   o.OutDir,
		RootPath: o.RootPath,
		Codegen:  o.Codegen,
		Ignore:   o.Ignore,
	}, nil
}

// Entry is one cache entry of a project response.
type Entry struct {
	Path string `cbor:"path"`
	Data []byte `cbor:"data"`
}

// Response is what the child writes to stdout.
type Response struct {
	ID          string               `cbor:"id"`
	OK          bool                 `cbor:"ok"`
	Error       string               `cbor:"error,omitempty"`
	Artifact    []byte               `cbor:"artifact,omitempty"`
	Entries     []Entry              `cbor:"entries,omitempty"`
	Diagnostics []project.Diagnostic `cbor:"diagnostics,omitempty"`
	Files       int                  `cbor:"files,omitempty"`
}

// Cache rebuilds a project cache from the response entries.
func (r *Response) Cache() project.Cache {
	cache := make(project.Cache, len(r.Entries))
	for _, e := range r.Entries {
		cache[e.Path] = e.Data
	}
	return cache
}

// Deterministic encoding keeps identical responses byte-identical.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("delegate: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("delegate: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeRequest returns the JSON argument for a child.
func EncodeRequest(req *Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode delegate request: %w", err)
	}
	return string(data), nil
}

// DecodeRequest parses a child's argument.
func DecodeRequest(arg string) (*Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(arg), &req); err != nil {
		return nil, fmt.Errorf("failed to decode delegate request: %w", err)
	}
	switch req.Mode {
	case ModeNative, ModeProject:
	default:
		return nil, fmt.Errorf("invalid delegate mode %q (expected %q or %q)", req.Mode, ModeNative, ModeProject)
	}
	if req.ID == "" {
		return nil, fmt.Errorf("delegate request has no id")
	}
	return &req, nil
}

// EncodeResponse serializes a response for stdout.
func EncodeResponse(resp *Response) ([]byte, error) {
	data, err := encMode.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delegate response: %w", err)
	}
	return data, nil
}

// DecodeResponse parses a child's stdout.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty delegate response")
	}
	var resp Response
	if err := decMode.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode delegate response: %w", err)
	}
	return &resp, nil
}
