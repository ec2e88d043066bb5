package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// DefaultConfigName is the file FindConfig looks for when no name is given.
const DefaultConfigName = "tsconfig.json"

// ErrConfigNotFound is returned when no project config exists between the
// base directory and the filesystem root.
var ErrConfigNotFound = errors.New("could not resolve a valid tsconfig file")

// TSConfig is the subset of tsconfig.json the compiler understands.
type TSConfig struct {
	Extends         string          `json:"extends,omitempty"`
	CompilerOptions CompilerOptions `json:"compilerOptions"`
	Files           []string        `json:"files,omitempty"`
	Include         []string        `json:"include,omitempty"`
	Exclude         []string        `json:"exclude,omitempty"`
	References      []Reference     `json:"references,omitempty"`
}

// Reference is a project reference entry.
type Reference struct {
	Path string `json:"path"`
}

// CompilerOptions holds the compilerOptions the front-end honours. Unknown
// options are accepted and ignored.
type CompilerOptions struct {
	OutDir                  string `json:"outDir,omitempty"`
	RootDir                 string `json:"rootDir,omitempty"`
	Target                  string `json:"target,omitempty"`
	Module                  string `json:"module,omitempty"`
	JSX                     string `json:"jsx,omitempty"`
	JSXFactory              string `json:"jsxFactory,omitempty"`
	JSXFragmentFactory      string `json:"jsxFragmentFactory,omitempty"`
	JSXImportSource         string `json:"jsxImportSource,omitempty"`
	AllowJS                 bool   `json:"allowJs,omitempty"`
	AlwaysStrict            bool   `json:"alwaysStrict,omitempty"`
	Strict                  bool   `json:"strict,omitempty"`
	SourceMap               bool   `json:"sourceMap,omitempty"`
	InlineSourceMap         bool   `json:"inlineSourceMap,omitempty"`
	RemoveComments          bool   `json:"removeComments,omitempty"`
	ExperimentalDecorators  bool   `json:"experimentalDecorators,omitempty"`
	UseDefineForClassFields *bool  `json:"useDefineForClassFields,omitempty"`
	NoEmit                  bool   `json:"noEmit,omitempty"`
}

// FindConfig walks from base up to the filesystem root and returns the first
// file called name. An empty name means tsconfig.json.
func FindConfig(base, name string) (string, error) {
	if name == "" {
		name = DefaultConfigName
	}

	dir, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", base, err)
	}

	for {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s found from %s", ErrConfigNotFound, name, base)
		}
		dir = parent
	}
}

// ParseConfig reads a tsconfig file. Comments and trailing commas are
// allowed. An extends chain is followed and merged the way tsc merges it:
// compiler options are overlaid field by field, and files, include and
// exclude are inherited only when the child leaves them unset. Paths taken
// from a base config are made absolute relative to that base.
func ParseConfig(path string) (*TSConfig, error) {
	return parseConfig(path, map[string]bool{})
}

func parseConfig(path string, seen map[string]bool) (*TSConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if seen[abs] {
		return nil, fmt.Errorf("circular extends chain at %s", abs)
	}
	seen[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, abs)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	data = jsonc.ToJSON(data)

	var head struct {
		Extends string `json:"extends"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", abs, err)
	}

	cfg := &TSConfig{}
	if head.Extends != "" {
		basePath, err := resolveExtends(filepath.Dir(abs), head.Extends)
		if err != nil {
			return nil, err
		}
		base, err := parseConfig(basePath, seen)
		if err != nil {
			return nil, fmt.Errorf("failed to load base config %s: %w", head.Extends, err)
		}
		base.absolutize(filepath.Dir(basePath))
		cfg = base
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", abs, err)
	}
	cfg.Extends = ""

	return cfg, nil
}

func resolveExtends(dir, ref string) (string, error) {
	var candidates []string
	if strings.HasPrefix(ref, ".") || filepath.IsAbs(ref) {
		p := ref
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, ref)
		}
		candidates = append(candidates, p, p+".json")
	} else {
		// package reference, searched in node_modules up the tree
		for d := dir; ; d = filepath.Dir(d) {
			p := filepath.Join(d, "node_modules", filepath.FromSlash(ref))
			candidates = append(candidates, p, p+".json", filepath.Join(p, DefaultConfigName))
			if filepath.Dir(d) == d {
				break
			}
		}
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: cannot resolve extends %q from %s", ErrConfigNotFound, ref, dir)
}

func (c *TSConfig) absolutize(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	c.CompilerOptions.OutDir = abs(c.CompilerOptions.OutDir)
	c.CompilerOptions.RootDir = abs(c.CompilerOptions.RootDir)
	for i := range c.Files {
		c.Files[i] = abs(c.Files[i])
	}
	for i := range c.Include {
		c.Include[i] = abs(c.Include[i])
	}
	for i := range c.Exclude {
		c.Exclude[i] = abs(c.Exclude[i])
	}
}
