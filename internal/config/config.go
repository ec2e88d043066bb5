package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/tsb/internal/transform"
	"github.com/dyluth/tsb/pkg/artifact"
	"gopkg.in/yaml.v3"
)

// FileName is the config file searched for by Find.
const FileName = "tsb.yml"

// DefaultExt is the artifact extension used when none is configured.
const DefaultExt = ".tsb"

// Compile modes
const (
	ModeProd = "prod"
	ModeDev  = "dev"
)

// ErrNotFound is returned by Find when no tsb.yml exists up to the root.
var ErrNotFound = errors.New("no " + FileName + " found")

// Config represents the top-level tsb.yml configuration
type Config struct {
	Version   string          `yaml:"version"`
	Project   string          `yaml:"project,omitempty"` // tsconfig file or directory
	Mode      string          `yaml:"mode,omitempty"`    // prod (artifacts) or dev (plain JavaScript)
	Ext       string          `yaml:"ext,omitempty"`
	OutDir    string          `yaml:"out_dir,omitempty"`
	Ignore    []string        `yaml:"ignore,omitempty"`
	Pipeline  []string        `yaml:"pipeline,omitempty"`
	Target    string          `yaml:"target,omitempty"`
	Engine    *EngineConfig   `yaml:"engine,omitempty"`
	Delegate  *DelegateConfig `yaml:"delegate,omitempty"`
	Store     *StoreConfig    `yaml:"store,omitempty"`
	Typecheck []string        `yaml:"typecheck,omitempty"` // command printing tsc-style diagnostics
}

// EngineConfig pins the header layout instead of detecting it.
type EngineConfig struct {
	Generation string `yaml:"generation,omitempty"`
}

// DelegateConfig runs compilation in another tsb build. Runtime and Image
// are mutually exclusive.
type DelegateConfig struct {
	Runtime string `yaml:"runtime,omitempty"` // path to a tsb binary
	Image   string `yaml:"image,omitempty"`   // Docker image with tsb on PATH
}

// StoreConfig writes artifacts to redis instead of the filesystem.
type StoreConfig struct {
	RedisURL  string `yaml:"redis_url,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// Default returns the configuration used when no tsb.yml exists.
func Default() *Config {
	c := &Config{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

// Validate performs strict validation on the configuration and fills in
// defaults.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Mode == "" {
		c.Mode = ModeProd
	}
	if err := ValidateMode(c.Mode); err != nil {
		return err
	}

	if c.Ext == "" {
		c.Ext = DefaultExt
	}
	if !strings.HasPrefix(c.Ext, ".") || len(c.Ext) < 2 {
		return fmt.Errorf("invalid ext: %q (must start with '.')", c.Ext)
	}
	if c.Ext == ".js" || c.Ext == ".json" || c.Ext == ".ts" {
		return fmt.Errorf("invalid ext: %s is reserved for source files", c.Ext)
	}

	for _, name := range c.Pipeline {
		if _, ok := transform.Lookup(name); !ok {
			return fmt.Errorf("unknown pipeline transform: %s (available: %s)", name, strings.Join(transform.Names(), ", "))
		}
	}

	for _, pattern := range c.Ignore {
		if pattern == "" {
			return fmt.Errorf("ignore patterns must not be empty")
		}
	}

	if c.Engine != nil && c.Engine.Generation != "" {
		if _, err := artifact.LayoutFor(artifact.Generation(c.Engine.Generation)); err != nil {
			return fmt.Errorf("engine.generation: %w", err)
		}
	}

	if c.Delegate != nil && c.Delegate.Runtime != "" && c.Delegate.Image != "" {
		return fmt.Errorf("delegate: runtime and image are mutually exclusive")
	}

	if c.Store != nil {
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store: redis_url is required")
		}
		if c.Store.Namespace == "" {
			c.Store.Namespace = "default"
		}
	}

	return nil
}

// ValidateMode rejects anything but prod and dev.
func ValidateMode(mode string) error {
	if mode != ModeProd && mode != ModeDev {
		return fmt.Errorf("invalid mode: %s (must be '%s' or '%s')", mode, ModeProd, ModeDev)
	}
	return nil
}

// Generation returns the pinned engine generation, or "" to detect it.
func (c *Config) Generation() artifact.Generation {
	if c.Engine == nil {
		return ""
	}
	return artifact.Generation(c.Engine.Generation)
}

// Load reads and validates tsb.yml from the specified path. Relative
// paths inside the file are resolved against its directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.resolvePaths(filepath.Dir(path))
	return &config, nil
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Project = abs(c.Project)
	if c.Project == "" {
		c.Project = dir
	}
	if c.Delegate != nil && strings.ContainsRune(c.Delegate.Runtime, filepath.Separator) {
		c.Delegate.Runtime = abs(c.Delegate.Runtime)
	}
}

// Find walks from dir up to the filesystem root and returns the path of
// the first tsb.yml.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

// LoadOrDefault loads the tsb.yml found from dir, or returns Default()
// when there is none.
func LoadOrDefault(dir string) (*Config, error) {
	path, err := Find(dir)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return Load(path)
}
