package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var defaultExclude = []string{"node_modules", "bower_components", "jspm_packages"}

// Source names the project to compile: a config path (file or directory) or
// an in-memory config. The zero value searches from the working directory.
type Source struct {
	Path   string
	Config *TSConfig
}

// FromPath returns a Source for a tsconfig file or a directory containing one.
func FromPath(path string) Source {
	return Source{Path: path}
}

// FromConfig returns a Source for an in-memory config.
func FromConfig(cfg *TSConfig) Source {
	return Source{Config: cfg}
}

func (s Source) String() string {
	if s.Config != nil {
		return "<inline tsconfig>"
	}
	if s.Path == "" {
		return "."
	}
	return s.Path
}

// Program is a resolved project: its root files and where their output goes.
type Program struct {
	Config     *TSConfig
	ConfigPath string // empty for inline configs

	BasePath string
	RootDir  string
	OutDir   string

	// Files are the absolute, sorted root file names.
	Files []string

	// Diagnostics are problems found while resolving the program, reported
	// before emit.
	Diagnostics []Diagnostic
}

// NewProgram resolves source into a program. The base path is opts.RootPath
// if set, otherwise the config file's directory, otherwise the working
// directory.
func NewProgram(source Source, opts Options) (*Program, error) {
	p := &Program{Config: source.Config}

	if p.Config == nil {
		path, err := locateConfig(source.Path)
		if err != nil {
			return nil, err
		}
		cfg, err := ParseConfig(path)
		if err != nil {
			return nil, err
		}
		p.Config = cfg
		p.ConfigPath = path
	}

	switch {
	case opts.RootPath != "":
		p.BasePath = opts.RootPath
	case p.ConfigPath != "":
		p.BasePath = filepath.Dir(p.ConfigPath)
	default:
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		p.BasePath = wd
	}

	base, err := filepath.Abs(p.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	p.BasePath = base

	p.OutDir = filepath.Join(p.resolve(p.Config.CompilerOptions.OutDir, base), opts.OutDir)

	if err := p.collectFiles(); err != nil {
		return nil, err
	}
	p.resolveRootDir()
	p.checkOverwrites()

	return p, nil
}

// locateConfig turns a Source path into a config file path.
func locateConfig(path string) (string, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		return FindConfig(wd, DefaultConfigName)
	}

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return FindConfig(path, DefaultConfigName)
	}
	if strings.HasSuffix(path, ".json") {
		return FindConfig(filepath.Dir(path), filepath.Base(path))
	}
	return FindConfig(filepath.Dir(path), DefaultConfigName)
}

func (p *Program) resolve(path, fallback string) string {
	if path == "" {
		return fallback
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.BasePath, path)
}

func (p *Program) extensions() []string {
	exts := []string{".ts", ".tsx"}
	if p.Config.CompilerOptions.AllowJS {
		exts = append(exts, ".js", ".jsx")
	}
	return exts
}

func (p *Program) supported(file string) bool {
	for _, ext := range p.extensions() {
		if strings.HasSuffix(file, ext) {
			return true
		}
	}
	return false
}

func (p *Program) collectFiles() error {
	cfg := p.Config
	seen := map[string]bool{}
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			p.Files = append(p.Files, f)
		}
	}

	for _, f := range cfg.Files {
		abs := p.resolve(f, "")
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			p.Diagnostics = append(p.Diagnostics, Errorf("", "TS6053", "File '%s' not found.", abs))
			continue
		}
		add(abs)
	}

	include := cfg.Include
	if include == nil && cfg.Files == nil {
		include = []string{"**/*"}
	}

	exclude := cfg.Exclude
	if exclude == nil {
		exclude = append([]string{}, defaultExclude...)
		if cfg.CompilerOptions.OutDir != "" {
			exclude = append(exclude, cfg.CompilerOptions.OutDir)
		}
	}
	excludes := make([]string, len(exclude))
	for i, e := range exclude {
		excludes[i] = filepath.ToSlash(p.resolve(e, ""))
	}

	for _, pattern := range include {
		matches, err := doublestar.FilepathGlob(expandPattern(p.resolve(pattern, "")))
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !p.supported(m) || isExcluded(m, excludes) {
				continue
			}
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			add(m)
		}
	}

	sort.Strings(p.Files)

	if len(p.Files) == 0 {
		where := p.ConfigPath
		if where == "" {
			where = "<inline tsconfig>"
		}
		p.Diagnostics = append(p.Diagnostics, Errorf("", "TS18003",
			"No inputs were found in config file '%s'. Specified 'include' paths were '%s' and 'exclude' paths were '%s'.",
			where, quoteList(include), quoteList(exclude)))
	}

	return nil
}

// expandPattern treats a pattern whose last segment has no wildcard and no
// extension as a directory, as tsc does.
func expandPattern(pattern string) string {
	last := filepath.Base(pattern)
	if !strings.ContainsAny(last, "*?[{") && filepath.Ext(last) == "" {
		return filepath.Join(pattern, "**", "*")
	}
	return pattern
}

func isExcluded(file string, excludes []string) bool {
	f := filepath.ToSlash(file)
	if strings.Contains(f, "/node_modules/") {
		return true
	}
	for _, e := range excludes {
		if ok, _ := doublestar.Match(e, f); ok {
			return true
		}
		if ok, _ := doublestar.Match(e+"/**", f); ok {
			return true
		}
	}
	return false
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func (p *Program) resolveRootDir() {
	if dir := p.Config.CompilerOptions.RootDir; dir != "" {
		p.RootDir = p.resolve(dir, p.BasePath)
		for _, f := range p.Files {
			if !within(p.RootDir, f) {
				p.Diagnostics = append(p.Diagnostics, Errorf(f, "TS6059",
					"File '%s' is not under 'rootDir' '%s'. 'rootDir' is expected to contain all source files.", f, p.RootDir))
			}
		}
		return
	}

	var dirs []string
	for _, f := range p.Files {
		if !strings.HasSuffix(f, ".d.ts") {
			dirs = append(dirs, filepath.Dir(f))
		}
	}
	p.RootDir = commonDir(dirs, p.BasePath)
}

func within(dir, file string) bool {
	rel, err := filepath.Rel(dir, file)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func commonDir(dirs []string, fallback string) string {
	if len(dirs) == 0 {
		return fallback
	}

	common := dirs[0]
	for _, d := range dirs[1:] {
		for !within(common, d) {
			parent := filepath.Dir(common)
			if parent == common {
				return common
			}
			common = parent
		}
	}
	return common
}

func (p *Program) checkOverwrites() {
	for _, f := range p.SourceFiles() {
		if p.OutputPath(f) == f {
			p.Diagnostics = append(p.Diagnostics, Errorf(f, "TS5055",
				"Cannot write file '%s' because it would overwrite input file.", f))
		}
	}
}

// SourceFiles returns the root files that produce output, skipping
// declaration files.
func (p *Program) SourceFiles() []string {
	var files []string
	for _, f := range p.Files {
		if !strings.HasSuffix(f, ".d.ts") {
			files = append(files, f)
		}
	}
	return files
}

// OutputPath returns the emitted JavaScript path for a root file.
func (p *Program) OutputPath(file string) string {
	rel, err := filepath.Rel(p.RootDir, file)
	if err != nil {
		rel = filepath.Base(file)
	}
	return filepath.Join(p.OutDir, replaceExt(rel))
}

func replaceExt(path string) string {
	switch ext := filepath.Ext(path); ext {
	case ".ts", ".tsx", ".jsx":
		return strings.TrimSuffix(path, ext) + ".js"
	case ".mts":
		return strings.TrimSuffix(path, ext) + ".mjs"
	case ".cts":
		return strings.TrimSuffix(path, ext) + ".cjs"
	default:
		return path
	}
}
