package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgram_DefaultIncludeAndExclude(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"tsconfig.json":                `{"compilerOptions": {"outDir": "dist"}}`,
		"src/a.ts":                     `export const a = 1;`,
		"src/b.tsx":                    `export const b = 2;`,
		"src/types.d.ts":               `declare const x: number;`,
		"src/plain.js":                 `module.exports = 3;`,
		"node_modules/dep/index.ts":    `export {};`,
		"dist/old.ts":                  `export {};`,
		"src/nested/node_modules/x.ts": `export {};`,
	})

	p, err := NewProgram(FromPath(root), Options{})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "tsconfig.json"), p.ConfigPath)
	assert.Equal(t, root, p.BasePath)
	assert.Equal(t, []string{
		filepath.Join(root, "src", "a.ts"),
		filepath.Join(root, "src", "b.tsx"),
		filepath.Join(root, "src", "types.d.ts"),
	}, p.Files)
	assert.Len(t, p.SourceFiles(), 2)
	assert.Empty(t, p.Diagnostics)

	assert.Equal(t, filepath.Join(root, "src"), p.RootDir)
	assert.Equal(t, filepath.Join(root, "dist"), p.OutDir)
	assert.Equal(t, filepath.Join(root, "dist", "a.js"), p.OutputPath(filepath.Join(root, "src", "a.ts")))
	assert.Equal(t, filepath.Join(root, "dist", "b.js"), p.OutputPath(filepath.Join(root, "src", "b.tsx")))
}

func TestNewProgram_AllowJS(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"tsconfig.json": `{"compilerOptions": {"allowJs": true, "outDir": "out"}}`,
		"lib/a.js":      `module.exports = 1;`,
		"lib/b.ts":      `export {};`,
	})

	p, err := NewProgram(FromPath(filepath.Join(root, "tsconfig.json")), Options{})
	require.NoError(t, err)
	assert.Len(t, p.Files, 2)
	assert.Equal(t, filepath.Join(root, "out", "a.js"), p.OutputPath(filepath.Join(root, "lib", "a.js")))
}

func TestNewProgram_OutDirAndRootPath(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"tsconfig.json": `{"compilerOptions": {"outDir": "dist", "rootDir": "."}, "include": ["src"]}`,
		"src/a.ts":      `export {};`,
		"test/a.ts":     `export {};`,
	})

	p, err := NewProgram(FromPath(root), Options{OutDir: "bytecode"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "src", "a.ts")}, p.Files)
	assert.Equal(t, root, p.RootDir)
	assert.Equal(t, filepath.Join(root, "dist", "bytecode"), p.OutDir)
	assert.Equal(t, filepath.Join(root, "dist", "bytecode", "src", "a.js"), p.OutputPath(p.Files[0]))

	other := t.TempDir()
	writeFiles(t, other, map[string]string{"src/c.ts": `export {};`})

	p, err = NewProgram(FromPath(root), Options{RootPath: other})
	require.NoError(t, err)
	assert.Equal(t, other, p.BasePath)
	assert.Equal(t, []string{filepath.Join(other, "src", "c.ts")}, p.Files)
}

func TestNewProgram_InlineConfig(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"index.ts": `export {};`})

	cfg := &TSConfig{Files: []string{"index.ts", "missing.ts"}}
	p, err := NewProgram(FromConfig(cfg), Options{RootPath: root})
	require.NoError(t, err)

	assert.Empty(t, p.ConfigPath)
	assert.Equal(t, []string{filepath.Join(root, "index.ts")}, p.Files)
	require.Len(t, p.Diagnostics, 1)
	assert.Equal(t, "TS6053", p.Diagnostics[0].Code)
}

func TestNewProgram_Diagnostics(t *testing.T) {
	t.Run("no inputs", func(t *testing.T) {
		root := t.TempDir()
		writeFiles(t, root, map[string]string{"tsconfig.json": `{"include": ["src"]}`})

		p, err := NewProgram(FromPath(root), Options{})
		require.NoError(t, err)
		assert.Empty(t, p.Files)
		require.Len(t, p.Diagnostics, 1)
		assert.Equal(t, SeverityError, p.Diagnostics[0].Severity)
		assert.Equal(t, "TS18003", p.Diagnostics[0].Code)
		assert.Contains(t, p.Diagnostics[0].Text, `"src"`)
	})

	t.Run("file outside rootDir", func(t *testing.T) {
		root := t.TempDir()
		writeFiles(t, root, map[string]string{
			"tsconfig.json": `{"compilerOptions": {"rootDir": "src", "outDir": "dist"}}`,
			"src/a.ts":      `export {};`,
			"scripts/b.ts":  `export {};`,
		})

		p, err := NewProgram(FromPath(root), Options{})
		require.NoError(t, err)
		require.Len(t, p.Diagnostics, 1)
		assert.Equal(t, "TS6059", p.Diagnostics[0].Code)
	})

	t.Run("output overwrites input", func(t *testing.T) {
		root := t.TempDir()
		writeFiles(t, root, map[string]string{
			"tsconfig.json": `{"compilerOptions": {"allowJs": true}}`,
			"a.js":          `module.exports = 1;`,
		})

		p, err := NewProgram(FromPath(root), Options{})
		require.NoError(t, err)
		require.Len(t, p.Diagnostics, 1)
		assert.Equal(t, "TS5055", p.Diagnostics[0].Code)
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := NewProgram(FromPath(filepath.Join(t.TempDir(), "nope.json")), Options{})
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})
}

func TestCommonDir(t *testing.T) {
	sep := string(filepath.Separator)
	a := sep + filepath.Join("p", "src", "a")
	b := sep + filepath.Join("p", "src", "b", "c")
	assert.Equal(t, sep+filepath.Join("p", "src"), commonDir([]string{a, b}, "fallback"))
	assert.Equal(t, "fallback", commonDir(nil, "fallback"))
}
