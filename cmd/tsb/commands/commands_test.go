package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/dyluth/tsb/internal/project"
	"github.com/dyluth/tsb/pkg/artifact"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the real root command with args after resetting every flag
// left over from a previous run.
func execute(t *testing.T, args ...string) error {
	t.Helper()

	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				require.NoError(t, sv.Replace(nil))
			} else {
				require.NoError(t, f.Value.Set(f.DefValue))
			}
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func twoModuleProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"tsconfig.json": `{"compilerOptions": {"outDir": "dist", "rootDir": "src"}}`,
		"src/a.ts":      "import { b } from './b';\nconsole.log(b);\n",
		"src/b.ts":      "export const b: number = 1;\n",
	})
	return dir
}

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	testRoot := &cobra.Command{
		Use:   "tsb",
		Short: "Test root command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	buf := new(bytes.Buffer)
	testRoot.SetOut(buf)
	testRoot.SetErr(buf)

	assert.NoError(t, testRoot.Execute())
	assert.Contains(t, buf.String(), "Usage:")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	err := execute(t, "--unknown-flag", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRootCommand_DelegateIsHidden(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		if c.Name() == "delegate" {
			assert.True(t, c.Hidden)
			return
		}
	}
	t.Fatal("delegate command not registered")
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2026-01-01)", rootCmd.Version)
}

func TestCompile_InvalidMode(t *testing.T) {
	dir := twoModuleProject(t)
	err := execute(t, "compile", dir, "--mode", "release")
	require.Error(t, err)
	assert.Equal(t, "Invalid compile options", err.Error())
}

func TestCompile_UnknownTransform(t *testing.T) {
	dir := twoModuleProject(t)
	err := execute(t, "compile", dir, "--pipeline", "minify")
	require.Error(t, err)
	assert.Equal(t, "Invalid compile options", err.Error())
}

func TestCompile_DelegateAndImageConflict(t *testing.T) {
	dir := twoModuleProject(t)
	err := execute(t, "compile", dir, "--delegate", "/bin/true", "--image", "tsb:node18")
	require.Error(t, err)
	assert.Equal(t, "Failed to set up delegate", err.Error())
}

func TestCompile_DevModeWritesJavaScript(t *testing.T) {
	dir := twoModuleProject(t)
	require.NoError(t, execute(t, "compile", dir, "--mode", "dev", "--pipeline", "use-strict"))

	data, err := os.ReadFile(filepath.Join(dir, "dist", "b.js"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `"use strict";`), string(data))
	assert.FileExists(t, filepath.Join(dir, "dist", "a.js"))
	assert.NoFileExists(t, filepath.Join(dir, "dist", "a.tsb"))
}

func TestCompile_ErrorDiagnosticsFailAndWriteNothing(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"tsconfig.json": `{"compilerOptions": {"outDir": "dist"}}`,
		"a.ts":          "import { b } from './b';\nconsole.log(b);\n",
		"b.ts":          "export const b = ;\n",
	})

	err := execute(t, "compile", dir)
	require.Error(t, err)
	assert.Equal(t, "Compilation failed", err.Error())
	assert.NoDirExists(t, filepath.Join(dir, "dist"))
}

func TestCompile_MissingConfig(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, "compile", filepath.Join(dir, "tsconfig.json"))
	require.Error(t, err)
	assert.Equal(t, "No tsconfig found", err.Error())
}

func TestCompile_ProdThenRunWithoutSources(t *testing.T) {
	dir := twoModuleProject(t)
	require.NoError(t, execute(t, "compile", dir))

	main := filepath.Join(dir, "dist", "a.tsb")
	require.FileExists(t, main)
	require.FileExists(t, filepath.Join(dir, "dist", "b.tsb"))
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "src")))

	require.NoError(t, execute(t, "run", main))
	require.NoError(t, execute(t, "run", strings.TrimSuffix(main, ".tsb")))
}

func TestCompile_ConfigFlagNamesTSConfig(t *testing.T) {
	dir := twoModuleProject(t)
	require.NoError(t, os.Rename(filepath.Join(dir, "tsconfig.json"), filepath.Join(dir, "tsconfig.build.json")))

	require.NoError(t, execute(t, "compile", "--config", filepath.Join(dir, "tsconfig.build.json")))
	assert.FileExists(t, filepath.Join(dir, "dist", "a.tsb"))

	err := execute(t, "compile", "-c", filepath.Join(dir, "tsconfig.json"))
	require.Error(t, err)
	assert.Equal(t, "No tsconfig found", err.Error())
}

func TestCompile_TypeErrorFailsAndWritesNothing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	bin := t.TempDir()
	script := "#!/bin/sh\necho \"b.ts(2,7): error TS2322: Type 'number' is not assignable to type 'string'.\"\nexit 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, "tsc"), []byte(script), 0755))
	t.Setenv("PATH", bin)

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"tsconfig.json": `{"compilerOptions": {"outDir": "dist"}}`,
		"a.ts":          "export const x = 1;\n",
		"b.ts":          "import { x } from './a';\nconst y: string = x;\n",
	})

	err := execute(t, "compile", dir)
	require.Error(t, err)
	assert.Equal(t, "Compilation failed", err.Error())
	assert.NoDirExists(t, filepath.Join(dir, "dist"))
}

func TestCompile_CustomExtension(t *testing.T) {
	dir := twoModuleProject(t)
	require.NoError(t, execute(t, "compile", dir, "--ext", "jsc", "--outDir", "out"))

	main := filepath.Join(dir, "dist", "out", "a.jsc")
	require.FileExists(t, main)
	require.NoError(t, execute(t, "run", main, "--ext", ".jsc"))
}

func TestCompile_SingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"tool.ts": "const n: number = 40 + 2;\nmodule.exports = n;\n"})

	require.NoError(t, execute(t, "compile", filepath.Join(dir, "tool.ts")))
	assert.FileExists(t, filepath.Join(dir, "tool.tsb"))

	require.NoError(t, execute(t, "run", filepath.Join(dir, "tool.tsb")))
}

func TestCompile_SingleFileDevRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"tool.js": "module.exports = 1;\n"})

	err := execute(t, "compile", filepath.Join(dir, "tool.js"), "--mode", "dev")
	require.Error(t, err)
	assert.Equal(t, "Refusing to overwrite source", err.Error())
}

func TestCompile_ConfigFile(t *testing.T) {
	dir := twoModuleProject(t)
	writeFiles(t, dir, map[string]string{
		"tsb.yml": "version: \"1.0\"\nmode: dev\nproject: tsconfig.json\n",
	})

	require.NoError(t, execute(t, "--settings", filepath.Join(dir, "tsb.yml"), "compile"))
	assert.FileExists(t, filepath.Join(dir, "dist", "a.js"))
}

func TestCompile_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"tsb.yml": "version: \"2.0\"\n"})

	err := execute(t, "--settings", filepath.Join(dir, "tsb.yml"), "compile")
	require.Error(t, err)
	assert.Equal(t, "Failed to load configuration", err.Error())
}

func TestRun_MissingArtifact(t *testing.T) {
	err := execute(t, "run", filepath.Join(t.TempDir(), "nothing.tsb"))
	require.Error(t, err)
	assert.Equal(t, "Artifact not found", err.Error())
}

func TestRun_TruncatedArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.tsb")
	require.NoError(t, os.WriteFile(path, []byte("too short"), 0644))

	err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, "Invalid artifact", err.Error())
}

func TestRun_PlainJavaScript(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"main.js":  "const cfg = require('./cfg');\nif (cfg.port !== 8080) throw new Error('bad');\n",
		"cfg.json": `{"port": 8080}`,
	})
	require.NoError(t, execute(t, "run", filepath.Join(dir, "main.js")))
}

func TestRun_RequiresTypeScript(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"main.js":   "if (require('./answer').answer !== 42) throw new Error('bad');\n",
		"answer.ts": "export const answer: number = 42;\n",
	})
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, execute(t, "run", filepath.Join(dir, "main.js")))
	assert.DirExists(t, filepath.Join(dir, ".cache", "ts-import"))
}

func TestRun_ThrowingScript(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"main.js": "throw new Error('boom');\n"})

	err := execute(t, "run", filepath.Join(dir, "main.js"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to run")
}

func TestInspect(t *testing.T) {
	dir := twoModuleProject(t)
	require.NoError(t, execute(t, "compile", dir))
	main := filepath.Join(dir, "dist", "a.tsb")

	require.NoError(t, execute(t, "inspect", main))
	require.NoError(t, execute(t, "inspect", main, "--check"))
}

func TestInspect_Errors(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.tsb")
	require.NoError(t, os.WriteFile(short, []byte("abc"), 0644))

	err := execute(t, "inspect", short)
	require.Error(t, err)
	assert.Equal(t, "Invalid artifact", err.Error())

	err = execute(t, "inspect", filepath.Join(dir, "missing.tsb"))
	require.Error(t, err)
	assert.Equal(t, "Artifact not found", err.Error())

	long := filepath.Join(dir, "long.tsb")
	require.NoError(t, os.WriteFile(long, make([]byte, artifact.HeaderSize), 0644))
	err = execute(t, "inspect", long, "--generation", "future")
	require.Error(t, err)
	assert.Equal(t, "Unsupported engine", err.Error())
}

func TestCompileFailure_Classification(t *testing.T) {
	err := compileFailure("x", &project.CompileError{Diagnostics: []project.Diagnostic{project.Errorf("a.ts", "TS1", "bad")}})
	assert.Equal(t, "Compilation failed", err.Error())

	err = compileFailure("x", project.ErrConfigNotFound)
	assert.Equal(t, "No tsconfig found", err.Error())
}

func TestInit_ThenCompile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, execute(t, "init", dir))
	require.FileExists(t, filepath.Join(dir, "tsb.yml"))

	err := execute(t, "init", dir)
	require.Error(t, err)
	assert.Equal(t, "Project already initialized", err.Error())
	require.NoError(t, execute(t, "init", dir, "--force"))

	require.NoError(t, execute(t, "--settings", filepath.Join(dir, "tsb.yml"), "compile"))
	assert.FileExists(t, filepath.Join(dir, "dist", "index.tsb"))
}
