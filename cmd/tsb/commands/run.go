package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/dyluth/tsb/internal/frontend"
	"github.com/dyluth/tsb/internal/loader"
	"github.com/dyluth/tsb/internal/printer"
	"github.com/dyluth/tsb/internal/project"
	"github.com/dyluth/tsb/pkg/artifact"
	"github.com/spf13/cobra"
)

var (
	runExt   string
	runRedis string
)

var runCmd = &cobra.Command{
	Use:   "run <path> [args...]",
	Short: "Run a compiled artifact or a JavaScript file",
	Long: `Run an entry module with artifact loading enabled.

The entry and everything it requires may be .tsb artifacts, .js files,
.json files or .ts files. A require without an extension tries them in
that order. Artifacts must have been compiled by the same engine
generation. TypeScript is transpiled on load and cached in .cache/ts-import.

Examples:
  # Run a compiled project
  tsb run dist/index.tsb

  # Extension is optional
  tsb run dist/index

  # Arguments after the path are visible as process.argv
  tsb run dist/cli.tsb -- --port 8080`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runExt, "ext", "", "Artifact extension (default from tsb.yml, else .tsb)")
	runCmd.Flags().StringVar(&runRedis, "redis", "", "Load artifacts from redis (redis:// URL) instead of files")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	ext := cfg.Ext
	if cmd.Flags().Changed("ext") {
		ext = runExt
	}

	artifacts, closeStore, err := openArtifactStore(ctx, runRedis)
	if err != nil {
		return printErr("Failed to open artifact store", err, nil)
	}
	defer closeStore()

	eng, codec, err := newEngine(os.Stdout, os.Stderr)
	if err != nil {
		return engineFailure(err)
	}
	defer eng.Close()

	reg := loader.NewRegistry()
	for _, r := range []struct {
		ext     string
		handler loader.Handler
	}{
		{ext, loader.NewArtifactHandler(codec, eng, artifacts)},
		{".js", loader.NewSourceHandler(eng)},
		{".json", loader.NewJSONHandler(eng)},
		{".ts", loader.NewTypeScriptHandler(eng, frontend.New(cfg.Target), loader.DefaultTranspileCacheDir)},
	} {
		if err := reg.Register(r.ext, r.handler); err != nil {
			return printErr("Invalid extension", err, []string{"Choose an artifact extension other than .js, .json and .ts"})
		}
	}

	argv := append([]string{"tsb", path}, args[1:]...)
	rt, err := loader.NewRuntime(eng, reg, loader.WithArgv(argv...))
	if err != nil {
		return printErr("Failed to start runtime", err, nil)
	}

	if _, err := rt.Main(path); err != nil {
		return loadFailure(path, codec, err)
	}
	return nil
}

func engineFailure(err error) error {
	var unsupported *artifact.UnsupportedEngineGenerationError
	if errors.As(err, &unsupported) {
		return printer.Error("Unsupported engine", err.Error(), []string{
			"Pin the header layout with engine.generation in tsb.yml",
		})
	}
	return printErr("Failed to start engine", err, nil)
}

func loadFailure(path string, codec *artifact.Codec, err error) error {
	context := map[string]string{
		"Entry":      path,
		"Generation": string(codec.Generation()),
	}

	var missing *loader.MissingArtifactFileError
	var notFound *loader.ModuleNotFoundError
	var compileErr *project.CompileError
	switch {
	case errors.As(err, &compileErr):
		printer.Diagnostics(os.Stderr, compileErr.Diagnostics, printer.IsTerminal(os.Stderr))
		return printer.ErrorWithContext("Compilation failed", err.Error(), context, nil)
	case errors.As(err, &missing):
		return printer.ErrorWithContext("Artifact not found", err.Error(), context, []string{
			"Run tsb compile first",
			"Check --ext matches the extension used at compile time",
		})
	case errors.As(err, &notFound):
		return printer.ErrorWithContext("Module not found", err.Error(), context, nil)
	case errors.Is(err, artifact.ErrInvalidArtifact):
		context["File"] = filepath.Clean(path)
		return printer.ErrorWithContext("Invalid artifact", err.Error(), context, []string{
			"Recompile with this tsb build",
			"Inspect the header: tsb inspect " + path,
		})
	}
	return printer.ErrorWithContext("Failed to run "+path, err.Error(), context, nil)
}
