package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dyluth/tsb/internal/config"
	"github.com/dyluth/tsb/internal/delegate"
	"github.com/dyluth/tsb/internal/frontend"
	"github.com/dyluth/tsb/internal/printer"
	"github.com/dyluth/tsb/internal/project"
	"github.com/dyluth/tsb/internal/store"
	"github.com/dyluth/tsb/internal/transform"
	"github.com/spf13/cobra"
)

var (
	compileConfig   string
	compileMode     string
	compileOutDir   string
	compileIgnore   []string
	compileExt      string
	compilePipeline []string
	compileDelegate string
	compileImage    string
	compileRedis    string
	compileTarget   string
)

var compileCmd = &cobra.Command{
	Use:   "compile [fileName]",
	Short: "Compile a project or a single file into bytecode artifacts",
	Long: `Compile a TypeScript project into bytecode artifacts.

fileName may be a tsconfig file, a directory containing one, or a single
.ts, .tsx, .js or .jsx file. Without it --config names the tsconfig, then
the project from tsb.yml is used, and failing that the nearest
tsconfig.json above the working directory.

Modes:
  prod - every emitted .js file becomes a .tsb artifact (default)
  dev  - emitted files are written as plain .js, no artifacts

Artifacts only load on the engine generation that produced them. To build
for another tsb build, run the compiler through a delegate:
  --delegate - path to (or name on PATH of) another tsb binary
  --image    - Docker image with tsb on its PATH

Any error diagnostic aborts the compilation: nothing is written and the
command exits non-zero.

Examples:
  # Compile the project in the current directory
  tsb compile

  # Compile a specific tsconfig into ./build
  tsb compile --config tsconfig.build.json --outDir build

  # Plain JavaScript for debugging
  tsb compile --mode dev

  # Compile one file with the engine shipped in an image
  tsb compile src/worker.ts --image tsb:node18`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileConfig, "config", "c", "", "tsconfig file or directory to compile (overridden by fileName)")
	compileCmd.Flags().StringVarP(&compileMode, "mode", "m", "", "Compile mode: prod or dev (default from tsb.yml, else prod)")
	compileCmd.Flags().StringVarP(&compileOutDir, "outDir", "o", "", "Directory appended to the project's outDir")
	compileCmd.Flags().StringSliceVar(&compileIgnore, "ignore", nil, "Glob patterns of emitted files to leave as plain JavaScript")
	compileCmd.Flags().StringVar(&compileExt, "ext", "", "Artifact extension (default .tsb)")
	compileCmd.Flags().StringSliceVar(&compilePipeline, "pipeline", nil, "Transforms applied to emitted JavaScript: "+strings.Join(transform.Names(), ", "))
	compileCmd.Flags().StringVar(&compileTarget, "target", "", "Override compilerOptions.target")

	// Out-of-process compilation
	compileCmd.Flags().StringVar(&compileDelegate, "delegate", "", "Compile with another tsb binary")
	compileCmd.Flags().StringVar(&compileImage, "image", "", "Compile inside a Docker image")

	compileCmd.Flags().StringVar(&compileRedis, "redis", "", "Write artifacts to redis (redis:// URL) instead of files")

	rootCmd.AddCommand(compileCmd)
}

// compileSettings is tsb.yml with command-line overrides applied.
type compileSettings struct {
	mode     string
	ext      string
	target   string
	options  delegate.Options
	pipeline transform.Pipeline
}

func resolveCompileSettings(cmd *cobra.Command) (*compileSettings, error) {
	s := &compileSettings{mode: cfg.Mode, ext: cfg.Ext, target: cfg.Target}
	flags := cmd.Flags()

	if flags.Changed("mode") {
		s.mode = compileMode
	}
	if err := config.ValidateMode(s.mode); err != nil {
		return nil, err
	}

	if flags.Changed("ext") {
		s.ext = compileExt
		if !strings.HasPrefix(s.ext, ".") {
			s.ext = "." + s.ext
		}
	}
	if flags.Changed("target") {
		s.target = compileTarget
	}

	s.options = delegate.Options{
		OutDir:   cfg.OutDir,
		Ignore:   cfg.Ignore,
		Pipeline: cfg.Pipeline,
		Codegen:  project.Bool(s.mode == config.ModeProd),
	}
	if flags.Changed("outDir") {
		s.options.OutDir = compileOutDir
	}
	if flags.Changed("ignore") {
		s.options.Ignore = compileIgnore
	}
	if flags.Changed("pipeline") {
		s.options.Pipeline = compilePipeline
	}

	pipeline, err := transform.Resolve(s.options.Pipeline)
	if err != nil {
		return nil, err
	}
	s.pipeline = pipeline
	return s, nil
}

// outputExt is the extension cache entries are written with.
func (s *compileSettings) outputExt() string {
	if s.mode == config.ModeDev {
		return ".js"
	}
	return s.ext
}

func isScriptFile(path string) bool {
	switch filepath.Ext(path) {
	case ".ts", ".tsx", ".js", ".jsx", ".mts", ".cts":
		info, err := os.Stat(path)
		return err == nil && !info.IsDir()
	}
	return false
}

func runCompile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := resolveCompileSettings(cmd)
	if err != nil {
		return printer.Error("Invalid compile options", err.Error(), []string{
			"Valid modes: prod, dev",
			"Valid transforms: " + strings.Join(transform.Names(), ", "),
		})
	}

	runner, closeRunner, err := newDelegateRunner(ctx, compileDelegate, compileImage)
	if err != nil {
		return printErr("Failed to set up delegate", err, nil)
	}
	defer closeRunner()
	if runner != nil && settings.mode == config.ModeDev {
		printer.Warning("dev mode emits plain JavaScript; the delegate is not used\n")
		runner = nil
	}

	artifacts, closeStore, err := openArtifactStore(ctx, compileRedis)
	if err != nil {
		return printErr("Failed to open artifact store", err, []string{"Check --redis or store.redis_url in tsb.yml"})
	}
	defer closeStore()

	if len(args) == 1 && isScriptFile(args[0]) {
		return compileFile(ctx, args[0], settings, runner, artifacts)
	}

	source := project.FromPath(cfg.Project)
	switch {
	case len(args) == 1:
		source = project.FromPath(args[0])
	case compileConfig != "":
		source = project.FromPath(compileConfig)
	}

	var result *project.Result
	if runner != nil {
		printer.Step("Compiling %s through delegate\n", source)
		result, err = delegate.NewClient(runner).CompileProject(ctx, source, settings.options)
	} else {
		result, err = compileInProcess(ctx, source, settings)
	}

	if result != nil {
		printer.Diagnostics(os.Stderr, result.Diagnostics, printer.IsTerminal(os.Stderr))
	}
	if err != nil {
		return compileFailure(source.String(), err)
	}

	if len(result.Cache) == 0 {
		printer.Warning("No files compiled from %s\n", source)
		return nil
	}

	if err := result.Cache.Write(ctx, artifacts, settings.outputExt()); err != nil {
		return printErr("Failed to write artifacts", err, nil)
	}

	printer.Success("Compiled %d files (%s mode, %s)\n", len(result.Cache), settings.mode, settings.outputExt())
	return nil
}

func compileInProcess(ctx context.Context, source project.Source, s *compileSettings) (*project.Result, error) {
	compiler := project.NewCompiler(frontend.New(s.target), nil)
	compiler.Reporter = nil
	if len(cfg.Typecheck) > 0 {
		compiler.Checker = &project.ExecChecker{Command: cfg.Typecheck}
	}

	if s.mode == config.ModeProd {
		eng, codec, err := newEngine(os.Stderr, os.Stderr)
		if err != nil {
			return nil, err
		}
		defer eng.Close()
		compiler.Codec = codec
	}

	opts := project.Options{
		Pipeline: s.pipeline,
		OutDir:   s.options.OutDir,
		Codegen:  s.options.Codegen,
		Ignore:   s.options.Ignore,
	}
	return compiler.Project(ctx, source, opts)
}

func compileFile(ctx context.Context, path string, s *compileSettings, runner delegate.Runner, artifacts store.Store) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return printErr("Failed to resolve file", err, nil)
	}

	var blob []byte
	if runner != nil {
		blob, err = delegate.NewClient(runner).CompileNativeFile(ctx, delegate.Script{FilePath: abs}, s.options)
		if err == nil && blob == nil {
			err = errors.New("delegate exited without producing an artifact")
		}
	} else {
		blob, err = compileFileInProcess(ctx, abs, s)
	}
	if err != nil {
		var compileErr *project.CompileError
		if errors.As(err, &compileErr) {
			printer.Diagnostics(os.Stderr, compileErr.Diagnostics, printer.IsTerminal(os.Stderr))
		}
		return compileFailure(path, err)
	}

	out := strings.TrimSuffix(abs, filepath.Ext(abs)) + s.outputExt()
	if out == abs {
		return printer.Error("Refusing to overwrite source", fmt.Sprintf("%s would be replaced by its own output", path), []string{"Use --mode prod"})
	}
	if err := artifacts.Put(ctx, out, blob); err != nil {
		return printErr("Failed to write artifact", err, nil)
	}

	printer.Success("Compiled %s -> %s\n", path, out)
	return nil
}

func compileFileInProcess(ctx context.Context, path string, s *compileSettings) ([]byte, error) {
	compiler := project.NewCompiler(frontend.New(s.target), nil)
	compiler.Reporter = nil

	if s.mode == config.ModeProd {
		eng, codec, err := newEngine(os.Stderr, os.Stderr)
		if err != nil {
			return nil, err
		}
		defer eng.Close()
		compiler.Codec = codec
	}

	return compiler.File(ctx, path, project.Options{Pipeline: s.pipeline, Codegen: s.options.Codegen})
}

func compileFailure(what string, err error) error {
	var compileErr *project.CompileError
	if errors.As(err, &compileErr) {
		return printer.ErrorWithContext(
			"Compilation failed",
			fmt.Sprintf("%d error(s) in %s; no artifacts were written.", project.CountErrors(compileErr.Diagnostics), what),
			nil,
			[]string{"Fix the errors listed above and run tsb compile again"},
		)
	}
	if errors.Is(err, project.ErrConfigNotFound) {
		return printer.Error("No tsconfig found", err.Error(), []string{
			"Run tsb compile from inside a TypeScript project",
			"Pass the tsconfig path: tsb compile path/to/tsconfig.json",
		})
	}
	if errors.Is(err, delegate.ErrCancelled) || errors.Is(err, context.Canceled) {
		return printer.Error("Compilation cancelled", err.Error(), nil)
	}
	return printErr("Compilation failed", err, nil)
}
