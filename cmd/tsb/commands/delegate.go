package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/tsb/internal/delegate"
	"github.com/dyluth/tsb/internal/frontend"
	"github.com/dyluth/tsb/internal/project"
	"github.com/spf13/cobra"
)

var delegateCmd = &cobra.Command{
	Use:    "delegate <request>",
	Short:  "Serve one compile request from another tsb process",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE:   runDelegate,
}

func init() {
	rootCmd.AddCommand(delegateCmd)
}

// runDelegate is the child side of --delegate and --image. stdout carries
// only the encoded response; everything else goes to stderr.
func runDelegate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, codec, err := newEngine(os.Stderr, os.Stderr)
	if err != nil {
		return printErr("Delegate failed to start engine", err, nil)
	}
	defer eng.Close()

	compiler := project.NewCompiler(frontend.New(cfg.Target), codec)
	compiler.Reporter = nil
	if len(cfg.Typecheck) > 0 {
		compiler.Checker = &project.ExecChecker{Command: cfg.Typecheck}
	}

	if err := delegate.Serve(ctx, args[0], os.Stdout, &delegate.CompilerHandler{Compiler: compiler}); err != nil {
		return printErr("Delegate request failed", err, nil)
	}
	return nil
}
