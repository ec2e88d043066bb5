package commands

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dyluth/tsb/internal/config"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var (
	settingsPath string
	verbose      bool

	// cfg is loaded before every subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tsb",
	Short: "tsb - precompiled bytecode artifacts for TypeScript projects",
	Long: `tsb compiles TypeScript and JavaScript projects into V8 code cache
artifacts and runs them without their sources.

Artifacts are tied to the engine generation that produced them. Use the
delegate flags to compile for a different tsb build than this one.`,
	Version: version,
	// Unknown flags on the root command are an error, not a silent no-op
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
	PersistentPreRunE:  loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Errors are printed by the printer package with color formatting
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "settings", "s", "", "Path to tsb.yml (default: searched upwards from the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log compiler and engine activity to stderr")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	log.SetOutput(os.Stderr)
	if !verbose {
		log.SetOutput(io.Discard)
	}

	var err error
	if settingsPath != "" {
		cfg, err = config.Load(settingsPath)
	} else {
		cfg, err = config.LoadOrDefault(".")
	}
	if err != nil {
		return printErr("Failed to load configuration", err, []string{
			"Check tsb.yml against the documented fields",
			"Run without --settings to use defaults",
		})
	}
	return nil
}
