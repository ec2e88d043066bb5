package commands

import (
	"fmt"

	"github.com/dyluth/tsb/internal/printer"
	"github.com/dyluth/tsb/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new tsb project",
	Long: `Initialize a tsb project in dir (default: the current directory).

Creates:
  • tsb.yml - Project configuration file
  • tsconfig.json and src/index.ts - only when dir has no tsconfig.json

Use --force to replace an existing tsb.yml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force reinitialization (replaces existing tsb.yml)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	// Check for existing files (unless --force)
	if !forceInit {
		if err := scaffold.CheckExisting(dir); err != nil {
			return printer.Error("Project already initialized", err.Error(), nil)
		}
	}

	created, err := scaffold.Initialize(dir, forceInit)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(created)
	return nil
}
