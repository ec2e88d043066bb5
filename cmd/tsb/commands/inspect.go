package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dyluth/tsb/internal/engine"
	"github.com/dyluth/tsb/internal/printer"
	"github.com/dyluth/tsb/internal/store"
	"github.com/dyluth/tsb/pkg/artifact"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	inspectGeneration string
	inspectCheck      bool
	inspectRedis      string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show the header of an artifact",
	Long: `Decode and print an artifact's header: its size, the source length it
was compiled from and the fingerprint fields that are patched on load.

The header layout follows the running engine's generation unless
--generation (or engine.generation in tsb.yml) says otherwise.

With --check the artifact is also patched and handed to the running engine
to see whether it would be accepted.

Examples:
  tsb inspect dist/index.tsb
  tsb inspect dist/index.tsb --generation lts
  tsb inspect dist/index.tsb --check`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectGeneration, "generation", "g", "", "Header layout: legacy, lts or current")
	inspectCmd.Flags().BoolVar(&inspectCheck, "check", false, "Patch the artifact and try it on the running engine")
	inspectCmd.Flags().StringVar(&inspectRedis, "redis", "", "Read the artifact from redis (redis:// URL)")

	rootCmd.AddCommand(inspectCmd)
}

func inspectGenerationFor() (artifact.Generation, error) {
	if inspectGeneration != "" {
		return artifact.Generation(inspectGeneration), nil
	}
	if g := cfg.Generation(); g != "" {
		return g, nil
	}
	return artifact.DetectGeneration(engine.LinkedVersion())
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	artifacts, closeStore, err := openArtifactStore(ctx, inspectRedis)
	if err != nil {
		return printErr("Failed to open artifact store", err, nil)
	}
	defer closeStore()

	blob, err := artifacts.Get(ctx, path)
	if err != nil {
		if store.IsNotFound(err) {
			return printer.Error("Artifact not found", path, []string{"Run tsb compile first"})
		}
		return printErr("Failed to read artifact", err, nil)
	}

	g, err := inspectGenerationFor()
	if err != nil {
		return engineFailure(err)
	}
	layout, err := artifact.LayoutFor(g)
	if err != nil {
		return engineFailure(err)
	}

	header, err := artifact.Inspect(blob, layout)
	if err != nil {
		return printErr("Invalid artifact", err, []string{"Try another --generation"})
	}

	printer.Field("File", path)
	printer.Field("Generation", header.Generation)
	printer.Field("Engine", engine.LinkedVersion())
	printer.Field("Size", fmt.Sprintf("%d bytes", header.Size))
	printer.Field("Source length", header.SourceLength)
	printer.Println()
	if err := writeFingerprint(os.Stdout, header); err != nil {
		return printErr("Failed to print header", err, nil)
	}

	if !inspectCheck {
		return nil
	}
	printer.Println()
	return checkArtifact(path, blob)
}

func writeFingerprint(w io.Writer, header *artifact.Header) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Range", "Value", "Bytes"})
	for _, f := range header.Fingerprint {
		if err := table.Append([]string{f.Range.String(), fmt.Sprintf("0x%08x", f.Value), f.Hex}); err != nil {
			return err
		}
	}
	return table.Render()
}

// checkArtifact patches blob for the running engine and compiles it.
func checkArtifact(path string, blob []byte) error {
	eng, codec, err := newEngine(io.Discard, io.Discard)
	if err != nil {
		return engineFailure(err)
	}
	defer eng.Close()

	fixed, err := codec.Fix(blob)
	if err != nil {
		return printErr("Invalid artifact", err, nil)
	}
	if bytes.Equal(fixed.Data, blob) {
		printer.Field("Fingerprint", "matches running engine")
	} else {
		printer.Field("Fingerprint", "patched on load")
	}

	script, err := eng.CompileCached(fixed.Placeholder, fixed.Data, path)
	if err != nil {
		return printErr("Engine refused artifact", err, nil)
	}
	if script.CacheRejected() {
		return printer.Error("Artifact rejected", "The running engine rejected the patched cache data.", []string{
			"Recompile with this tsb build",
			"Compile through --delegate or --image for the target engine",
		})
	}
	printer.Success("Artifact accepted by V8 %s\n", eng.Version())
	return nil
}
