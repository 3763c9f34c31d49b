package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fwtree/fwtree/internal/extract"
	"github.com/fwtree/fwtree/internal/registry"
)

// ExtractResult holds the extraction summary for JSON output.
type ExtractResult struct {
	Target string `json:"target"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	Output string `json:"output,omitempty"`
}

// NewExtractCommand creates the extract command.
func NewExtractCommand(rootOpts *RootOptions) *cobra.Command {
	var offsetsPath string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "extract <image> <target>",
		Short: "Extract a named blob from a firmware image",
		Long: `Extract a named blob from a vendor firmware image.

Resolves the target against the offset declarations, falling back to a
signature scan when no offset is declared, and writes the raw blob bytes
to the output file.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(rootOpts, args[0], args[1], offsetsPath, outputPath, cmd)
		},
	}

	cmd.Flags().StringVar(&offsetsPath, "offsets", "", "offset declaration file (CUE)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file for the blob bytes")
	_ = cmd.MarkFlagRequired("offsets")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExtract(opts *RootOptions, imagePath, target, offsetsPath, outputPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	reg, err := registry.LoadFile(offsetsPath)
	if err != nil {
		_ = formatter.Error(ErrCodeBadRegistry, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading image: %v", err), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	formatter.VerboseLog("Read %d byte image from %s", len(image), imagePath)

	blob, err := extract.Extract(image, reg, target)
	if err != nil {
		if extract.IsNotFound(err) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return NewExitError(ExitFailure, err.Error())
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	offset, length := blob.Origin()
	data, err := blob.Take()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing blob: %v", err), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	result := ExtractResult{Target: target, Offset: offset, Length: length, Output: outputPath}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "%s: %d bytes at offset 0x%x -> %s\n", target, length, offset, outputPath)
	return nil
}
