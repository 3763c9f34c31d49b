package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fwtree/fwtree/internal/diff"
	"github.com/fwtree/fwtree/internal/dtree"
	"github.com/fwtree/fwtree/internal/fdt"
)

// DiffOp is one edit in JSON output.
type DiffOp struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
	Old  string `json:"old,omitempty"`
	New  string `json:"new,omitempty"`
	Node bool   `json:"node,omitempty"`
}

// DiffResult holds the diff summary for JSON output.
type DiffResult struct {
	Identical bool     `json:"identical"`
	Edits     []DiffOp `json:"edits,omitempty"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <vendor-blob> <reference-blob>",
		Short: "Compare a vendor tree against a reference tree",
		Long: `Decode two tree blobs and print the minimal edit set that turns the
reference into the vendor tree. Properties compare by exact typed value;
an identical payload under a different type is a difference.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runDiff(opts *RootOptions, vendorPath, referencePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	vendor, err := decodeFile(formatter, vendorPath)
	if err != nil {
		return err
	}
	reference, err := decodeFile(formatter, referencePath)
	if err != nil {
		return err
	}

	edits := diff.Diff(vendor, reference)
	formatter.VerboseLog("Computed %d edit(s)", len(edits))

	if formatter.Format == "json" {
		result := DiffResult{Identical: edits.Empty()}
		for _, op := range edits {
			jop := DiffOp{Kind: string(op.Kind), Path: string(op.Path), Node: op.IsNode()}
			if op.Old != nil {
				jop.Old = dtree.FormatValue(op.Old)
			}
			if op.New != nil {
				jop.New = dtree.FormatValue(op.New)
			}
			result.Edits = append(result.Edits, jop)
		}
		return formatter.Success(result)
	}

	if edits.Empty() {
		fmt.Fprintln(formatter.Writer, "trees are identical")
		return nil
	}
	for _, op := range edits {
		fmt.Fprintln(formatter.Writer, op.String())
	}
	return nil
}

// decodeFile reads and decodes one blob, mapping failures onto CLI errors.
func decodeFile(formatter *OutputFormatter, path string) (*dtree.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading blob: %v", err), nil)
		return nil, NewExitError(ExitCommandError, err.Error())
	}
	root, err := fdt.Decode(data)
	if err != nil {
		_ = formatter.Error(ErrCodeMalformed, fmt.Sprintf("%s: %v", path, err), nil)
		return nil, NewExitError(ExitFailure, err.Error())
	}
	return root, nil
}
