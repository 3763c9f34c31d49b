package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fwtree/fwtree/internal/dtree"
	"github.com/fwtree/fwtree/internal/fdt"
)

// DecodeResult holds the decode summary for JSON output.
type DecodeResult struct {
	Nodes int    `json:"nodes"`
	Hash  string `json:"hash"`
	Tree  any    `json:"tree,omitempty"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	var hashOnly bool

	cmd := &cobra.Command{
		Use:   "decode <blob>",
		Short: "Decode a tree blob into readable form",
		Long: `Decode a flattened tree blob and print its structure.

Text output is an indented listing of nodes and properties. JSON output
carries the full tree plus the canonical content hash.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(rootOpts, args[0], hashOnly, cmd)
		},
	}

	cmd.Flags().BoolVar(&hashOnly, "hash", false, "print only the canonical content hash")

	return cmd
}

func runDecode(opts *RootOptions, blobPath string, hashOnly bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	data, err := os.ReadFile(blobPath)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading blob: %v", err), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	root, err := fdt.Decode(data)
	if err != nil {
		var malformed *fdt.MalformedTreeError
		if errors.As(err, &malformed) {
			_ = formatter.Error(ErrCodeMalformed, err.Error(), map[string]any{"offset": malformed.Offset})
			return NewExitError(ExitFailure, err.Error())
		}
		_ = formatter.Error(ErrCodeMalformed, err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	hash, err := dtree.Hash(root)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	formatter.VerboseLog("Decoded %d node(s) from %s", root.NodeCount(), blobPath)

	if hashOnly {
		if formatter.Format == "json" {
			return formatter.Success(DecodeResult{Nodes: root.NodeCount(), Hash: hash})
		}
		fmt.Fprintln(formatter.Writer, hash)
		return nil
	}

	if formatter.Format == "json" {
		return formatter.Success(DecodeResult{
			Nodes: root.NodeCount(),
			Hash:  hash,
			Tree:  treeJSON(root),
		})
	}

	var b strings.Builder
	dumpNode(&b, root, 0)
	fmt.Fprint(formatter.Writer, b.String())
	return nil
}

// dumpNode writes an indented listing of a node, its properties, and its
// children in stored order.
func dumpNode(b *strings.Builder, n *dtree.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	name := n.Name
	if name == "" {
		name = "/"
	}
	fmt.Fprintf(b, "%s%s {\n", indent, name)
	for _, p := range n.Properties {
		if _, ok := p.Value.(dtree.Empty); ok {
			fmt.Fprintf(b, "%s  %s;\n", indent, p.Name)
			continue
		}
		fmt.Fprintf(b, "%s  %s = %s;\n", indent, p.Name, dtree.FormatValue(p.Value))
	}
	for _, c := range n.Children {
		dumpNode(b, c, depth+1)
	}
	fmt.Fprintf(b, "%s}\n", indent)
}

// treeJSON converts a node into the nested map form used for JSON output.
// Properties are rendered with their type name so typed equality survives
// the round trip through text.
func treeJSON(n *dtree.Node) map[string]any {
	props := make([]map[string]string, 0, len(n.Properties))
	for _, p := range n.Properties {
		props = append(props, map[string]string{
			"name":  p.Name,
			"type":  dtree.TypeName(p.Value),
			"value": dtree.FormatValue(p.Value),
		})
	}
	children := make([]map[string]any, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, treeJSON(c))
	}
	return map[string]any{
		"name":       n.Name,
		"properties": props,
		"children":   children,
	}
}
