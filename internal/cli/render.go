package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fwtree/fwtree/internal/provenance"
)

// RenderFootnote is one citation in JSON output.
type RenderFootnote struct {
	Number int    `json:"number"`
	Source string `json:"source"`
	Method string `json:"method"`
}

// RenderResult holds the rendered document for JSON output.
type RenderResult struct {
	Body      string           `json:"body"`
	Footnotes []RenderFootnote `json:"footnotes,omitempty"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	var findingsPath string

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a cited document from recorded findings",
		Long: `Render a document template against a findings document.

Each {{cite key}} directive inlines the finding's value and attaches a
footnote naming the source and method the value was recovered by. A
directive naming a finding with no recorded provenance fails the render;
no uncited value is ever emitted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, args[0], findingsPath, cmd)
		},
	}

	cmd.Flags().StringVar(&findingsPath, "findings", "", "findings document (YAML)")
	_ = cmd.MarkFlagRequired("findings")

	return cmd
}

func runRender(opts *RootOptions, templatePath, findingsPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	template, err := os.ReadFile(templatePath)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading template: %v", err), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	f, err := os.Open(findingsPath)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading findings: %v", err), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	store, err := provenance.ReadDocument(f)
	_ = f.Close()
	if err != nil {
		_ = formatter.Error(ErrCodeBadTemplate, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	formatter.VerboseLog("Loaded %d finding(s) from %s", store.Len(), findingsPath)

	body, footnotes, err := provenance.Render(string(template), store)
	if err != nil {
		_ = formatter.Error(ErrCodeBadTemplate, err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	if formatter.Format == "json" {
		result := RenderResult{Body: body}
		for _, fn := range footnotes {
			result.Footnotes = append(result.Footnotes, RenderFootnote{
				Number: fn.Number,
				Source: fn.Source,
				Method: fn.Method,
			})
		}
		return formatter.Success(result)
	}

	fmt.Fprint(formatter.Writer, body)
	if len(footnotes) > 0 {
		fmt.Fprintln(formatter.Writer)
		for _, fn := range footnotes {
			fmt.Fprintln(formatter.Writer, fn.String())
		}
	}
	return nil
}
