package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fwtree/fwtree/internal/fdt"
	"github.com/fwtree/fwtree/internal/pipeline"
	"github.com/fwtree/fwtree/internal/provenance"
	"github.com/fwtree/fwtree/internal/registry"
	"github.com/fwtree/fwtree/internal/validate"
)

// DeriveOptions holds the derive command flags.
type DeriveOptions struct {
	OffsetsPath  string
	ReferenceDTB string
	Reference    string
	Targets      []string
	LicensePath  string
	DTCBinary    string
	IncludeDirs  []string
	Timeout      time.Duration
	OutDir       string
	FindingsPath string
	DBPath       string
}

// DeriveOutcome is one target's result in JSON output.
type DeriveOutcome struct {
	Target     string `json:"target"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Edits      int    `json:"edits"`
	Validation string `json:"validation,omitempty"`
}

// DeriveResult holds the run summary for JSON output.
type DeriveResult struct {
	RunID     string          `json:"run_id"`
	Reference string          `json:"reference"`
	Verified  bool            `json:"verified"`
	Outcomes  []DeriveOutcome `json:"outcomes"`
}

// NewDeriveCommand creates the derive command.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeriveOptions{}

	cmd := &cobra.Command{
		Use:   "derive <image>",
		Short: "Reconstruct derivative sources from a firmware image",
		Long: `Run the full reconstruction pipeline against a firmware image.

For each target blob this extracts, decodes, diffs against the reference
tree, composes a derivative source that includes the reference, and
validates the derivative by compiling it and comparing the result with
the original blob. A derivative is reported equivalent only when the
compiled tree matches the vendor tree exactly.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDerive(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OffsetsPath, "offsets", "", "offset declaration file (CUE)")
	cmd.Flags().StringVar(&opts.ReferenceDTB, "reference-dtb", "", "compiled reference tree blob")
	cmd.Flags().StringVar(&opts.Reference, "reference", "", "reference source name for the include directive (default: reference blob name with .dts)")
	cmd.Flags().StringArrayVar(&opts.Targets, "target", nil, "target blob to reconstruct (repeatable, default boot-config)")
	cmd.Flags().StringVar(&opts.LicensePath, "license", "", "license header file prepended to derivatives")
	cmd.Flags().StringVar(&opts.DTCBinary, "dtc", "dtc", "device tree compiler binary")
	cmd.Flags().StringArrayVarP(&opts.IncludeDirs, "include-dir", "i", nil, "include search directory for the compiler (repeatable)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", validate.DefaultCompileTimeout, "per-compile timeout")
	cmd.Flags().StringVar(&opts.OutDir, "out-dir", "", "directory to write derivative sources into")
	cmd.Flags().StringVar(&opts.FindingsPath, "findings", "", "write the findings document (YAML) to this path")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "record the run in this provenance database (SQLite)")
	_ = cmd.MarkFlagRequired("offsets")
	_ = cmd.MarkFlagRequired("reference-dtb")

	return cmd
}

func runDerive(rootOpts *RootOptions, opts *DeriveOptions, imagePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	reg, err := registry.LoadFile(opts.OffsetsPath)
	if err != nil {
		_ = formatter.Error(ErrCodeBadRegistry, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading image: %v", err), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	referenceData, err := os.ReadFile(opts.ReferenceDTB)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading reference blob: %v", err), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	referenceTree, err := fdt.Decode(referenceData)
	if err != nil {
		_ = formatter.Error(ErrCodeMalformed, fmt.Sprintf("reference blob: %v", err), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	reference := opts.Reference
	if reference == "" {
		base := filepath.Base(opts.ReferenceDTB)
		reference = strings.TrimSuffix(base, filepath.Ext(base)) + ".dts"
	}

	var licenseHeader string
	if opts.LicensePath != "" {
		data, err := os.ReadFile(opts.LicensePath)
		if err != nil {
			_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading license header: %v", err), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		licenseHeader = string(data)
	}

	store := provenance.NewStore()
	compiler := &validate.DTC{
		Binary:      opts.DTCBinary,
		IncludeDirs: opts.IncludeDirs,
		Timeout:     opts.Timeout,
	}

	formatter.VerboseLog("Deriving against reference %s", reference)

	report, err := pipeline.Run(cmd.Context(), pipeline.Config{
		Image:         image,
		Registry:      reg,
		Targets:       opts.Targets,
		Reference:     reference,
		ReferenceTree: referenceTree,
		LicenseHeader: licenseHeader,
		Compiler:      compiler,
		Store:         store,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	if err := writeDeriveArtifacts(cmd.Context(), formatter, opts, report, store); err != nil {
		return err
	}

	if formatter.Format == "json" {
		result := DeriveResult{
			RunID:     report.RunID,
			Reference: report.Reference,
			Verified:  report.Verified(),
		}
		for _, o := range report.Outcomes {
			out := DeriveOutcome{
				Target: o.Target,
				Status: string(o.Status),
				Detail: o.Detail,
				Edits:  len(o.Edits),
			}
			if o.Status == pipeline.StatusOK || o.Status == pipeline.StatusDivergent {
				out.Validation = o.Validation.String()
			}
			result.Outcomes = append(result.Outcomes, out)
		}
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprint(formatter.Writer, report.Text())
	}

	if !report.Verified() {
		return NewExitError(ExitFailure, "derivatives not verified equivalent")
	}
	return nil
}

// writeDeriveArtifacts persists derivative sources, the findings document,
// and the database record requested by the flags.
func writeDeriveArtifacts(ctx context.Context, formatter *OutputFormatter, opts *DeriveOptions, report *pipeline.Report, store *provenance.Store) error {
	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		for _, o := range report.Outcomes {
			if o.Document == nil {
				continue
			}
			path := filepath.Join(opts.OutDir, o.Target+".dts")
			if err := os.WriteFile(path, []byte(o.Document.Source), 0o644); err != nil {
				_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
				return NewExitError(ExitCommandError, err.Error())
			}
			formatter.VerboseLog("Wrote derivative %s", path)
		}
	}

	if opts.FindingsPath != "" {
		f, err := os.Create(opts.FindingsPath)
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		writeErr := provenance.WriteDocument(f, store)
		if closeErr := f.Close(); writeErr == nil {
			writeErr = closeErr
		}
		if writeErr != nil {
			_ = formatter.Error(ErrCodeWriteFailed, writeErr.Error(), nil)
			return NewExitError(ExitCommandError, writeErr.Error())
		}
		formatter.VerboseLog("Wrote findings document %s", opts.FindingsPath)
	}

	if opts.DBPath != "" {
		db, err := provenance.OpenDB(opts.DBPath)
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		writeErr := db.WriteRun(ctx, report.RunID, store)
		if closeErr := db.Close(); writeErr == nil {
			writeErr = closeErr
		}
		if writeErr != nil {
			_ = formatter.Error(ErrCodeWriteFailed, writeErr.Error(), nil)
			return NewExitError(ExitCommandError, writeErr.Error())
		}
		formatter.VerboseLog("Recorded run %s in %s", report.RunID, opts.DBPath)
	}

	return nil
}
