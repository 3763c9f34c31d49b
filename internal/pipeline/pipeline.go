// Package pipeline wires the stages together for one firmware image:
// extract each target blob, decode it, diff against the reference tree,
// compose the derivative, validate it, and record findings with
// provenance along the way.
//
// One instance processes one image, strictly sequentially in dependency
// order; nothing is shared between instances (the registry and the
// findings store are constructed fresh per run), so images can be
// processed in parallel by independent instances without locking.
//
// Error policy: registry misconfiguration aborts the run before any
// extraction. Per-target failures (absent blob, corrupt blob,
// unserializable edit, divergent validation) are recorded as gaps in the
// report so one bad blob never hides the rest of the image.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fwtree/fwtree/internal/compose"
	"github.com/fwtree/fwtree/internal/diff"
	"github.com/fwtree/fwtree/internal/dtree"
	"github.com/fwtree/fwtree/internal/extract"
	"github.com/fwtree/fwtree/internal/fdt"
	"github.com/fwtree/fwtree/internal/provenance"
	"github.com/fwtree/fwtree/internal/registry"
	"github.com/fwtree/fwtree/internal/validate"
)

// Config is everything one run needs. Registry and Store must be fresh
// for the run; no component holds state across runs.
type Config struct {
	Image    []byte
	Registry *registry.Registry

	// Targets are the blob names to reconstruct.
	Targets []string

	// Reference is the upstream source identity included by the
	// derivative, and ReferenceTree its decoded form.
	Reference     string
	ReferenceTree *dtree.Node

	LicenseHeader string
	Compiler      validate.Compiler
	Store         *provenance.Store
}

// Run executes the full pipeline and returns the report. The returned
// error is reserved for configuration-level failures; per-target problems
// land in the report instead.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("pipeline: registry is required")
	}
	if cfg.ReferenceTree == nil {
		return nil, fmt.Errorf("pipeline: reference tree is required")
	}
	if cfg.Compiler == nil {
		return nil, fmt.Errorf("pipeline: compiler is required")
	}
	if cfg.Store == nil {
		cfg.Store = provenance.NewStore()
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = []string{"boot-config"}
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Reference: cfg.Reference,
	}
	slog.Info("pipeline starting", "run", report.RunID, "targets", len(cfg.Targets))

	for _, target := range cfg.Targets {
		outcome := processTarget(ctx, cfg, target)
		report.Outcomes = append(report.Outcomes, outcome)
		slog.Info("target processed", "target", target, "status", outcome.Status)
	}

	return report, nil
}

// processTarget runs one blob through extract, decode, diff, compose, and
// validate, recording findings at each stage.
func processTarget(ctx context.Context, cfg Config, target string) TargetOutcome {
	outcome := TargetOutcome{Target: target}

	blob, err := extract.Extract(cfg.Image, cfg.Registry, target)
	if err != nil {
		if extract.IsNotFound(err) {
			outcome.Status = StatusNotFound
			outcome.Detail = err.Error()
			return outcome
		}
		outcome.Status = StatusError
		outcome.Detail = err.Error()
		return outcome
	}

	offset, length := blob.Origin()
	recordFinding(cfg.Store, target+".origin",
		fmt.Sprintf("offset 0x%x, %d bytes", offset, length),
		"extractor", extractionMethod(cfg.Registry, target))

	data, err := blob.Take()
	if err != nil {
		outcome.Status = StatusError
		outcome.Detail = err.Error()
		return outcome
	}

	vendor, err := fdt.Decode(data)
	if err != nil {
		// Corrupt blob: fatal for this target, a recorded gap for
		// the run.
		outcome.Status = StatusMalformed
		outcome.Detail = err.Error()
		return outcome
	}
	recordFinding(cfg.Store, target+".tree-hash", dtree.MustHash(vendor),
		"decoder", "content hash of the tree decoded from the extracted blob")

	edits := diff.Diff(vendor, cfg.ReferenceTree)
	outcome.Edits = edits
	recordFinding(cfg.Store, target+".delta-count", len(edits),
		"diff-engine", fmt.Sprintf("structural diff against reference %s", cfg.Reference))

	doc, err := compose.Compose(cfg.Reference, edits, cfg.LicenseHeader)
	if err != nil {
		// An unserializable edit must surface; a silently dropped
		// edit would present an incomplete derivative as valid.
		outcome.Status = StatusUnsupportedEdit
		outcome.Detail = err.Error()
		return outcome
	}
	outcome.Document = doc

	result := validate.Validate(ctx, doc, vendor, cfg.Compiler)
	outcome.Validation = result
	recordFinding(cfg.Store, target+".validation", result.String(),
		"validator", "recompiled the derivative and compared the decoded tree to the original")

	if !result.Equivalent {
		outcome.Status = StatusDivergent
		outcome.Detail = result.String()
		return outcome
	}

	outcome.Status = StatusOK
	return outcome
}

func extractionMethod(reg *registry.Registry, target string) string {
	if reg != nil && reg.Has(target) {
		return "sliced at registry-declared offset"
	}
	return "located by signature scan"
}

// recordFinding panics on a provenance violation: every call site in this
// package supplies a source and method, so a failure here is a
// programming error, not a runtime condition.
func recordFinding(store *provenance.Store, key string, value any, source, method string) {
	if err := store.Record(key, value, source, method); err != nil {
		if provenance.IsMissingProvenance(err) {
			panic(err)
		}
		slog.Warn("finding not recorded", "key", key, "error", err)
	}
}
