// Package validate closes the pipeline's correctness loop: it recompiles
// a derivative document with an external compiler, decodes the resulting
// binary, and checks tree equality against the original vendor tree.
//
// This is the only objective correctness signal available in a black-box
// setting: a Divergent result means either a diff-engine bug or a
// composer serialization gap, and it blocks acceptance of the derivative.
// Divergence is a reportable outcome, not an error; the run continues and
// the report flags the derivative as not verified.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fwtree/fwtree/internal/compose"
	"github.com/fwtree/fwtree/internal/dtree"
	"github.com/fwtree/fwtree/internal/fdt"
)

// Compiler compiles derivative document text into a binary blob. The call
// blocks until the compiler exits or ctx is done; implementations must
// honor ctx so an unbounded hang cannot stall the pipeline.
//
// Failures are structured: a syntax error carries line/column via
// CompileError, a missing reference carries the include name via
// MissingIncludeError.
type Compiler interface {
	Compile(ctx context.Context, source string) ([]byte, error)
}

// CompileError is a structured syntax failure from the external compiler.
type CompileError struct {
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("compile error at %d:%d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("compile error: %s", e.Message)
}

// MissingIncludeError reports that the compiler could not resolve an
// included reference source.
type MissingIncludeError struct {
	Include string
}

func (e *MissingIncludeError) Error() string {
	return fmt.Sprintf("missing include %q", e.Include)
}

// Reasons attached to Divergent results that do not stem from a tree
// comparison.
const (
	ReasonTimeout = "timeout"
)

// Result is the outcome of semantic validation: Equivalent, or Divergent
// with the first differing path or a failure reason.
type Result struct {
	Equivalent bool

	// FirstDifference is the path of the first differing node or
	// property when the trees compare unequal.
	FirstDifference dtree.Path

	// Reason describes a divergence that is not a tree difference:
	// compiler failure, undecodable output, or ReasonTimeout.
	Reason string
}

func equivalent() Result {
	return Result{Equivalent: true}
}

func divergent(reason string) Result {
	return Result{Equivalent: false, Reason: reason}
}

// String renders the result for reports.
func (r Result) String() string {
	if r.Equivalent {
		return "equivalent"
	}
	if r.FirstDifference != "" {
		return fmt.Sprintf("divergent at %s", r.FirstDifference)
	}
	return fmt.Sprintf("divergent: %s", r.Reason)
}

// Validate recompiles the derivative document and asserts that the result
// decodes to a tree equal to original. Any compiler failure, including a
// timeout, yields a Divergent result with the reason attached; Validate
// itself never fails.
func Validate(ctx context.Context, doc *compose.Document, original *dtree.Node, compiler Compiler) Result {
	binary, err := compiler.Compile(ctx, doc.Source)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("compiler timed out during validation")
			return divergent(ReasonTimeout)
		}
		slog.Warn("compiler failed during validation", "error", err)
		return divergent(fmt.Sprintf("compile failed: %v", err))
	}

	recompiled, err := fdt.Decode(binary)
	if err != nil {
		return divergent(fmt.Sprintf("recompiled binary does not decode: %v", err))
	}

	diffPath, equal := dtree.FirstDifference(original, recompiled)
	if !equal {
		slog.Debug("validation divergence", "path", diffPath)
		return Result{Equivalent: false, FirstDifference: diffPath}
	}
	return equivalent()
}
