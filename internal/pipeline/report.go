package pipeline

import (
	"fmt"
	"strings"

	"github.com/fwtree/fwtree/internal/compose"
	"github.com/fwtree/fwtree/internal/diff"
	"github.com/fwtree/fwtree/internal/validate"
)

// Status classifies a target's outcome.
type Status string

const (
	// StatusOK means a derivative was composed and verified equivalent.
	StatusOK Status = "ok"
	// StatusNotFound means the target blob is absent from the image.
	StatusNotFound Status = "not found"
	// StatusMalformed means the blob was located but does not decode.
	StatusMalformed Status = "malformed"
	// StatusUnsupportedEdit means the composer could not serialize an
	// edit; no derivative was emitted.
	StatusUnsupportedEdit Status = "unsupported edit"
	// StatusDivergent means the derivative recompiled to something
	// other than the original tree and must not be accepted.
	StatusDivergent Status = "divergent"
	// StatusError covers unexpected per-target failures.
	StatusError Status = "error"
)

// TargetOutcome is one target's result within a run.
type TargetOutcome struct {
	Target string
	Status Status
	Detail string

	Edits      diff.Result
	Document   *compose.Document
	Validation validate.Result
}

// Verified reports whether the target ended with a derivative that is
// verified equivalent to the original.
func (o TargetOutcome) Verified() bool {
	return o.Status == StatusOK
}

// Report is the user-visible outcome of a run: either every target has a
// derivative plus an equivalent validation, or the report states exactly
// which step failed and why. A partial derivative is never presented as
// valid.
type Report struct {
	RunID     string
	Reference string
	Outcomes  []TargetOutcome
}

// Verified reports whether every processed target verified equivalent.
func (r *Report) Verified() bool {
	for _, o := range r.Outcomes {
		if !o.Verified() {
			return false
		}
	}
	return len(r.Outcomes) > 0
}

// Text renders the human-readable report.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (reference %s)\n", r.RunID, r.Reference)

	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusOK:
			fmt.Fprintf(&b, "  %s: verified equivalent (%d vendor delta(s))\n", o.Target, len(o.Edits))
		case StatusDivergent:
			fmt.Fprintf(&b, "  %s: NOT verified equivalent (%s)\n", o.Target, o.Detail)
		default:
			fmt.Fprintf(&b, "  %s: %s", o.Target, o.Status)
			if o.Detail != "" {
				fmt.Fprintf(&b, " (%s)", o.Detail)
			}
			b.WriteByte('\n')
		}
	}

	if r.Verified() {
		b.WriteString("result: all derivatives verified equivalent\n")
	} else {
		b.WriteString("result: NOT verified equivalent\n")
	}
	return b.String()
}
