// Package testutil provides test doubles shared across packages, chiefly
// the deterministic fake compiler that lets the semantic validator be
// tested without invoking a real external compiler.
package testutil

import (
	"context"
	"time"

	"github.com/fwtree/fwtree/internal/dtree"
	"github.com/fwtree/fwtree/internal/fdt"
)

// FakeCompiler is a deterministic stand-in for the external compiler.
// By default it ignores the source text and emits the encoding of Tree,
// simulating a compiler that faithfully realizes the derivative.
//
// Err, Output, and Delay override that behavior for failure-path tests.
type FakeCompiler struct {
	// Tree is encoded and returned when Err and Output are unset.
	Tree *dtree.Node

	// Output, when non-nil, is returned verbatim (use for undecodable
	// compiler output).
	Output []byte

	// Err, when set, fails every Compile call.
	Err error

	// Delay blocks each call before responding, so ctx deadlines can be
	// exercised deterministically.
	Delay time.Duration

	// Calls counts Compile invocations.
	Calls int

	// LastSource records the most recent source text handed in.
	LastSource string
}

// Compile implements validate.Compiler.
func (f *FakeCompiler) Compile(ctx context.Context, source string) ([]byte, error) {
	f.Calls++
	f.LastSource = source

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Output != nil {
		return f.Output, nil
	}
	return fdt.Encode(f.Tree)
}
