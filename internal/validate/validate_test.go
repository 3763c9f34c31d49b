package validate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwtree/fwtree/internal/compose"
	"github.com/fwtree/fwtree/internal/diff"
	"github.com/fwtree/fwtree/internal/dtree"
	"github.com/fwtree/fwtree/internal/testutil"
)

func vendorTree() *dtree.Node {
	return &dtree.Node{
		Children: []*dtree.Node{
			{Name: "cpu", Properties: []dtree.Property{
				{Name: "clock", Value: dtree.U32(800)},
			}},
		},
	}
}

func testDocument(t *testing.T) *compose.Document {
	t.Helper()
	edits := diff.Result{
		{Kind: diff.Changed, Path: "/cpu/clock", Old: dtree.U32(400), New: dtree.U32(800)},
	}
	doc, err := compose.Compose("upstream.dts", edits, "")
	require.NoError(t, err)
	return doc
}

func TestValidateEquivalent(t *testing.T) {
	compiler := &testutil.FakeCompiler{Tree: vendorTree()}

	result := Validate(context.Background(), testDocument(t), vendorTree(), compiler)

	assert.True(t, result.Equivalent)
	assert.Equal(t, "equivalent", result.String())
	assert.Equal(t, 1, compiler.Calls)
	assert.Contains(t, compiler.LastSource, "/cpu")
}

// A compiler whose output realizes only part of the edits must be caught:
// the result names the first differing path and blocks acceptance.
func TestValidateDivergentNamesFirstDifference(t *testing.T) {
	incomplete := vendorTree()
	incomplete.Children[0].Properties[0].Value = dtree.U32(400) // edit not applied
	compiler := &testutil.FakeCompiler{Tree: incomplete}

	result := Validate(context.Background(), testDocument(t), vendorTree(), compiler)

	assert.False(t, result.Equivalent)
	assert.Equal(t, dtree.Path("/cpu/clock"), result.FirstDifference)
	assert.Equal(t, "divergent at /cpu/clock", result.String())
}

func TestValidateCompilerFailure(t *testing.T) {
	compiler := &testutil.FakeCompiler{
		Err: &CompileError{Line: 12, Column: 3, Message: "syntax error"},
	}

	result := Validate(context.Background(), testDocument(t), vendorTree(), compiler)

	assert.False(t, result.Equivalent)
	assert.Contains(t, result.Reason, "compile failed")
	assert.Contains(t, result.Reason, "12:3")
}

func TestValidateMissingInclude(t *testing.T) {
	compiler := &testutil.FakeCompiler{
		Err: &MissingIncludeError{Include: "upstream.dts"},
	}

	result := Validate(context.Background(), testDocument(t), vendorTree(), compiler)

	assert.False(t, result.Equivalent)
	assert.Contains(t, result.Reason, `missing include "upstream.dts"`)
}

func TestValidateTimeout(t *testing.T) {
	compiler := &testutil.FakeCompiler{
		Tree:  vendorTree(),
		Delay: 200 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result := Validate(ctx, testDocument(t), vendorTree(), compiler)

	assert.False(t, result.Equivalent)
	assert.Equal(t, ReasonTimeout, result.Reason)
}

func TestValidateUndecodableOutput(t *testing.T) {
	compiler := &testutil.FakeCompiler{Output: []byte("not a tree blob")}

	result := Validate(context.Background(), testDocument(t), vendorTree(), compiler)

	assert.False(t, result.Equivalent)
	assert.Contains(t, result.Reason, "does not decode")
}

func TestClassifyCompilerError(t *testing.T) {
	t.Run("location diagnostic", func(t *testing.T) {
		err := classifyCompilerError("Error: derivative.dts:12.3-9 syntax error", assert.AnError)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 12, ce.Line)
		assert.Equal(t, 3, ce.Column)
		assert.Equal(t, "syntax error", ce.Message)
	})

	t.Run("missing include", func(t *testing.T) {
		err := classifyCompilerError(`Couldn't open "upstream.dts": No such file or directory`, assert.AnError)
		var mie *MissingIncludeError
		require.ErrorAs(t, err, &mie)
		assert.Equal(t, "upstream.dts", mie.Include)
	})

	t.Run("unstructured stderr", func(t *testing.T) {
		err := classifyCompilerError("something went wrong", assert.AnError)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 0, ce.Line)
		assert.Equal(t, "something went wrong", ce.Message)
	})

	t.Run("empty stderr falls back to exec error", func(t *testing.T) {
		err := classifyCompilerError("", assert.AnError)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Contains(t, ce.Message, assert.AnError.Error())
	})
}
