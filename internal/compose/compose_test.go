package compose

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwtree/fwtree/internal/diff"
	"github.com/fwtree/fwtree/internal/dtree"
)

const testLicense = "SPDX-License-Identifier: GPL-2.0\nCopyright (C) 2014 Upstream Authors"

// vendorEdits is a representative edit script: a changed cell, a
// whole-subtree add, a flag-property add, and both kinds of removal.
// Already in path lexical order, as diff.Diff emits.
func vendorEdits() diff.Result {
	return diff.Result{
		{Kind: diff.Changed, Path: "/cpu/clock", Old: dtree.U32(400), New: dtree.U32(800)},
		{Kind: diff.Added, Path: "/leds", Subtree: &dtree.Node{
			Name: "leds",
			Properties: []dtree.Property{
				{Name: "compatible", Value: dtree.String("gpio-leds")},
			},
		}},
		{Kind: diff.Added, Path: "/serial/dma", New: dtree.Empty{}},
		{Kind: diff.Removed, Path: "/serial/reg", Old: dtree.U32(0x10000000)},
		{Kind: diff.Removed, Path: "/wifi", Subtree: &dtree.Node{Name: "wifi"}},
	}
}

func TestComposeGolden(t *testing.T) {
	doc, err := Compose("upstream-board.dts", vendorEdits(), testLicense)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "derivative", []byte(doc.Source))
}

func TestComposeDeterministic(t *testing.T) {
	first, err := Compose("upstream-board.dts", vendorEdits(), testLicense)
	require.NoError(t, err)
	second, err := Compose("upstream-board.dts", vendorEdits(), testLicense)
	require.NoError(t, err)

	assert.Equal(t, first.Source, second.Source, "compose must be byte-identical across invocations")
	assert.Equal(t, first.GeneratedComment, second.GeneratedComment)
}

func TestComposeDocumentFields(t *testing.T) {
	doc, err := Compose("upstream-board.dts", vendorEdits(), testLicense)
	require.NoError(t, err)

	assert.Equal(t, []string{"upstream-board.dts"}, doc.Includes)
	assert.Len(t, doc.Edits, 5)
	assert.Equal(t, testLicense, doc.LicenseHeader)
	assert.Contains(t, doc.GeneratedComment, "5 vendor delta(s)")
}

func TestComposeEmptyDiff(t *testing.T) {
	doc, err := Compose("upstream-board.dts", nil, testLicense)
	require.NoError(t, err)

	assert.Contains(t, doc.Source, `/include/ "upstream-board.dts"`)
	assert.Contains(t, doc.Source, "No vendor deltas")
	assert.NotContains(t, doc.Source, "/ {")
}

func TestComposeEscapesStrings(t *testing.T) {
	edits := diff.Result{
		{Kind: diff.Added, Path: "/chosen/bootargs", New: dtree.String(`console="ttyS0" root=\dev`)},
	}
	doc, err := Compose("ref.dts", edits, "")
	require.NoError(t, err)
	assert.Contains(t, doc.Source, `bootargs = "console=\"ttyS0\" root=\\dev";`)
}

// A value the syntax has no literal form for must surface as an error;
// emitting a document with a silently dropped edit would break the
// round-trip guarantee.
func TestComposeUnsupportedEdit(t *testing.T) {
	edits := diff.Result{
		{Kind: diff.Added, Path: "/chosen/stdout", New: dtree.String("tty\x00S0")},
	}

	doc, err := Compose("ref.dts", edits, "")
	require.Error(t, err)
	assert.True(t, IsUnsupportedEdit(err))
	assert.Nil(t, doc, "no document may be emitted alongside an unsupported edit")
}

func TestComposeUnsupportedEditInSubtree(t *testing.T) {
	edits := diff.Result{
		{Kind: diff.Added, Path: "/vendor", Subtree: &dtree.Node{
			Name: "vendor",
			Properties: []dtree.Property{
				{Name: "blob-tag", Value: dtree.String("\x01\x02")},
			},
		}},
	}

	_, err := Compose("ref.dts", edits, "")
	require.Error(t, err)
	assert.True(t, IsUnsupportedEdit(err))
}
