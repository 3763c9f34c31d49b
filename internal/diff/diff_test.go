package diff

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwtree/fwtree/internal/dtree"
)

func referenceTree() *dtree.Node {
	return &dtree.Node{
		Properties: []dtree.Property{
			{Name: "model", Value: dtree.String("upstream,board")},
		},
		Children: []*dtree.Node{
			{
				Name: "cpu",
				Properties: []dtree.Property{
					{Name: "clock", Value: dtree.U32(400)},
				},
			},
			{
				Name: "serial",
				Properties: []dtree.Property{
					{Name: "status", Value: dtree.String("okay")},
					{Name: "reg", Value: dtree.U32(0x10000000)},
				},
			},
		},
	}
}

func TestDiffIdenticalTreesIsEmpty(t *testing.T) {
	result := Diff(referenceTree(), referenceTree())
	assert.True(t, result.Empty())
}

// Vendor bumps the cpu clock and adds a leds node: the diff is exactly
// one changed property and one whole-subtree add.
func TestDiffChangeAndSubtreeAdd(t *testing.T) {
	vendor := referenceTree()
	cpu, _ := vendor.Child("cpu")
	cpu.Properties[0].Value = dtree.U32(800)
	vendor.Children = append(vendor.Children, &dtree.Node{
		Name: "leds",
		Properties: []dtree.Property{
			{Name: "compatible", Value: dtree.String("gpio-leds")},
		},
		Children: []*dtree.Node{
			{Name: "status-led", Properties: []dtree.Property{
				{Name: "gpios", Value: dtree.U32(17)},
			}},
		},
	})

	result := Diff(vendor, referenceTree())
	require.Len(t, result, 2)

	assert.Equal(t, Changed, result[0].Kind)
	assert.Equal(t, dtree.Path("/cpu/clock"), result[0].Path)
	assert.Equal(t, dtree.U32(400), result[0].Old)
	assert.Equal(t, dtree.U32(800), result[0].New)

	assert.Equal(t, Added, result[1].Kind)
	assert.Equal(t, dtree.Path("/leds"), result[1].Path)
	require.True(t, result[1].IsNode())
	assert.Equal(t, 2, result[1].Subtree.NodeCount(), "subtree op must carry the whole subtree, not per-leaf ops")
}

func TestDiffRemovals(t *testing.T) {
	vendor := referenceTree()
	// Drop the serial node and the root model property.
	vendor.Children = vendor.Children[:1]
	vendor.Properties = nil

	result := Diff(vendor, referenceTree())
	require.Len(t, result, 2)

	assert.Equal(t, Removed, result[0].Kind)
	assert.Equal(t, dtree.Path("/model"), result[0].Path)
	assert.Equal(t, dtree.String("upstream,board"), result[0].Old)

	assert.Equal(t, Removed, result[1].Kind)
	assert.Equal(t, dtree.Path("/serial"), result[1].Path)
	assert.True(t, result[1].IsNode())
}

// A string "0x8000" and the integer 0x8000 at the same path must be
// reported as changed, never treated as equal.
func TestDiffStrictTyping(t *testing.T) {
	vendor := &dtree.Node{Properties: []dtree.Property{
		{Name: "load-addr", Value: dtree.String("0x8000")},
	}}
	reference := &dtree.Node{Properties: []dtree.Property{
		{Name: "load-addr", Value: dtree.U32(0x8000)},
	}}

	result := Diff(vendor, reference)
	require.Len(t, result, 1)
	assert.Equal(t, Changed, result[0].Kind)
	assert.Equal(t, dtree.U32(0x8000), result[0].Old)
	assert.Equal(t, dtree.String("0x8000"), result[0].New)
}

func TestDiffIgnoresChildOrder(t *testing.T) {
	vendor := referenceTree()
	vendor.Children[0], vendor.Children[1] = vendor.Children[1], vendor.Children[0]

	result := Diff(vendor, referenceTree())
	assert.True(t, result.Empty(), "reordered children without content change must diff empty")
}

func TestDiffResultSortedByPath(t *testing.T) {
	vendor := referenceTree()
	serial, _ := vendor.Child("serial")
	serial.Properties[0].Value = dtree.String("disabled")
	cpu, _ := vendor.Child("cpu")
	cpu.Properties = append(cpu.Properties, dtree.Property{Name: "boost", Value: dtree.Empty{}})
	vendor.Children = append(vendor.Children, &dtree.Node{Name: "aliases"})

	result := Diff(vendor, referenceTree())
	paths := make([]string, len(result))
	for i, op := range result {
		paths[i] = string(op.Path)
	}
	assert.True(t, sort.StringsAreSorted(paths), "result must be in path lexical order, got %v", paths)
}

func TestDiffOpsDoNotAliasInputs(t *testing.T) {
	vendor := referenceTree()
	vendor.Children = append(vendor.Children, &dtree.Node{
		Name:       "leds",
		Properties: []dtree.Property{{Name: "gpios", Value: dtree.Bytes{1, 2}}},
	})

	result := Diff(vendor, referenceTree())
	require.Len(t, result, 1)

	// Mutating the vendor tree after the diff must not change the op.
	vendor.Children[2].Properties[0].Value = dtree.Bytes{9, 9}
	v, _ := result[0].Subtree.Property("gpios")
	assert.Equal(t, dtree.Bytes{1, 2}, v)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "changed /cpu/clock: 0x190 -> 0x320", Op{
		Kind: Changed, Path: "/cpu/clock",
		Old: dtree.U32(400), New: dtree.U32(800),
	}.String())
	assert.Equal(t, "added node /leds (1 nodes)", Op{
		Kind: Added, Path: "/leds", Subtree: &dtree.Node{Name: "leds"},
	}.String())
}
