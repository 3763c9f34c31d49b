package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwtree/fwtree/internal/dtree"
)

// roundTrip asserts the central invariant: applying a diff to the
// reference reproduces the vendor tree.
func roundTrip(t *testing.T, vendor, reference *dtree.Node) {
	t.Helper()

	result := Diff(vendor, reference)
	rebuilt, err := Apply(result, reference)
	require.NoError(t, err)

	diffPath, equal := dtree.FirstDifference(vendor, rebuilt)
	assert.True(t, equal, "round trip diverged at %s", diffPath)
}

func TestApplyRoundTrip(t *testing.T) {
	t.Run("identical trees", func(t *testing.T) {
		roundTrip(t, referenceTree(), referenceTree())
	})

	t.Run("property changes", func(t *testing.T) {
		vendor := referenceTree()
		cpu, _ := vendor.Child("cpu")
		cpu.Properties[0].Value = dtree.U32(800)
		vendor.Properties[0].Value = dtree.String("vendor,board")
		roundTrip(t, vendor, referenceTree())
	})

	t.Run("additions and removals", func(t *testing.T) {
		vendor := referenceTree()
		vendor.Children = vendor.Children[1:] // drop cpu
		vendor.Children = append(vendor.Children, &dtree.Node{
			Name: "leds",
			Children: []*dtree.Node{
				{Name: "status-led", Properties: []dtree.Property{
					{Name: "gpios", Value: dtree.U32(17)},
				}},
			},
		})
		serial, _ := vendor.Child("serial")
		serial.Properties = append(serial.Properties,
			dtree.Property{Name: "dma", Value: dtree.Empty{}})
		roundTrip(t, vendor, referenceTree())
	})

	t.Run("type change only", func(t *testing.T) {
		vendor := referenceTree()
		cpu, _ := vendor.Child("cpu")
		cpu.Properties[0].Value = dtree.String("400")
		roundTrip(t, vendor, referenceTree())
	})

	t.Run("vendor strips everything", func(t *testing.T) {
		roundTrip(t, &dtree.Node{}, referenceTree())
	})

	t.Run("reference is empty", func(t *testing.T) {
		roundTrip(t, referenceTree(), &dtree.Node{})
	})
}

func TestApplyDoesNotMutateReference(t *testing.T) {
	reference := referenceTree()
	vendor := referenceTree()
	cpu, _ := vendor.Child("cpu")
	cpu.Properties[0].Value = dtree.U32(800)

	_, err := Apply(Diff(vendor, reference), reference)
	require.NoError(t, err)

	v, _ := reference.Children[0].Property("clock")
	assert.Equal(t, dtree.U32(400), v, "reference must be immutable under Apply")
}

func TestApplyRejectsMismatchedReference(t *testing.T) {
	tests := []struct {
		name string
		op   Op
	}{
		{"changed with stale old value", Op{
			Kind: Changed, Path: "/cpu/clock",
			Old: dtree.U32(999), New: dtree.U32(800),
		}},
		{"changed on missing property", Op{
			Kind: Changed, Path: "/cpu/absent",
			Old: dtree.U32(1), New: dtree.U32(2),
		}},
		{"added property already present", Op{
			Kind: Added, Path: "/cpu/clock", New: dtree.U32(1),
		}},
		{"added node already present", Op{
			Kind: Added, Path: "/serial", Subtree: &dtree.Node{Name: "serial"},
		}},
		{"removed missing node", Op{
			Kind: Removed, Path: "/pcie", Subtree: &dtree.Node{Name: "pcie"},
		}},
		{"missing parent", Op{
			Kind: Added, Path: "/soc/uart/baud", New: dtree.U32(115200),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(Result{tt.op}, referenceTree())
			assert.Error(t, err)
		})
	}
}
