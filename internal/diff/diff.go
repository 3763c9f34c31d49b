// Package diff computes a minimal edit script between a vendor tree and
// an upstream reference tree.
//
// Nodes present in both trees at the same path are compared
// property-by-property with strict typed equality; a node present in only
// one tree is emitted as a single whole-subtree op rather than expanded
// into every leaf, keeping derivative documents minimal and readable.
// Sibling order is ignored for matching (siblings are keyed by name) and
// the result is sorted by path for determinism.
//
// Re-applying a Result to the reference tree reproduces the vendor tree
// exactly (Apply); diffing a tree against itself yields an empty Result.
package diff

import (
	"fmt"
	"sort"

	"github.com/fwtree/fwtree/internal/dtree"
)

// Kind tags an edit operation.
type Kind string

const (
	// Added marks a property or subtree present only in the vendor tree.
	Added Kind = "added"
	// Removed marks a property or subtree present only in the reference.
	Removed Kind = "removed"
	// Changed marks a property present in both with different typed values.
	Changed Kind = "changed"
)

// Op is one edit operation. Property ops carry Old and/or New values;
// whole-subtree ops carry the Subtree instead.
type Op struct {
	Kind Kind
	Path dtree.Path

	// Old is the reference-side value for Removed and Changed property ops.
	Old dtree.Value
	// New is the vendor-side value for Added and Changed property ops.
	New dtree.Value

	// Subtree is the full node payload for node-level Added and Removed
	// ops; nil for property ops.
	Subtree *dtree.Node
}

// IsNode reports whether the op covers a whole subtree rather than a
// single property.
func (o Op) IsNode() bool {
	return o.Subtree != nil
}

// String renders the op for reports and logs.
func (o Op) String() string {
	switch {
	case o.IsNode() && o.Kind == Added:
		return fmt.Sprintf("added node %s (%d nodes)", o.Path, o.Subtree.NodeCount())
	case o.IsNode() && o.Kind == Removed:
		return fmt.Sprintf("removed node %s (%d nodes)", o.Path, o.Subtree.NodeCount())
	case o.Kind == Added:
		return fmt.Sprintf("added %s = %s", o.Path, dtree.FormatValue(o.New))
	case o.Kind == Removed:
		return fmt.Sprintf("removed %s (was %s)", o.Path, dtree.FormatValue(o.Old))
	default:
		return fmt.Sprintf("changed %s: %s -> %s", o.Path, dtree.FormatValue(o.Old), dtree.FormatValue(o.New))
	}
}

// Result is an ordered edit script, sorted by path lexical order.
type Result []Op

// Empty reports whether the edit script has no operations.
func (r Result) Empty() bool {
	return len(r) == 0
}

// Diff compares a vendor tree against a reference tree and returns the
// edit script that turns the reference into the vendor.
func Diff(vendor, reference *dtree.Node) Result {
	var result Result
	diffNodes(&result, dtree.RootPath, vendor, reference)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Kind < result[j].Kind
	})
	return result
}

// diffNodes compares two nodes known to sit at the same path. Properties
// and children are walked in reference order first so removals surface in
// upstream order, then vendor-only names follow in vendor order; the final
// sort in Diff makes the overall ordering path-lexical either way.
func diffNodes(result *Result, path dtree.Path, vendor, reference *dtree.Node) {
	for _, refProp := range reference.Properties {
		venValue, ok := vendor.Property(refProp.Name)
		switch {
		case !ok:
			*result = append(*result, Op{
				Kind: Removed,
				Path: path.Child(refProp.Name),
				Old:  dtree.CloneValue(refProp.Value),
			})
		case !dtree.ValueEqual(venValue, refProp.Value):
			*result = append(*result, Op{
				Kind: Changed,
				Path: path.Child(refProp.Name),
				Old:  dtree.CloneValue(refProp.Value),
				New:  dtree.CloneValue(venValue),
			})
		}
	}
	for _, venProp := range vendor.Properties {
		if _, ok := reference.Property(venProp.Name); !ok {
			*result = append(*result, Op{
				Kind: Added,
				Path: path.Child(venProp.Name),
				New:  dtree.CloneValue(venProp.Value),
			})
		}
	}

	for _, refChild := range reference.Children {
		venChild, ok := vendor.Child(refChild.Name)
		if !ok {
			*result = append(*result, Op{
				Kind:    Removed,
				Path:    path.Child(refChild.Name),
				Subtree: refChild.Clone(),
			})
			continue
		}
		diffNodes(result, path.Child(refChild.Name), venChild, refChild)
	}
	for _, venChild := range vendor.Children {
		if _, ok := reference.Child(venChild.Name); !ok {
			*result = append(*result, Op{
				Kind:    Added,
				Path:    path.Child(venChild.Name),
				Subtree: venChild.Clone(),
			})
		}
	}
}
