package diff

import (
	"fmt"

	"github.com/fwtree/fwtree/internal/dtree"
)

// Apply replays an edit script onto a reference tree and returns the
// resulting tree. The reference is not mutated; the result is a fresh
// tree. For any (vendor, reference) pair,
// Apply(Diff(vendor, reference), reference) is equal to vendor.
func Apply(result Result, reference *dtree.Node) (*dtree.Node, error) {
	out := reference.Clone()
	for _, op := range result {
		if err := applyOp(out, op); err != nil {
			return nil, fmt.Errorf("apply %s %s: %w", op.Kind, op.Path, err)
		}
	}
	return out, nil
}

func applyOp(root *dtree.Node, op Op) error {
	parent, ok := root.Lookup(op.Path.Parent())
	if !ok {
		return fmt.Errorf("parent node %s not present", op.Path.Parent())
	}
	name := op.Path.Base()

	if op.IsNode() {
		switch op.Kind {
		case Added:
			if _, exists := parent.Child(name); exists {
				return fmt.Errorf("node already present")
			}
			parent.Children = append(parent.Children, op.Subtree.Clone())
			return nil
		case Removed:
			for i, c := range parent.Children {
				if c.Name == name {
					parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
					return nil
				}
			}
			return fmt.Errorf("node not present")
		default:
			return fmt.Errorf("node ops must be added or removed")
		}
	}

	switch op.Kind {
	case Added:
		if _, exists := parent.Property(name); exists {
			return fmt.Errorf("property already present")
		}
		parent.Properties = append(parent.Properties, dtree.Property{
			Name:  name,
			Value: dtree.CloneValue(op.New),
		})
		return nil
	case Removed:
		for i, p := range parent.Properties {
			if p.Name == name {
				parent.Properties = append(parent.Properties[:i], parent.Properties[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("property not present")
	case Changed:
		for i, p := range parent.Properties {
			if p.Name == name {
				if !dtree.ValueEqual(p.Value, op.Old) {
					return fmt.Errorf("current value %s does not match recorded old value %s",
						dtree.FormatValue(p.Value), dtree.FormatValue(op.Old))
				}
				parent.Properties[i].Value = dtree.CloneValue(op.New)
				return nil
			}
		}
		return fmt.Errorf("property not present")
	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
}
