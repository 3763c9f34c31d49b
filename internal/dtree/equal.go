package dtree

// Equal reports whether two trees are semantically equivalent: same node
// set by path, same property set by name, strictly equal typed values.
// Sibling and property order do not participate (both are matched by name),
// so a reordered but otherwise identical tree compares equal.
func Equal(a, b *Node) bool {
	_, equal := FirstDifference(a, b)
	return equal
}

// FirstDifference compares two trees and returns the path of the first
// difference found, in a deterministic traversal order (a's property order,
// then a's child order, then b-only names). The second return is true when
// the trees are equal, in which case the path is "".
//
// "First" is defined by the traversal, not by any source ordering; it
// exists so a divergence can be reported as a single concrete path.
func FirstDifference(a, b *Node) (Path, bool) {
	return firstDifference(RootPath, a, b)
}

func firstDifference(p Path, a, b *Node) (Path, bool) {
	for _, prop := range a.Properties {
		bv, ok := b.Property(prop.Name)
		if !ok || !ValueEqual(prop.Value, bv) {
			return p.Child(prop.Name), false
		}
	}
	for _, prop := range b.Properties {
		if _, ok := a.Property(prop.Name); !ok {
			return p.Child(prop.Name), false
		}
	}
	for _, ac := range a.Children {
		bc, ok := b.Child(ac.Name)
		if !ok {
			return p.Child(ac.Name), false
		}
		if diffPath, equal := firstDifference(p.Child(ac.Name), ac, bc); !equal {
			return diffPath, false
		}
	}
	for _, bc := range b.Children {
		if _, ok := a.Child(bc.Name); !ok {
			return p.Child(bc.Name), false
		}
	}
	return "", true
}
