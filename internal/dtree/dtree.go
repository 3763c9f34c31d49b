package dtree

import (
	"strings"
)

// Path identifies a node or property by its slash-separated segment names.
// The root node is "/". A property path is its owning node's path plus the
// property name as a final segment.
type Path string

// RootPath is the path of the root node.
const RootPath Path = "/"

// Child returns the path of a child segment under p.
func (p Path) Child(name string) Path {
	if p == RootPath {
		return Path("/" + name)
	}
	return Path(string(p) + "/" + name)
}

// Parent returns the path with the final segment removed. The parent of
// the root is the root.
func (p Path) Parent() Path {
	if p == RootPath {
		return RootPath
	}
	idx := strings.LastIndexByte(string(p), '/')
	if idx <= 0 {
		return RootPath
	}
	return Path(string(p)[:idx])
}

// Base returns the final segment of the path, or "" for the root.
func (p Path) Base() string {
	if p == RootPath {
		return ""
	}
	idx := strings.LastIndexByte(string(p), '/')
	return string(p)[idx+1:]
}

// Segments splits the path into its segment names. The root yields nil.
func (p Path) Segments() []string {
	if p == RootPath {
		return nil
	}
	return strings.Split(strings.TrimPrefix(string(p), "/"), "/")
}

// Property is a single named, typed value on a node. Property order within
// a node is the encoding's order; it is preserved for readable output but
// does not participate in equality.
type Property struct {
	Name  string
	Value Value
}

// Node is one node of a decoded tree. The root node has Name "".
//
// Nodes are treated as immutable once built: the decoder and the diff
// engine's Apply construct fresh trees rather than mutating inputs.
type Node struct {
	Name       string
	Properties []Property
	Children   []*Node
}

// Property returns the value of the named property and whether it exists.
func (n *Node) Property(name string) (Value, bool) {
	for _, p := range n.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Child returns the named child and whether it exists. Siblings are a set
// keyed by name; the decoder rejects duplicate sibling names.
func (n *Node) Child(name string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Lookup walks the tree from n along the given path. It returns the node
// at that path, or nil and false if any segment is missing.
func (n *Node) Lookup(p Path) (*Node, bool) {
	cur := n
	for _, seg := range p.Segments() {
		next, ok := cur.Child(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Clone returns a deep copy of the subtree rooted at n. The copy shares no
// storage with the original, so callers may hold it across pipeline stages
// without aliasing an input tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Name: n.Name}
	if len(n.Properties) > 0 {
		out.Properties = make([]Property, len(n.Properties))
		for i, p := range n.Properties {
			out.Properties[i] = Property{Name: p.Name, Value: CloneValue(p.Value)}
		}
	}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Walk visits every node of the subtree in depth-first order, parents
// before children, calling fn with each node's path. Walk stops early if
// fn returns false.
func (n *Node) Walk(fn func(path Path, node *Node) bool) {
	n.walk(RootPath, fn)
}

func (n *Node) walk(p Path, fn func(Path, *Node) bool) bool {
	if !fn(p, n) {
		return false
	}
	for _, c := range n.Children {
		if !c.walk(p.Child(c.Name), fn) {
			return false
		}
	}
	return true
}

// NodeCount returns the number of nodes in the subtree, including n.
func (n *Node) NodeCount() int {
	count := 1
	for _, c := range n.Children {
		count += c.NodeCount()
	}
	return count
}
