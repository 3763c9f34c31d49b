// Package compose synthesizes the minimal derivative source document for
// a vendor tree: an include of the unmodified upstream reference plus one
// statement per edit, grouped by target path.
//
// Composition is deterministic: identical inputs produce byte-identical
// output, which is what makes the derivative reproducible and reviewable.
// An edit whose value has no literal form in the target syntax fails with
// UnsupportedEditError instead of being dropped; a dropped edit would
// silently break the round-trip guarantee the validator depends on.
package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fwtree/fwtree/internal/diff"
	"github.com/fwtree/fwtree/internal/dtree"
)

// UnsupportedEditError reports an edit operation whose value cannot be
// serialized into the textual syntax. This surfaces to the caller; no
// document is emitted.
type UnsupportedEditError struct {
	Path   dtree.Path
	Reason string
}

func (e *UnsupportedEditError) Error() string {
	return fmt.Sprintf("unsupported edit at %s: %s", e.Path, e.Reason)
}

// IsUnsupportedEdit reports whether err is (or wraps) an UnsupportedEditError.
func IsUnsupportedEdit(err error) bool {
	var uee *UnsupportedEditError
	return errors.As(err, &uee)
}

// Document is a composed derivative source document. It is created once
// per successful diff and never mutated; if inputs change it is
// regenerated wholesale.
type Document struct {
	Includes         []string
	Edits            diff.Result
	LicenseHeader    string
	GeneratedComment string

	// Source is the rendered document text handed to the compiler.
	Source string
}

// Compose renders the edit script into a derivative document that
// includes the named reference source and encodes only the edits.
func Compose(reference string, edits diff.Result, licenseHeader string) (*Document, error) {
	doc := &Document{
		Includes:      []string{reference},
		Edits:         edits,
		LicenseHeader: licenseHeader,
		GeneratedComment: fmt.Sprintf(
			"Generated derivative of %s: upstream content is included unmodified; only the %d vendor delta(s) below are encoded here.",
			reference, len(edits)),
	}

	root, err := buildEditTree(edits)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	if licenseHeader != "" {
		for _, line := range strings.Split(strings.TrimRight(licenseHeader, "\n"), "\n") {
			b.WriteString(strings.TrimRight("// "+line, " "))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	b.WriteString("// " + doc.GeneratedComment + "\n\n")
	b.WriteString("/dts-v1/;\n\n")
	for _, inc := range doc.Includes {
		fmt.Fprintf(&b, "/include/ %q\n", inc)
	}
	b.WriteByte('\n')

	if len(edits) == 0 {
		b.WriteString("// No vendor deltas: the vendor artifact matches upstream.\n")
	} else {
		b.WriteString("/ {\n")
		if err := writeEditNode(&b, root, 1); err != nil {
			return nil, err
		}
		b.WriteString("};\n")
	}

	doc.Source = b.String()
	return doc, nil
}

// editNode is the sparse tree of override statements, grouping edits that
// share a target path into one node block.
type editNode struct {
	stmts    []stmt
	children map[string]*editNode
	order    []string
}

type stmt struct {
	op diff.Op
}

func buildEditTree(edits diff.Result) (*editNode, error) {
	root := &editNode{children: make(map[string]*editNode)}
	for _, op := range edits {
		// Node ops attach to the parent block (delete-node / full
		// subtree); property ops attach to the owning node block.
		target := op.Path.Parent()
		node := root
		for _, seg := range target.Segments() {
			child, ok := node.children[seg]
			if !ok {
				child = &editNode{children: make(map[string]*editNode)}
				node.children[seg] = child
				node.order = append(node.order, seg)
			}
			node = child
		}
		node.stmts = append(node.stmts, stmt{op: op})
	}
	return root, nil
}

func writeEditNode(b *strings.Builder, node *editNode, depth int) error {
	indent := strings.Repeat("\t", depth)

	for _, s := range node.stmts {
		if err := writeStmt(b, s.op, depth); err != nil {
			return err
		}
	}
	for _, name := range node.order {
		fmt.Fprintf(b, "%s%s {\n", indent, name)
		if err := writeEditNode(b, node.children[name], depth+1); err != nil {
			return err
		}
		fmt.Fprintf(b, "%s};\n", indent)
	}
	return nil
}

// writeStmt emits one edit as a statement plus an explanatory comment.
// The comment is informational only and never parsed back.
func writeStmt(b *strings.Builder, op diff.Op, depth int) error {
	indent := strings.Repeat("\t", depth)
	name := op.Path.Base()

	if op.IsNode() {
		switch op.Kind {
		case diff.Added:
			fmt.Fprintf(b, "%s/* vendor added node %s */\n", indent, op.Path)
			return writeSubtree(b, op.Path, op.Subtree, depth)
		case diff.Removed:
			fmt.Fprintf(b, "%s/* vendor removed node %s */\n", indent, op.Path)
			fmt.Fprintf(b, "%s/delete-node/ %s;\n", indent, name)
			return nil
		default:
			return &UnsupportedEditError{Path: op.Path, Reason: fmt.Sprintf("node op kind %q has no statement form", op.Kind)}
		}
	}

	switch op.Kind {
	case diff.Added:
		fmt.Fprintf(b, "%s/* vendor added property */\n", indent)
		return writeProperty(b, op.Path, name, op.New, depth)
	case diff.Changed:
		fmt.Fprintf(b, "%s/* vendor changed from %s */\n", indent, dtree.FormatValue(op.Old))
		return writeProperty(b, op.Path, name, op.New, depth)
	case diff.Removed:
		fmt.Fprintf(b, "%s/* vendor removed property (was %s) */\n", indent, dtree.FormatValue(op.Old))
		fmt.Fprintf(b, "%s/delete-property/ %s;\n", indent, name)
		return nil
	default:
		return &UnsupportedEditError{Path: op.Path, Reason: fmt.Sprintf("unknown op kind %q", op.Kind)}
	}
}

// writeSubtree emits a full node subtree for a whole-node addition. path
// is the subtree root's absolute path, used in error reports.
func writeSubtree(b *strings.Builder, path dtree.Path, n *dtree.Node, depth int) error {
	indent := strings.Repeat("\t", depth)
	fmt.Fprintf(b, "%s%s {\n", indent, n.Name)
	for _, p := range n.Properties {
		if err := writeProperty(b, path.Child(p.Name), p.Name, p.Value, depth+1); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := writeSubtree(b, path.Child(c.Name), c, depth+1); err != nil {
			return err
		}
	}
	fmt.Fprintf(b, "%s};\n", indent)
	return nil
}

func writeProperty(b *strings.Builder, path dtree.Path, name string, v dtree.Value, depth int) error {
	literal, err := valueLiteral(path, v)
	if err != nil {
		return err
	}
	indent := strings.Repeat("\t", depth)
	if literal == "" {
		fmt.Fprintf(b, "%s%s;\n", indent, name)
		return nil
	}
	fmt.Fprintf(b, "%s%s = %s;\n", indent, name, literal)
	return nil
}

// valueLiteral renders a typed value in the source syntax. An Empty value
// yields "" (a bare flag property).
func valueLiteral(path dtree.Path, v dtree.Value) (string, error) {
	switch val := v.(type) {
	case dtree.Empty:
		return "", nil
	case dtree.String:
		return stringLiteral(path, string(val))
	case dtree.Strings:
		parts := make([]string, len(val))
		for i, s := range val {
			lit, err := stringLiteral(path, s)
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		return strings.Join(parts, ", "), nil
	case dtree.U32:
		return fmt.Sprintf("<0x%x>", uint32(val)), nil
	case dtree.Bytes:
		parts := make([]string, len(val))
		for i, c := range val {
			parts[i] = fmt.Sprintf("%02x", c)
		}
		return "[" + strings.Join(parts, " ") + "]", nil
	default:
		return "", &UnsupportedEditError{Path: path, Reason: fmt.Sprintf("value type %T has no literal form", v)}
	}
}

// stringLiteral quotes a string value. Control characters have no literal
// form in the syntax; an edit carrying one is unsupported rather than
// silently mangled.
func stringLiteral(path dtree.Path, s string) (string, error) {
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return "", &UnsupportedEditError{Path: path,
				Reason: fmt.Sprintf("string contains byte 0x%02x with no literal form", r)}
		}
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`, nil
}
