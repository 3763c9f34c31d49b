package dtree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for content-addressed tree identity. Version suffix
// enables future algorithm migration.
const domainTree = "fwtree/tree/v1"

// Hash computes a content-addressed identifier for a tree. Trees that are
// Equal produce the same hash regardless of sibling or property order:
// both axes are sorted by name before marshaling.
//
// Format: SHA256(domain + 0x00 + canonicalJSON). The null separator
// prevents domain/data boundary ambiguity.
func Hash(n *Node) (string, error) {
	canonical, err := MarshalCanonical(n)
	if err != nil {
		return "", fmt.Errorf("tree hash: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(domainTree))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustHash is like Hash but panics on error. Use only in tests or when the
// tree is known to be valid.
func MustHash(n *Node) string {
	id, err := Hash(n)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalCanonical produces canonical JSON for a tree, suitable for
// content-addressed hashing:
//
//  1. Properties and children sorted by byte-wise name order
//  2. Strings NFC normalized
//  3. No HTML escaping
//  4. Typed values tagged with their type name, so String("0x8000") and
//     U32(0x8000) never collide
func MarshalCanonical(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalNode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalNode(buf *bytes.Buffer, n *Node) error {
	buf.WriteString(`{"name":`)
	if err := writeCanonicalString(buf, n.Name); err != nil {
		return err
	}

	props := make([]Property, len(n.Properties))
	copy(props, n.Properties)
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })

	buf.WriteString(`,"properties":[`)
	for i, p := range props {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"name":`)
		if err := writeCanonicalString(buf, p.Name); err != nil {
			return err
		}
		buf.WriteString(`,"type":`)
		if err := writeCanonicalString(buf, TypeName(p.Value)); err != nil {
			return err
		}
		buf.WriteString(`,"value":`)
		if err := marshalValue(buf, p.Value); err != nil {
			return fmt.Errorf("property %q: %w", p.Name, err)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')

	children := make([]*Node, len(n.Children))
	copy(children, n.Children)
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

	buf.WriteString(`,"children":[`)
	for i, c := range children {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshalNode(buf, c); err != nil {
			return err
		}
	}
	buf.WriteString(`]}`)
	return nil
}

func marshalValue(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case Empty:
		buf.WriteString("null")
		return nil
	case String:
		return writeCanonicalString(buf, string(val))
	case Strings:
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, s); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case U32:
		fmt.Fprintf(buf, "%d", uint32(val))
		return nil
	case Bytes:
		return writeCanonicalString(buf, hex.EncodeToString(val))
	default:
		return fmt.Errorf("unknown value type: %T", v)
	}
}

// writeCanonicalString writes an NFC-normalized JSON string without HTML
// escaping.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return fmt.Errorf("marshal string %q: %w", s, err)
	}
	// Encoder appends a newline; strip it.
	buf.Write(bytes.TrimRight(b.Bytes(), "\n"))
	return nil
}
