package fdt

import (
	"bytes"
	"encoding/binary"

	"github.com/fwtree/fwtree/internal/dtree"
)

// maxDepth bounds node nesting. Real board trees are a handful of levels
// deep; anything past this is corrupt or adversarial input.
const maxDepth = 64

// Decode parses a blob's binary encoding into a tree. It is a pure
// function over its input: the returned tree shares no storage with data.
func Decode(data []byte) (*dtree.Node, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	strings := data[h.offStrings : h.offStrings+h.sizeStrings]
	d := &decoder{
		data:    data,
		strings: strings,
		pos:     int(h.offStruct),
		end:     int(h.offStruct + h.sizeStruct),
	}
	return d.decodeTree()
}

func parseHeader(data []byte) (*header, error) {
	if len(data) < headerSize {
		return nil, malformed(0, "blob too short for header: %d bytes", len(data))
	}

	h := &header{
		magic:           binary.BigEndian.Uint32(data[0:]),
		totalSize:       binary.BigEndian.Uint32(data[4:]),
		offStruct:       binary.BigEndian.Uint32(data[8:]),
		offStrings:      binary.BigEndian.Uint32(data[12:]),
		offMemRsvmap:    binary.BigEndian.Uint32(data[16:]),
		version:         binary.BigEndian.Uint32(data[20:]),
		lastCompVersion: binary.BigEndian.Uint32(data[24:]),
		bootCPUIDPhys:   binary.BigEndian.Uint32(data[28:]),
		sizeStrings:     binary.BigEndian.Uint32(data[32:]),
		sizeStruct:      binary.BigEndian.Uint32(data[36:]),
	}

	if h.magic != Magic {
		return nil, malformed(0, "bad magic 0x%08x, want 0x%08x", h.magic, Magic)
	}
	if int(h.totalSize) > len(data) {
		return nil, malformed(4, "declared size %d exceeds blob length %d", h.totalSize, len(data))
	}
	if h.totalSize < headerSize {
		return nil, malformed(4, "declared size %d smaller than header", h.totalSize)
	}
	if h.offStruct+h.sizeStruct < h.offStruct || h.offStruct+h.sizeStruct > h.totalSize {
		return nil, malformed(8, "structure block [%d, %d) outside blob of size %d",
			h.offStruct, h.offStruct+h.sizeStruct, h.totalSize)
	}
	if h.offStrings+h.sizeStrings < h.offStrings || h.offStrings+h.sizeStrings > h.totalSize {
		return nil, malformed(12, "string block [%d, %d) outside blob of size %d",
			h.offStrings, h.offStrings+h.sizeStrings, h.totalSize)
	}
	if h.offStruct%4 != 0 {
		return nil, malformed(8, "structure block offset %d not 4-byte aligned", h.offStruct)
	}
	return h, nil
}

type decoder struct {
	data    []byte
	strings []byte
	pos     int
	end     int
}

func (d *decoder) decodeTree() (*dtree.Node, error) {
	tok, err := d.token()
	if err != nil {
		return nil, err
	}
	if tok != tokenBeginNode {
		return nil, malformed(d.pos-4, "structure block does not start with a begin-node marker (token 0x%x)", tok)
	}

	root, err := d.decodeNode(0)
	if err != nil {
		return nil, err
	}
	if root.Name != "" {
		return nil, malformed(int(d.pos), "root node has unexpected name %q", root.Name)
	}

	tok, err = d.token()
	if err != nil {
		return nil, err
	}
	if tok != tokenEnd {
		return nil, malformed(d.pos-4, "expected end marker after root node, got token 0x%x", tok)
	}
	return root, nil
}

// decodeNode parses one node after its begin marker has been consumed:
// name, properties, children, end marker.
func (d *decoder) decodeNode(depth int) (*dtree.Node, error) {
	if depth > maxDepth {
		return nil, malformed(d.pos, "node nesting exceeds %d levels", maxDepth)
	}

	name, err := d.nodeName()
	if err != nil {
		return nil, err
	}
	node := &dtree.Node{Name: name}

	for {
		tok, err := d.token()
		if err != nil {
			return nil, err
		}

		switch tok {
		case tokenProp:
			prop, err := d.decodeProp()
			if err != nil {
				return nil, err
			}
			if _, exists := node.Property(prop.Name); exists {
				return nil, malformed(d.pos, "duplicate property %q on node %q", prop.Name, name)
			}
			node.Properties = append(node.Properties, prop)

		case tokenBeginNode:
			child, err := d.decodeNode(depth + 1)
			if err != nil {
				return nil, err
			}
			if _, exists := node.Child(child.Name); exists {
				return nil, malformed(d.pos, "duplicate child %q under node %q", child.Name, name)
			}
			node.Children = append(node.Children, child)

		case tokenEndNode:
			return node, nil

		case tokenNop:
			// Skip.

		case tokenEnd:
			return nil, malformed(d.pos-4, "end marker inside node %q: unbalanced begin/end markers", name)

		default:
			return nil, malformed(d.pos-4, "unknown structure token 0x%x", tok)
		}
	}
}

func (d *decoder) token() (uint32, error) {
	if d.pos+4 > d.end {
		return 0, malformed(d.pos, "structure block truncated: expected token")
	}
	tok := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return tok, nil
}

// nodeName reads the NUL-terminated name following a begin-node marker and
// advances past its 4-byte padding.
func (d *decoder) nodeName() (string, error) {
	idx := bytes.IndexByte(d.data[d.pos:d.end], 0)
	if idx < 0 {
		return "", malformed(d.pos, "unterminated node name")
	}
	name := string(d.data[d.pos : d.pos+idx])
	d.pos += align4(idx + 1)
	if d.pos > d.end {
		return "", malformed(d.pos, "node name padding runs past structure block")
	}
	return name, nil
}

// decodeProp reads a property record after its marker: length word, string
// table name offset, then the padded payload.
func (d *decoder) decodeProp() (dtree.Property, error) {
	if d.pos+8 > d.end {
		return dtree.Property{}, malformed(d.pos, "structure block truncated: expected property record")
	}
	length := int(binary.BigEndian.Uint32(d.data[d.pos:]))
	nameOff := int(binary.BigEndian.Uint32(d.data[d.pos+4:]))
	d.pos += 8

	name, err := d.stringAt(nameOff)
	if err != nil {
		return dtree.Property{}, err
	}

	if d.pos+length > d.end {
		return dtree.Property{}, malformed(d.pos, "property %q payload of %d bytes runs past structure block", name, length)
	}
	payload := d.data[d.pos : d.pos+length]
	d.pos += align4(length)
	if d.pos > d.end {
		return dtree.Property{}, malformed(d.pos, "property %q padding runs past structure block", name)
	}

	return dtree.Property{Name: name, Value: classify(payload)}, nil
}

// stringAt resolves a name index into the string table.
func (d *decoder) stringAt(off int) (string, error) {
	if off < 0 || off >= len(d.strings) {
		return "", malformed(d.pos-4, "string table index %d out of range (table size %d)", off, len(d.strings))
	}
	idx := bytes.IndexByte(d.strings[off:], 0)
	if idx < 0 {
		return "", malformed(d.pos-4, "unterminated string at table index %d", off)
	}
	return string(d.strings[off : off+idx]), nil
}

// classify maps a raw payload to a typed value. The order of rules is part
// of the decoder's contract: string detection runs before the 4-byte cell
// rule so that short strings decode as strings, and Encode relies on the
// same precedence to stay the inverse of Decode.
func classify(payload []byte) dtree.Value {
	if len(payload) == 0 {
		return dtree.Empty{}
	}
	if segments, ok := stringSegments(payload); ok {
		if len(segments) == 1 {
			return dtree.String(segments[0])
		}
		return dtree.Strings(segments)
	}
	if len(payload) == 4 {
		return dtree.U32(binary.BigEndian.Uint32(payload))
	}
	out := make(dtree.Bytes, len(payload))
	copy(out, payload)
	return out
}

// stringSegments splits a payload into NUL-terminated printable strings.
// Returns ok=false unless the payload ends with NUL and every segment is
// non-empty printable ASCII.
func stringSegments(payload []byte) ([]string, bool) {
	if payload[len(payload)-1] != 0 {
		return nil, false
	}
	var segments []string
	start := 0
	for i, b := range payload {
		if b == 0 {
			if i == start {
				return nil, false
			}
			segments = append(segments, string(payload[start:i]))
			start = i + 1
			continue
		}
		if b < 0x20 || b > 0x7e {
			return nil, false
		}
	}
	return segments, true
}

func align4(n int) int {
	return (n + 3) &^ 3
}
