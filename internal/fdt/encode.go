package fdt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fwtree/fwtree/internal/dtree"
)

// Encode serializes a tree back to the binary format. The output is a
// well-formed version-17 blob with an empty memory reservation map and a
// deduplicated string table.
//
// Encode is the inverse of Decode at the tree level: decoding the output
// yields a tree equal to the input, provided the input's values came from
// Decode's classification (a hand-built U32 whose byte form happens to
// spell a printable NUL-terminated string would decode as that string).
func Encode(root *dtree.Node) ([]byte, error) {
	if root == nil {
		return nil, fmt.Errorf("encode: nil tree")
	}
	if root.Name != "" {
		return nil, fmt.Errorf("encode: root node must be unnamed, got %q", root.Name)
	}

	st := &stringTable{offsets: make(map[string]uint32)}
	var structBlock bytes.Buffer
	if err := encodeNode(&structBlock, st, root); err != nil {
		return nil, err
	}
	writeToken(&structBlock, tokenEnd)

	// Layout: header, empty reservation map terminator, structure
	// block, string table.
	const rsvmapSize = 16 // one all-zero terminator entry
	offStruct := uint32(headerSize + rsvmapSize)
	offStrings := offStruct + uint32(structBlock.Len())
	totalSize := offStrings + uint32(st.buf.Len())

	var out bytes.Buffer
	for _, word := range []uint32{
		Magic,
		totalSize,
		offStruct,
		offStrings,
		headerSize,
		outputVersion,
		lastCompatVersion,
		0, // boot CPU id
		uint32(st.buf.Len()),
		uint32(structBlock.Len()),
	} {
		writeToken(&out, word)
	}
	out.Write(make([]byte, rsvmapSize))
	out.Write(structBlock.Bytes())
	out.Write(st.buf.Bytes())
	return out.Bytes(), nil
}

func encodeNode(buf *bytes.Buffer, st *stringTable, n *dtree.Node) error {
	writeToken(buf, tokenBeginNode)
	buf.WriteString(n.Name)
	buf.WriteByte(0)
	pad4(buf)

	for _, p := range n.Properties {
		payload, err := encodeValue(p.Value)
		if err != nil {
			return fmt.Errorf("property %q: %w", p.Name, err)
		}
		writeToken(buf, tokenProp)
		writeToken(buf, uint32(len(payload)))
		writeToken(buf, st.offset(p.Name))
		buf.Write(payload)
		pad4(buf)
	}

	for _, c := range n.Children {
		if err := encodeNode(buf, st, c); err != nil {
			return err
		}
	}

	writeToken(buf, tokenEndNode)
	return nil
}

func encodeValue(v dtree.Value) ([]byte, error) {
	switch val := v.(type) {
	case dtree.Empty:
		return nil, nil
	case dtree.String:
		return append([]byte(val), 0), nil
	case dtree.Strings:
		var buf bytes.Buffer
		for _, s := range val {
			buf.WriteString(s)
			buf.WriteByte(0)
		}
		return buf.Bytes(), nil
	case dtree.U32:
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, uint32(val))
		return payload, nil
	case dtree.Bytes:
		return []byte(val), nil
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// stringTable accumulates the deduplicated property name table.
type stringTable struct {
	buf     bytes.Buffer
	offsets map[string]uint32
}

func (st *stringTable) offset(name string) uint32 {
	if off, ok := st.offsets[name]; ok {
		return off
	}
	off := uint32(st.buf.Len())
	st.offsets[name] = off
	st.buf.WriteString(name)
	st.buf.WriteByte(0)
	return off
}

func writeToken(buf *bytes.Buffer, word uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], word)
	buf.Write(b[:])
}

func pad4(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}
