package dtree

import (
	"fmt"
	"strings"
)

// Value is a sealed interface over the property value types the binary
// encoding can express. Only Empty, String, Strings, U32, and Bytes
// implement it.
type Value interface {
	propValue() // Sealed - only these types implement it
}

// Empty represents a property with no payload (a boolean flag in the
// textual syntax).
type Empty struct{}

func (Empty) propValue() {}

// String represents a single NUL-terminated string payload.
type String string

func (String) propValue() {}

// Strings represents a string-list payload (multiple NUL-terminated
// strings in one property).
type Strings []string

func (Strings) propValue() {}

// U32 represents a big-endian 32-bit cell payload.
type U32 uint32

func (U32) propValue() {}

// Bytes represents an opaque byte-array payload.
type Bytes []byte

func (Bytes) propValue() {}

// ValueEqual reports strict equality between two property values.
// Type mismatches are never equal, even when the payloads would render
// identically in source form.
func ValueEqual(a, b Value) bool {
	switch av := a.(type) {
	case Empty:
		_, ok := b.(Empty)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Strings:
		bv, ok := b.(Strings)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case U32:
		bv, ok := b.(U32)
		return ok && av == bv
	case Bytes:
		bv, ok := b.(Bytes)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// CloneValue returns a deep copy of v. Scalar values are returned as-is;
// slice-backed values are copied so the clone shares no storage with the
// original.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case Strings:
		out := make(Strings, len(val))
		copy(out, val)
		return out
	case Bytes:
		out := make(Bytes, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

// FormatValue renders a value for diagnostics and reports. This is not the
// source syntax; see the compose package for that.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case Empty:
		return "<empty>"
	case String:
		return fmt.Sprintf("%q", string(val))
	case Strings:
		parts := make([]string, len(val))
		for i, s := range val {
			parts[i] = fmt.Sprintf("%q", s)
		}
		return strings.Join(parts, ", ")
	case U32:
		return fmt.Sprintf("0x%x", uint32(val))
	case Bytes:
		return fmt.Sprintf("[% x]", []byte(val))
	default:
		return fmt.Sprintf("<unknown %T>", v)
	}
}

// TypeName returns the stable name of a value's type, used in persisted
// findings and reports.
func TypeName(v Value) string {
	switch v.(type) {
	case Empty:
		return "empty"
	case String:
		return "string"
	case Strings:
		return "string-list"
	case U32:
		return "u32"
	case Bytes:
		return "bytes"
	default:
		return "unknown"
	}
}
