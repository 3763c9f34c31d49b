package fdt

import (
	"errors"
	"fmt"
)

// MalformedTreeError reports structurally inconsistent binary input.
// Corrupt input is a first-class failure: the decoder never silently
// truncates, because downstream diffing assumes well-formed trees.
type MalformedTreeError struct {
	// Offset is the byte offset into the blob where the inconsistency
	// was detected, relative to the start of the blob.
	Offset int

	// Reason is a human-readable description of the inconsistency.
	Reason string
}

func (e *MalformedTreeError) Error() string {
	return fmt.Sprintf("malformed tree at offset 0x%x: %s", e.Offset, e.Reason)
}

// IsMalformedTree reports whether err is (or wraps) a MalformedTreeError.
func IsMalformedTree(err error) bool {
	var mte *MalformedTreeError
	return errors.As(err, &mte)
}

func malformed(offset int, format string, args ...any) error {
	return &MalformedTreeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
