// Package fdt decodes and encodes the flattened device tree binary format
// (DTB) into the dtree model.
//
// Decode is a pure function: no state is shared between calls, so one
// decoder serves any number of blobs without locking. Structurally
// inconsistent input (bad magic, unbalanced node markers, out-of-range
// string-table indices, truncated records) is rejected with
// MalformedTreeError rather than truncated to a partial tree; the diff
// engine downstream assumes well-formed trees.
//
// The binary format carries no property type information, so Decode
// classifies payloads deterministically: empty payload, printable
// NUL-terminated string (or string list), 4-byte cell, opaque bytes, in
// that order. Encode inverts the classification, so Encode(Decode(b))
// decodes to a tree equal to Decode(b).
package fdt
