// Package dtree defines the in-memory tree model shared by the decoder,
// the diff engine, and the composer.
//
// A tree is an immutable snapshot: decoding produces a new tree per call and
// no component mutates a tree after construction. Nodes carry ordered
// properties and ordered children, but identity is name-keyed on both axes:
// two trees are equal when they have the same nodes by path and the same
// properties by name with strictly equal typed values. Ordering is retained
// only so emitted source stays readable and deterministic.
//
// Property values are a sealed set (Empty, String, Strings, U32, Bytes).
// Equality never coerces across types: String("0x8000") and U32(0x8000) are
// different values. That strictness is load-bearing for the diff engine.
package dtree
