// Package extract locates and slices sub-blobs out of a vendor firmware
// image, using registry-declared offsets first and signature scanning as
// the fallback.
//
// Extraction is a pure function over the provided bytes: the returned Blob
// owns a copy of its region, so the caller may release the image after
// extraction. A missing target is reported with NotFoundError and is
// non-fatal to the pipeline; callers treat an absent optional blob as "not
// present" and continue with other targets.
package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fwtree/fwtree/internal/fdt"
	"github.com/fwtree/fwtree/internal/registry"
)

// NotFoundError reports that a target blob is absent: no registry offset
// matched and no signature match exists in the image.
type NotFoundError struct {
	Target string
	Reason string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("target %q not found: %s", e.Target, e.Reason)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// Signature describes how to locate one target type by magic sequence and
// how to determine the match's length.
type Signature struct {
	// Magic is the byte sequence that starts the blob.
	Magic []byte

	// SizeFieldOffset, when >= 0, is the offset from the match start of
	// a big-endian 32-bit total-length field.
	SizeFieldOffset int

	// Terminator, when SizeFieldOffset < 0, ends the blob; the blob runs
	// through the end of the terminator sequence.
	Terminator []byte
}

// DefaultSignatures returns the built-in signature table. Tree blobs carry
// the flattened-tree magic with the total size in the word that follows;
// environment blocks are NUL-NUL terminated text regions behind a vendor
// marker.
func DefaultSignatures() map[string]Signature {
	return map[string]Signature{
		"boot-config": {
			Magic:           fdt.MagicBytes[:],
			SizeFieldOffset: 4,
		},
		"recovery-config": {
			Magic:           fdt.MagicBytes[:],
			SizeFieldOffset: 4,
		},
		"env-block": {
			Magic:           []byte("ENV1"),
			SizeFieldOffset: -1,
			Terminator:      []byte{0x00, 0x00},
		},
	}
}

// Extract resolves target via the registry when a fixed offset is
// declared, and otherwise scans image for the target's signature. It uses
// the built-in signature table; see ExtractWith for a custom table.
func Extract(image []byte, reg *registry.Registry, target string) (*Blob, error) {
	return ExtractWith(image, reg, target, DefaultSignatures())
}

// ExtractWith is Extract with an explicit signature table.
func ExtractWith(image []byte, reg *registry.Registry, target string, sigs map[string]Signature) (*Blob, error) {
	sig, hasSig := sigs[target]

	if reg != nil && reg.Has(target) {
		entry, err := reg.Get(target)
		if err != nil {
			return nil, err
		}
		return extractAt(image, target, entry, sig, hasSig)
	}

	if !hasSig {
		return nil, &NotFoundError{Target: target, Reason: "no registry offset declared and no signature known"}
	}
	return scan(image, target, sig)
}

// extractAt slices a blob at a registry-declared offset. When the entry
// declares no size, the target's signature length rule determines it; a
// sized entry is sliced as declared.
func extractAt(image []byte, target string, entry registry.Entry, sig Signature, hasSig bool) (*Blob, error) {
	if entry.Offset > int64(len(image)) {
		return nil, &NotFoundError{Target: target,
			Reason: fmt.Sprintf("declared offset 0x%x past image of %d bytes", entry.Offset, len(image))}
	}

	if entry.HasSize {
		if entry.End() > int64(len(image)) {
			return nil, &NotFoundError{Target: target,
				Reason: fmt.Sprintf("declared region [0x%x, 0x%x) past image of %d bytes", entry.Offset, entry.End(), len(image))}
		}
		return newBlob(image, entry.Offset, entry.Size), nil
	}

	if !hasSig {
		// No size and no length rule: the region runs to the image end.
		return newBlob(image, entry.Offset, int64(len(image))-entry.Offset), nil
	}

	rest := image[entry.Offset:]
	if !bytes.HasPrefix(rest, sig.Magic) {
		return nil, &NotFoundError{Target: target,
			Reason: fmt.Sprintf("no signature match at declared offset 0x%x", entry.Offset)}
	}
	length, err := matchLength(rest, target, sig)
	if err != nil {
		return nil, err
	}
	return newBlob(image, entry.Offset, length), nil
}

// scan searches image for the first signature match.
func scan(image []byte, target string, sig Signature) (*Blob, error) {
	idx := bytes.Index(image, sig.Magic)
	if idx < 0 {
		return nil, &NotFoundError{Target: target, Reason: "no signature match in image"}
	}
	length, err := matchLength(image[idx:], target, sig)
	if err != nil {
		return nil, err
	}
	return newBlob(image, int64(idx), length), nil
}

// matchLength determines a match's length from the trailing length field
// or the terminating magic, per the target's signature.
func matchLength(rest []byte, target string, sig Signature) (int64, error) {
	if sig.SizeFieldOffset >= 0 {
		if sig.SizeFieldOffset+4 > len(rest) {
			return 0, &NotFoundError{Target: target, Reason: "match truncated before length field"}
		}
		length := int64(binary.BigEndian.Uint32(rest[sig.SizeFieldOffset:]))
		if length < int64(len(sig.Magic)) || length > int64(len(rest)) {
			return 0, &NotFoundError{Target: target,
				Reason: fmt.Sprintf("declared length %d outside remaining image of %d bytes", length, len(rest))}
		}
		return length, nil
	}

	idx := bytes.Index(rest[len(sig.Magic):], sig.Terminator)
	if idx < 0 {
		return 0, &NotFoundError{Target: target, Reason: "no terminating magic after signature match"}
	}
	return int64(len(sig.Magic) + idx + len(sig.Terminator)), nil
}

// FieldString reads a registry-declared string field (NUL-terminated,
// bounded by the entry's size when declared).
func FieldString(image []byte, reg *registry.Registry, name string) (string, error) {
	entry, err := reg.Get(name)
	if err != nil {
		return "", err
	}
	if entry.Encoding != registry.EncodingString {
		return "", fmt.Errorf("field %q has encoding %q, want %q", name, entry.Encoding, registry.EncodingString)
	}
	if entry.Offset >= int64(len(image)) {
		return "", &NotFoundError{Target: name, Reason: "declared offset past image"}
	}
	region := image[entry.Offset:]
	if entry.HasSize && entry.Size < int64(len(region)) {
		region = region[:entry.Size]
	}
	if idx := bytes.IndexByte(region, 0); idx >= 0 {
		region = region[:idx]
	}
	return string(region), nil
}

// FieldLE32 reads a registry-declared little-endian 32-bit field.
func FieldLE32(image []byte, reg *registry.Registry, name string) (uint32, error) {
	entry, err := reg.Get(name)
	if err != nil {
		return 0, err
	}
	if entry.Encoding != registry.EncodingLE32 {
		return 0, fmt.Errorf("field %q has encoding %q, want %q", name, entry.Encoding, registry.EncodingLE32)
	}
	if entry.Offset+4 > int64(len(image)) {
		return 0, &NotFoundError{Target: name, Reason: "declared field past image"}
	}
	return binary.LittleEndian.Uint32(image[entry.Offset:]), nil
}
