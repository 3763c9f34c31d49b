// Package registry holds the named partition and field offsets for one
// firmware image family, loaded from a declarative CUE source.
//
// A Registry is immutable after Load: every pipeline stage reads from it
// and no writer exists after construction, so concurrent readers never
// race. All geometry is validated at load time so that no downstream
// component can operate on bad offsets.
package registry

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Encoding describes how a declared region's bytes are interpreted.
type Encoding string

const (
	// EncodingRaw is an opaque byte region.
	EncodingRaw Encoding = "raw"
	// EncodingString is a NUL-terminated text region.
	EncodingString Encoding = "string"
	// EncodingLE32 is a little-endian 32-bit field.
	EncodingLE32 Encoding = "le32"
)

// ValidEncodings defines the allowed encoding values.
var ValidEncodings = map[Encoding]bool{
	EncodingRaw:    true,
	EncodingString: true,
	EncodingLE32:   true,
}

// Entry is one named offset declaration. Entries are immutable after
// registry load.
type Entry struct {
	Name     string
	Offset   int64
	Size     int64 // 0 when the declaration omits size
	HasSize  bool
	Encoding Encoding
}

// End returns the exclusive end offset of the entry, or just the offset
// when no size is declared.
func (e Entry) End() int64 {
	if !e.HasSize {
		return e.Offset
	}
	return e.Offset + e.Size
}

// UnknownOffsetError reports a Get for a name absent from the registry.
type UnknownOffsetError struct {
	Name string
}

func (e *UnknownOffsetError) Error() string {
	return fmt.Sprintf("unknown offset name %q", e.Name)
}

// InvalidOffsetError reports a declaration that fails geometry validation
// at load time. This is registry misconfiguration and aborts the run
// before any extraction happens.
type InvalidOffsetError struct {
	Name   string
	Reason string
}

func (e *InvalidOffsetError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid offset declaration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid offset declaration %q: %s", e.Name, e.Reason)
}

// IsUnknownOffset reports whether err is (or wraps) an UnknownOffsetError.
func IsUnknownOffset(err error) bool {
	var uoe *UnknownOffsetError
	return errors.As(err, &uoe)
}

// IsInvalidOffset reports whether err is (or wraps) an InvalidOffsetError.
func IsInvalidOffset(err error) bool {
	var ioe *InvalidOffsetError
	return errors.As(err, &ioe)
}

// Registry is the read-only offset table for one image family.
type Registry struct {
	imageSize int64
	entries   map[string]Entry
}

// Load parses and validates a CUE declaration source. The expected shape:
//
//	image: size: 0x800000
//	offsets: {
//		"boot-config": {offset: 0x40000, size: 0x20000, encoding: "raw"}
//		"serial-tag":  {offset: 0x1000, encoding: "string"}
//	}
//
// Any geometry violation (negative offset, region past the declared image
// size, unknown encoding) fails construction with InvalidOffsetError.
func Load(src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src)
	if err := value.Err(); err != nil {
		return nil, &InvalidOffsetError{Reason: fmt.Sprintf("compiling declaration: %v", err)}
	}
	return fromValue(value)
}

// LoadFile reads and parses a CUE declaration file.
func LoadFile(path string) (*Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read offset declaration: %w", err)
	}
	return Load(src)
}

func fromValue(value cue.Value) (*Registry, error) {
	sizeVal := value.LookupPath(cue.ParsePath("image.size"))
	if !sizeVal.Exists() {
		return nil, &InvalidOffsetError{Reason: "missing image.size"}
	}
	imageSize, err := sizeVal.Int64()
	if err != nil {
		return nil, &InvalidOffsetError{Reason: fmt.Sprintf("image.size: %v", err)}
	}
	if imageSize <= 0 {
		return nil, &InvalidOffsetError{Reason: fmt.Sprintf("image.size must be positive, got %d", imageSize)}
	}

	reg := &Registry{imageSize: imageSize, entries: make(map[string]Entry)}

	offsetsVal := value.LookupPath(cue.ParsePath("offsets"))
	if offsetsVal.Exists() {
		iter, err := offsetsVal.Fields()
		if err != nil {
			return nil, &InvalidOffsetError{Reason: fmt.Sprintf("iterating offsets: %v", err)}
		}
		for iter.Next() {
			entry, err := compileEntry(iter.Label(), iter.Value(), imageSize)
			if err != nil {
				return nil, err
			}
			reg.entries[entry.Name] = entry
		}
	}

	return reg, nil
}

func compileEntry(name string, value cue.Value, imageSize int64) (Entry, error) {
	entry := Entry{Name: name, Encoding: EncodingRaw}

	offsetVal := value.LookupPath(cue.ParsePath("offset"))
	if !offsetVal.Exists() {
		return Entry{}, &InvalidOffsetError{Name: name, Reason: "missing offset"}
	}
	offset, err := offsetVal.Int64()
	if err != nil {
		return Entry{}, &InvalidOffsetError{Name: name, Reason: fmt.Sprintf("offset: %v", err)}
	}
	if offset < 0 {
		return Entry{}, &InvalidOffsetError{Name: name, Reason: fmt.Sprintf("offset must be non-negative, got %d", offset)}
	}
	entry.Offset = offset

	if sizeVal := value.LookupPath(cue.ParsePath("size")); sizeVal.Exists() {
		size, err := sizeVal.Int64()
		if err != nil {
			return Entry{}, &InvalidOffsetError{Name: name, Reason: fmt.Sprintf("size: %v", err)}
		}
		if size < 0 {
			return Entry{}, &InvalidOffsetError{Name: name, Reason: fmt.Sprintf("size must be non-negative, got %d", size)}
		}
		entry.Size = size
		entry.HasSize = true
	}

	if encVal := value.LookupPath(cue.ParsePath("encoding")); encVal.Exists() {
		enc, err := encVal.String()
		if err != nil {
			return Entry{}, &InvalidOffsetError{Name: name, Reason: fmt.Sprintf("encoding: %v", err)}
		}
		if !ValidEncodings[Encoding(enc)] {
			return Entry{}, &InvalidOffsetError{Name: name, Reason: fmt.Sprintf("unknown encoding %q", enc)}
		}
		entry.Encoding = Encoding(enc)
	}

	if entry.HasSize && entry.Size > math.MaxInt64-entry.Offset {
		return Entry{}, &InvalidOffsetError{Name: name, Reason: "offset + size overflows"}
	}
	if entry.End() > imageSize {
		return Entry{}, &InvalidOffsetError{Name: name,
			Reason: fmt.Sprintf("region [0x%x, 0x%x) exceeds image size 0x%x", entry.Offset, entry.End(), imageSize)}
	}

	return entry, nil
}

// Get returns the named entry, or UnknownOffsetError if absent.
func (r *Registry) Get(name string) (Entry, error) {
	entry, ok := r.entries[name]
	if !ok {
		return Entry{}, &UnknownOffsetError{Name: name}
	}
	return entry, nil
}

// Has reports whether the registry declares the named entry.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns all declared entry names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ImageSize returns the declared image size in bytes.
func (r *Registry) ImageSize() int64 {
	return r.imageSize
}
