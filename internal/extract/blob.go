package extract

import "fmt"

// Blob is a contiguous byte range sliced out of a firmware image. The
// extractor owns it until a consumer calls Take, which transfers ownership
// of the bytes exactly once; the blob is unusable afterward. This keeps
// the extractor-to-decoder handoff a transfer, not a share.
type Blob struct {
	data   []byte
	origin int64
	length int64
	taken  bool
}

// newBlob copies the region out of image so the blob outlives it.
func newBlob(image []byte, offset, length int64) *Blob {
	data := make([]byte, length)
	copy(data, image[offset:offset+length])
	return &Blob{data: data, origin: offset, length: length}
}

// Take transfers ownership of the blob's bytes to the caller. A second
// call is a programming error and fails.
func (b *Blob) Take() ([]byte, error) {
	if b.taken {
		return nil, fmt.Errorf("blob at offset 0x%x already consumed", b.origin)
	}
	b.taken = true
	data := b.data
	b.data = nil
	return data, nil
}

// Origin returns the byte offset and length of the blob within the image
// it was extracted from. Valid even after Take.
func (b *Blob) Origin() (offset, length int64) {
	return b.origin, b.length
}

// Len returns the blob's length in bytes.
func (b *Blob) Len() int {
	return int(b.length)
}
