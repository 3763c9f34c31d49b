package extract

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwtree/fwtree/internal/dtree"
	"github.com/fwtree/fwtree/internal/fdt"
	"github.com/fwtree/fwtree/internal/registry"
)

// buildImage assembles a synthetic firmware image: header region with a
// serial tag and a little-endian length field, then a tree blob at a
// known offset, then trailing padding.
func buildImage(t *testing.T) ([]byte, []byte, *registry.Registry) {
	t.Helper()

	blob, err := fdt.Encode(&dtree.Node{
		Children: []*dtree.Node{
			{Name: "cpu", Properties: []dtree.Property{
				{Name: "clock", Value: dtree.U32(800)},
			}},
		},
	})
	require.NoError(t, err)

	image := make([]byte, 0x4000)
	copy(image[0x100:], "FW-1234-AB\x00")
	binary.LittleEndian.PutUint32(image[0x20:], uint32(len(image)))
	copy(image[0x1000:], blob)

	reg, err := registry.Load([]byte(`
image: size: 0x4000
offsets: {
	"boot-config": {offset: 0x1000, encoding: "raw"}
	"serial-tag":  {offset: 0x100, size: 0x20, encoding: "string"}
	"img-length":  {offset: 0x20, size: 4, encoding: "le32"}
}
`))
	require.NoError(t, err)

	return image, blob, reg
}

func TestExtractAtDeclaredOffset(t *testing.T) {
	image, want, reg := buildImage(t)

	blob, err := Extract(image, reg, "boot-config")
	require.NoError(t, err)

	offset, length := blob.Origin()
	assert.Equal(t, int64(0x1000), offset)
	assert.Equal(t, int64(len(want)), length)

	data, err := blob.Take()
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

func TestExtractBySignatureScan(t *testing.T) {
	image, want, _ := buildImage(t)

	// No registry: the extractor falls back to scanning for the magic.
	blob, err := Extract(image, nil, "boot-config")
	require.NoError(t, err)

	offset, _ := blob.Origin()
	assert.Equal(t, int64(0x1000), offset)

	data, err := blob.Take()
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

func TestExtractNotFound(t *testing.T) {
	image := make([]byte, 0x1000)

	_, err := Extract(image, nil, "boot-config")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	// Unknown target with no signature either.
	_, err = Extract(image, nil, "foo")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestExtractDeclaredOffsetWithoutMatch(t *testing.T) {
	image, _, reg := buildImage(t)
	// Wipe the magic at the declared offset.
	copy(image[0x1000:], []byte{0, 0, 0, 0})

	_, err := Extract(image, reg, "boot-config")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestExtractRejectsLengthPastImage(t *testing.T) {
	image, _, reg := buildImage(t)
	// Inflate the blob's declared total size far past the image end.
	binary.BigEndian.PutUint32(image[0x1004:], 0x100000)

	_, err := Extract(image, reg, "boot-config")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestExtractTerminatedBlob(t *testing.T) {
	image := make([]byte, 0x200)
	copy(image[0x40:], "ENV1bootargs=quiet\x00console=ttyS0\x00\x00")

	blob, err := Extract(image, nil, "env-block")
	require.NoError(t, err)

	data, err := blob.Take()
	require.NoError(t, err)
	assert.Equal(t, []byte("ENV1bootargs=quiet\x00console=ttyS0\x00\x00"), data)
}

func TestBlobOwnershipTransfer(t *testing.T) {
	image, _, reg := buildImage(t)

	blob, err := Extract(image, reg, "boot-config")
	require.NoError(t, err)

	_, err = blob.Take()
	require.NoError(t, err)

	_, err = blob.Take()
	assert.Error(t, err, "second take must fail: ownership already transferred")

	// Origin stays readable for provenance records.
	offset, length := blob.Origin()
	assert.Equal(t, int64(0x1000), offset)
	assert.Greater(t, length, int64(0))
}

func TestBlobCopiesOutOfImage(t *testing.T) {
	image, want, reg := buildImage(t)

	blob, err := Extract(image, reg, "boot-config")
	require.NoError(t, err)

	// Clobbering the image after extraction must not corrupt the blob.
	for i := range image {
		image[i] = 0xff
	}
	data, err := blob.Take()
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

func TestFieldString(t *testing.T) {
	image, _, reg := buildImage(t)

	serial, err := FieldString(image, reg, "serial-tag")
	require.NoError(t, err)
	assert.Equal(t, "FW-1234-AB", serial)

	// Wrong encoding for the field accessor.
	_, err = FieldString(image, reg, "img-length")
	assert.Error(t, err)

	_, err = FieldString(image, reg, "absent")
	assert.True(t, registry.IsUnknownOffset(err))
}

func TestFieldLE32(t *testing.T) {
	image, _, reg := buildImage(t)

	length, err := FieldLE32(image, reg, "img-length")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x4000), length)

	_, err = FieldLE32(image, reg, "serial-tag")
	assert.Error(t, err)
}
