package fdt

// Binary format constants. All header fields and structure tokens are
// big-endian 32-bit words; tokens and property payloads are padded to
// 4-byte alignment.
const (
	// Magic is the first word of every well-formed blob.
	Magic uint32 = 0xd00dfeed

	tokenBeginNode uint32 = 0x1
	tokenEndNode   uint32 = 0x2
	tokenProp      uint32 = 0x3
	tokenNop       uint32 = 0x4
	tokenEnd       uint32 = 0x9

	headerSize = 40

	// Version emitted by Encode. 17 added size_dt_struct to the header.
	outputVersion     = 17
	lastCompatVersion = 16
)

// MagicBytes is the big-endian byte form of Magic, used by signature
// scanning in the extract package.
var MagicBytes = [4]byte{0xd0, 0x0d, 0xfe, 0xed}

// header mirrors the fixed 40-byte blob header.
type header struct {
	magic           uint32
	totalSize       uint32
	offStruct       uint32
	offStrings      uint32
	offMemRsvmap    uint32
	version         uint32
	lastCompVersion uint32
	bootCPUIDPhys   uint32
	sizeStrings     uint32
	sizeStruct      uint32
}
