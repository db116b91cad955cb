package zipstore

import "encoding/binary"

// zip64Fields holds the subset of a central-directory or local-header
// record whose 32-bit value was 0xFFFFFFFF, to be overridden from the
// extra field tag 0x0001. Per the format, only the fields that were
// actually the sentinel appear in the extra field, in this fixed
// order: uncompressed size, compressed size, local header offset,
// disk start number.
type zip64Fields struct {
	uncompressedSize *uint64
	compressedSize   *uint64
	localHeaderOffset *uint64
	diskStart        *uint32
}

// applyZip64Extra scans extra for tag 0x0001 and overwrites whichever
// of fields' pointers are non-nil, consuming 8 bytes per size/offset
// field and 4 bytes for disk start, in that order.
func applyZip64Extra(extra []byte, fields zip64Fields) {
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		size := binary.LittleEndian.Uint16(extra[2:4])
		if len(extra) < 4+int(size) {
			return
		}
		block := extra[4 : 4+int(size)]
		if tag == zip64ExtraFieldTag {
			off := 0
			if fields.uncompressedSize != nil && off+8 <= len(block) {
				*fields.uncompressedSize = binary.LittleEndian.Uint64(block[off : off+8])
				off += 8
			}
			if fields.compressedSize != nil && off+8 <= len(block) {
				*fields.compressedSize = binary.LittleEndian.Uint64(block[off : off+8])
				off += 8
			}
			if fields.localHeaderOffset != nil && off+8 <= len(block) {
				*fields.localHeaderOffset = binary.LittleEndian.Uint64(block[off : off+8])
				off += 8
			}
			if fields.diskStart != nil && off+4 <= len(block) {
				*fields.diskStart = binary.LittleEndian.Uint32(block[off : off+4])
				off += 4
			}
			return
		}
		extra = extra[4+int(size):]
	}
}
