package zipstore

import (
	"bytes"
	"encoding/binary"

	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/wire"
)

// streamingChunkSize is how much is read at a time while scanning
// forward for a member's trailing data descriptor.
const streamingChunkSize = 1 << 16

// resolveStreamingMember reads forward from s's current position (the
// first data byte of a length-at-end member) until it finds a data
// descriptor that is self-consistent: its own embedded CRC32 matches a
// freshly computed CRC32 over the bytes consumed so far, and its
// uncompressed size matches that same byte count. The local header's
// CRC32/size fields are not trustworthy here — ZIP convention writes
// them as 0 whenever the data-descriptor flag is set, which is exactly
// this case — so there is no external value to validate against.
// Because the member's true end cannot be known any other way on a
// forward-only source, the entire member is buffered into memory; the
// returned storage.Storage wraps that buffer.
//
// This trades the zero-copy path seekable mode gets for correctness
// on sources that cannot seek, which is an acceptable cost since
// length-at-end members are the exception, not the rule, for the
// checkpoints this module reads.
func resolveStreamingMember(s storage.Storage) (*storage.MemoryStorage, uint64, error) {
	var buf []byte
	sigBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(sigBytes, dataDescriptorSignature)

	searchFrom := 0
	for {
		chunk, err := s.Read(streamingChunkSize, storage.ReadFlags{AllowPartial: true})
		if err != nil {
			return nil, 0, err
		}
		if len(chunk) == 0 {
			return nil, 0, ErrDataDescriptorNotFound
		}
		buf = append(buf, chunk...)

		for {
			idx := bytes.Index(buf[searchFrom:], sigBytes)
			if idx < 0 {
				// Keep the last 3 bytes as a possible partial match
				// for the next round.
				if len(buf) >= 3 {
					searchFrom = len(buf) - 3
				}
				break
			}
			candidate := searchFrom + idx
			if candidate+16 > len(buf) {
				// Not enough trailing bytes yet to verify; wait for
				// the next chunk without discarding this candidate.
				searchFrom = candidate
				break
			}
			if size, ok := verifyDataDescriptor(buf, candidate); ok {
				member := buf[:candidate]
				return storage.FromMemory(member), size, nil
			}
			searchFrom = candidate + 1
		}
	}
}

// verifyDataDescriptor checks whether a PK\x07\x08 signature found at
// offset sigPos in buf is genuine: its own CRC32 and uncompressed-size
// fields must match the bytes preceding it. There is no external CRC
// to check against — the local header's CRC32 field is conventionally
// 0 for length-at-end members, which is exactly this case.
func verifyDataDescriptor(buf []byte, sigPos int) (uint64, bool) {
	if sigPos+16 > len(buf) {
		return 0, false
	}
	crc := binary.LittleEndian.Uint32(buf[sigPos+4 : sigPos+8])
	compSize := binary.LittleEndian.Uint32(buf[sigPos+8 : sigPos+12])
	uncompSize := binary.LittleEndian.Uint32(buf[sigPos+12 : sigPos+16])

	if uint64(compSize) != uint64(sigPos) || uint64(uncompSize) != uint64(sigPos) {
		return 0, false
	}
	if wire.CRC32(buf[:sigPos]) != crc {
		return 0, false
	}
	return uint64(sigPos), true
}
