package zipstore

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tensorweave/tensorweave/storage"
)

// directoryLocation is what locateCentralDirectory resolves: where the
// central directory starts and how many entries it holds.
type directoryLocation struct {
	offset  uint64
	count   uint64
	size    uint64
	isZip64 bool
}

// locateCentralDirectory finds and parses the end-of-central-directory
// record (and, if present, the ZIP64 EOCD) by scanning backward from
// the end of s. s must support seeking from the back.
func locateCentralDirectory(s storage.Storage) (directoryLocation, error) {
	if !s.CanSeekBack(true) {
		return directoryLocation{}, fmt.Errorf("zipstore: central directory lookup requires a seekable source: %w", ErrNotAZip)
	}

	tailSize := int64(eocdFixedSize + maxEOCDCommentSize)
	if err := s.SeekFromBack(tailSize); err != nil {
		// Source shorter than the max tail; fall back to reading from
		// the start.
		if err := s.SeekTo(0); err != nil {
			return directoryLocation{}, err
		}
	}

	tail, err := s.Read(int(tailSize), storage.ReadFlags{AllowPartial: true, Temporary: true})
	if err != nil {
		return directoryLocation{}, err
	}

	sigBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(sigBytes, eocdSignature)
	idx := bytes.LastIndex(tail, sigBytes)
	if idx < 0 {
		return directoryLocation{}, ErrNotAZip
	}

	eocd := tail[idx:]
	if len(eocd) < eocdFixedSize {
		return directoryLocation{}, ErrNotAZip
	}

	diskEntries := binary.LittleEndian.Uint16(eocd[10:12])
	dirSize := binary.LittleEndian.Uint32(eocd[12:16])
	dirOffset := binary.LittleEndian.Uint32(eocd[16:20])

	loc := directoryLocation{
		offset: uint64(dirOffset),
		count:  uint64(diskEntries),
		size:   uint64(dirSize),
	}

	if loc.offset == lengthUnknownSentinel || loc.count == 0xFFFF || loc.size == lengthUnknownSentinel {
		zip64Loc, err := locateZip64(s, tail, idx)
		if err != nil {
			return directoryLocation{}, err
		}
		loc = zip64Loc
	}

	return loc, nil
}

// locateZip64 reads the ZIP64 end-of-central-directory locator (which
// immediately precedes the ordinary EOCD record) and then the ZIP64
// EOCD record it points to.
func locateZip64(s storage.Storage, tail []byte, eocdIdxInTail int) (directoryLocation, error) {
	locatorSig := make([]byte, 4)
	binary.LittleEndian.PutUint32(locatorSig, eocd64LocatorSignature)

	locStart := eocdIdxInTail - eocd64LocatorSize
	var locator []byte
	if locStart >= 0 && bytes.Equal(tail[locStart:locStart+4], locatorSig) {
		locator = tail[locStart : locStart+eocd64LocatorSize]
	} else {
		return directoryLocation{}, fmt.Errorf("zipstore: zip64 locator not found: %w", ErrNotAZip)
	}

	eocd64Offset := binary.LittleEndian.Uint64(locator[8:16])

	if err := s.SeekTo(int64(eocd64Offset)); err != nil {
		return directoryLocation{}, err
	}
	rec, err := s.Read(eocd64FixedSize, storage.ReadFlags{Temporary: true})
	if err != nil {
		return directoryLocation{}, err
	}
	if binary.LittleEndian.Uint32(rec[0:4]) != eocd64Signature {
		return directoryLocation{}, fmt.Errorf("zipstore: zip64 eocd signature mismatch: %w", ErrNotAZip)
	}

	count := binary.LittleEndian.Uint64(rec[32:40])
	size := binary.LittleEndian.Uint64(rec[40:48])
	offset := binary.LittleEndian.Uint64(rec[48:56])

	return directoryLocation{offset: offset, count: count, size: size, isZip64: true}, nil
}
