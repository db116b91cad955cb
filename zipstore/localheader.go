package zipstore

import (
	"encoding/binary"
	"fmt"

	"github.com/tensorweave/tensorweave/storage"
)

// readCentralDirectory reads and parses every entry of the central
// directory located at loc, resolving ZIP64 extra fields as needed.
// s must be seekable; its cursor is left undefined afterward.
func readCentralDirectory(s storage.Storage, loc directoryLocation) ([]Entry, error) {
	if err := s.SeekTo(int64(loc.offset)); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, loc.count)
	for i := uint64(0); i < loc.count; i++ {
		hdr, err := s.Read(centralDirHeaderFixedSize, storage.ReadFlags{Temporary: true})
		if err != nil {
			return nil, err
		}
		if binary.LittleEndian.Uint32(hdr[0:4]) != centralDirSignature {
			return nil, fmt.Errorf("zipstore: central directory signature mismatch at entry %d: %w", i, ErrNotAZip)
		}

		method := binary.LittleEndian.Uint16(hdr[10:12])
		crc32 := binary.LittleEndian.Uint32(hdr[16:20])
		compSize := uint64(binary.LittleEndian.Uint32(hdr[20:24]))
		uncompSize := uint64(binary.LittleEndian.Uint32(hdr[24:28]))
		nameLen := binary.LittleEndian.Uint16(hdr[28:30])
		extraLen := binary.LittleEndian.Uint16(hdr[30:32])
		commentLen := binary.LittleEndian.Uint16(hdr[32:34])
		localOffset := uint64(binary.LittleEndian.Uint32(hdr[42:46]))

		name, err := s.Read(int(nameLen), storage.ReadFlags{})
		if err != nil {
			return nil, err
		}
		extra, err := s.Read(int(extraLen), storage.ReadFlags{Temporary: true})
		if err != nil {
			return nil, err
		}
		if commentLen > 0 {
			if _, err := s.Read(int(commentLen), storage.ReadFlags{Temporary: true}); err != nil {
				return nil, err
			}
		}

		if uncompSize == lengthUnknownSentinel || compSize == lengthUnknownSentinel || localOffset == lengthUnknownSentinel {
			applyZip64Extra(extra, zip64Fields{
				uncompressedSize:  &uncompSize,
				compressedSize:    &compSize,
				localHeaderOffset: &localOffset,
			})
		}

		if method != compressionStored {
			return nil, fmt.Errorf("%w: member %q uses method %d", ErrUnsupportedCompression, name, method)
		}

		entries = append(entries, Entry{
			Name: string(name),
			// The central directory record always carries the final
			// size and CRC32, even for members whose local header
			// used a trailing data descriptor, so seekable mode never
			// needs to scan for one.
			HasLength: true,
			Size:      uncompSize,
			CRC32:     crc32,
			// DataOffset is resolved lazily from localOffset by the
			// reader, since it must skip past the variable-length
			// local header to find the real data start.
			DataOffset: localOffset,
		})
	}
	return entries, nil
}

// localFileDataStart reads the local file header at the storage's
// current position (localOffset) and returns the absolute offset of
// the first data byte plus the header's own view of name/size/flags.
// Streaming mode uses that view to discover members that have no prior
// central directory; seekable mode uses only the data offset.
func localFileDataStart(s storage.Storage, localOffset uint64) (dataOffset uint64, entry Entry, err error) {
	if err := s.SeekTo(int64(localOffset)); err != nil {
		return 0, Entry{}, err
	}
	hdr, err := s.Read(localFileHeaderFixedSize, storage.ReadFlags{Temporary: true})
	if err != nil {
		return 0, Entry{}, err
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != localFileHeaderSignature {
		return 0, Entry{}, fmt.Errorf("zipstore: local file header signature mismatch: %w", ErrNotAZip)
	}

	flags := binary.LittleEndian.Uint16(hdr[6:8])
	method := binary.LittleEndian.Uint16(hdr[8:10])
	crc32 := binary.LittleEndian.Uint32(hdr[14:18])
	compSize := uint64(binary.LittleEndian.Uint32(hdr[18:22]))
	uncompSize := uint64(binary.LittleEndian.Uint32(hdr[22:26]))
	nameLen := binary.LittleEndian.Uint16(hdr[26:28])
	extraLen := binary.LittleEndian.Uint16(hdr[28:30])

	if method != compressionStored {
		return 0, Entry{}, fmt.Errorf("%w: method %d", ErrUnsupportedCompression, method)
	}

	name, err := s.Read(int(nameLen), storage.ReadFlags{})
	if err != nil {
		return 0, Entry{}, err
	}
	extra, err := s.Read(int(extraLen), storage.ReadFlags{Temporary: true})
	if err != nil {
		return 0, Entry{}, err
	}

	if uncompSize == lengthUnknownSentinel || compSize == lengthUnknownSentinel {
		applyZip64Extra(extra, zip64Fields{
			uncompressedSize: &uncompSize,
			compressedSize:   &compSize,
		})
	}

	dataOffset = uint64(s.CurrentPosition())
	entry = Entry{
		Name:      string(name),
		HasLength: flags&flagHasDataDescriptor == 0,
		Size:      uncompSize,
		CRC32:     crc32,
	}
	return dataOffset, entry, nil
}
