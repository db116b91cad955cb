package zipstore

import (
	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/tensorio"
)

// Reader walks the members of a ZIP archive one at a time, exposing
// the currently selected member as a storage.Storage. It prefers
// seekable mode (read the central directory once, then produce a
// tensorio.RegionView per member on demand) whenever the underlying
// storage supports seeking backward; otherwise it falls back to
// streaming mode, walking local file headers sequentially and
// resolving length-at-end members by scanning for their trailing data
// descriptor.
type Reader struct {
	base     storage.Storage
	seekable bool

	// seekable-mode state
	entries []Entry
	nextIdx int

	// streaming-mode state
	nextOffset uint64
	exhausted  bool

	current      storage.Storage
	currentEntry Entry
	haveEntry    bool
}

// NewReader constructs a Reader over base, choosing seekable mode
// whenever base can seek backward. In that mode a central directory
// that cannot be located is an error; there is no fallback to
// streaming mode.
func NewReader(base storage.Storage) (*Reader, error) {
	r := &Reader{base: base}

	if base.CanSeekBack(true) {
		loc, err := locateCentralDirectory(base)
		if err != nil {
			return nil, err
		}
		entries, err := readCentralDirectory(base, loc)
		if err != nil {
			return nil, err
		}
		r.seekable = true
		r.entries = entries
		return r, nil
	}

	// Streaming mode: the first member's local header must sit at
	// offset 0.
	r.nextOffset = 0
	return r, nil
}

// ReadNextFile advances to the next member, returning false once the
// archive is exhausted.
func (r *Reader) ReadNextFile() (bool, error) {
	if r.seekable {
		return r.readNextSeekable()
	}
	return r.readNextStreaming()
}

func (r *Reader) readNextSeekable() (bool, error) {
	if r.nextIdx >= len(r.entries) {
		r.haveEntry = false
		return false, nil
	}
	entry := r.entries[r.nextIdx]
	r.nextIdx++

	dataOffset, _, err := localFileDataStart(r.base, entry.DataOffset)
	if err != nil {
		return false, err
	}
	entry.DataOffset = dataOffset

	r.currentEntry = entry
	r.current = tensorio.NewRegionView(r.base, entry.DataOffset, entry.Size)
	r.haveEntry = true
	return true, nil
}

func (r *Reader) readNextStreaming() (bool, error) {
	if r.exhausted {
		r.haveEntry = false
		return false, nil
	}

	if err := r.base.SeekTo(int64(r.nextOffset)); err != nil {
		r.exhausted = true
		r.haveEntry = false
		return false, nil
	}

	dataOffset, entry, err := localFileDataStart(r.base, r.nextOffset)
	if err != nil {
		r.exhausted = true
		r.haveEntry = false
		return false, nil
	}
	entry.DataOffset = dataOffset

	if entry.HasLength {
		r.current = tensorio.NewRegionView(r.base, entry.DataOffset, entry.Size)
		r.nextOffset = entry.DataOffset + entry.Size
	} else {
		mem, size, err := resolveStreamingMember(r.base)
		if err != nil {
			return false, err
		}
		entry.Size = size
		r.current = mem
		// Past the data descriptor (signature + crc32 + two 4-byte
		// size fields).
		r.nextOffset = entry.DataOffset + size + 16
	}

	r.currentEntry = entry
	r.haveEntry = true
	return true, nil
}

// CurrentEntry returns the metadata of the currently selected member.
func (r *Reader) CurrentEntry() Entry {
	return r.currentEntry
}

func (r *Reader) CurrentPosition() int64 {
	if !r.haveEntry {
		return 0
	}
	return r.current.CurrentPosition()
}

func (r *Reader) OriginalPosition() int64 {
	if !r.haveEntry {
		return 0
	}
	return r.current.OriginalPosition()
}

func (r *Reader) CanSeekBack(allowDetect bool) bool {
	if !r.haveEntry {
		return false
	}
	return r.current.CanSeekBack(allowDetect)
}

func (r *Reader) SeekTo(position int64) error {
	if !r.haveEntry {
		return ErrNoCurrentEntry
	}
	return r.current.SeekTo(position)
}

func (r *Reader) SeekFromBack(absoluteFromEnd int64) error {
	if !r.haveEntry {
		return ErrNoCurrentEntry
	}
	return r.current.SeekFromBack(absoluteFromEnd)
}

func (r *Reader) Read(length int, flags storage.ReadFlags) ([]byte, error) {
	if !r.haveEntry {
		return nil, ErrNoCurrentEntry
	}
	return r.current.Read(length, flags)
}
