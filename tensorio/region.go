package tensorio

import (
	"fmt"

	"github.com/tensorweave/tensorweave/storage"
)

// RegionView is a Storage over a clamped (offset, size) sub-range of
// another Storage. Reads within the region behave exactly like reads on
// the underlying storage, clamped to what remains of the region; reads
// past the region's end follow the same AllowEmpty/AllowPartial rules as
// the base storage. CurrentPosition is region-relative, starting at 0.
//
// The safetensors and GGUF readers, the buffer splitter and the ZIP
// reader's seekable mode each pair one RegionView with every buffer or
// member they surface. The PyTorch reader does not create its own; it
// exposes the ZIP reader's current member directly.
type RegionView struct {
	base   storage.Storage
	offset uint64
	size   uint64
	relPos uint64
}

// NewRegionView returns a RegionView over base spanning [offset,
// offset+size). The underlying storage's cursor is not moved until the
// first Read or SeekTo.
func NewRegionView(base storage.Storage, offset, size uint64) *RegionView {
	return &RegionView{base: base, offset: offset, size: size}
}

// Offset returns the region's starting offset within the base storage.
func (r *RegionView) Offset() uint64 { return r.offset }

// Size returns the region's total size in bytes.
func (r *RegionView) Size() uint64 { return r.size }

func (r *RegionView) CurrentPosition() int64  { return int64(r.relPos) }
func (r *RegionView) OriginalPosition() int64 { return int64(r.offset + r.relPos) }

func (r *RegionView) CanSeekBack(allowDetect bool) bool {
	return r.base.CanSeekBack(allowDetect)
}

func (r *RegionView) SeekTo(position int64) error {
	if position < 0 || uint64(position) > r.size {
		return &storage.Error{Op: "seek_to", Err: fmt.Errorf("position %d out of region bounds [0, %d]", position, r.size)}
	}
	if err := r.syncBase(uint64(position)); err != nil {
		return err
	}
	r.relPos = uint64(position)
	return nil
}

func (r *RegionView) SeekFromBack(absoluteFromEnd int64) error {
	return r.SeekTo(int64(r.size) - absoluteFromEnd)
}

// syncBase positions the underlying storage's cursor at the absolute
// offset corresponding to the given region-relative position, seeking
// only if it is not already there.
func (r *RegionView) syncBase(relPos uint64) error {
	want := int64(r.offset + relPos)
	if r.base.CurrentPosition() == want {
		return nil
	}
	return r.base.SeekTo(want)
}

func (r *RegionView) Read(length int, flags storage.ReadFlags) ([]byte, error) {
	if err := r.syncBase(r.relPos); err != nil {
		return nil, err
	}

	remaining := r.size - r.relPos
	n := uint64(length)
	if n > remaining {
		if !flags.AllowPartial && !(remaining == 0 && flags.AllowEmpty) {
			return nil, &storage.Error{Op: "read", Err: storage.ErrEndOfStream}
		}
		n = remaining
	}

	out, err := r.base.Read(int(n), flags)
	if err != nil {
		return nil, err
	}
	if !flags.Peek {
		r.relPos += uint64(len(out))
	}
	return out, nil
}
