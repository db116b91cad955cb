package safetensors

import (
	"errors"

	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/tensorio"
)

// ErrNoBuffer is returned by the Storage-delegating methods before
// ReadNextBuffer has produced a buffer (always, for a file with no
// tensors). Once produced, the single buffer stays readable even after
// ReadNextBuffer has reported false.
var ErrNoBuffer = errors.New("safetensors: no current buffer")

// Reader parses a safetensors stream: one JSON header describing a flat
// tensor table, followed by a single contiguous data region. It exposes
// that region as the sole buffer of the tensorio.Reader contract.
type Reader struct {
	base   storage.Storage
	h      header
	infos  []tensorio.TensorInfo
	served bool
	region *tensorio.RegionView
}

// NewReader reads and validates the safetensors header from base. The
// data region itself is not read until ReadNextBuffer is called.
func NewReader(base storage.Storage) (*Reader, error) {
	h, err := readHeader(base)
	if err != nil {
		return nil, err
	}

	infos := make([]tensorio.TensorInfo, len(h.tensors))
	for i, t := range h.tensors {
		infos[i] = t.toTensorInfo()
	}

	return &Reader{base: base, h: h, infos: infos}, nil
}

func (r *Reader) ReadNextBuffer() (bool, error) {
	if r.served {
		return false, nil
	}
	r.served = true
	if len(r.h.tensors) == 0 {
		return false, nil
	}
	r.region = tensorio.NewRegionView(r.base, r.h.dataOffset, r.h.dataSize)
	return true, nil
}

func (r *Reader) TensorsInBuffer() []tensorio.TensorInfo {
	return r.infos
}

func (r *Reader) BufferSize() uint64 {
	return r.h.dataSize
}

func (r *Reader) ReadAllTensorInfos() ([]tensorio.TensorInfo, error) {
	out := make([]tensorio.TensorInfo, len(r.infos))
	for i, info := range r.infos {
		out[i] = info
		out[i].OffsetStart = tensorio.UnknownOffset
	}
	return out, nil
}

func (r *Reader) CurrentPosition() int64 {
	if r.region == nil {
		return 0
	}
	return r.region.CurrentPosition()
}

func (r *Reader) OriginalPosition() int64 {
	if r.region == nil {
		return 0
	}
	return r.region.OriginalPosition()
}

func (r *Reader) CanSeekBack(allowDetect bool) bool {
	if r.region == nil {
		return false
	}
	return r.region.CanSeekBack(allowDetect)
}

func (r *Reader) SeekTo(position int64) error {
	if r.region == nil {
		return &Error{Op: "seek_to", Err: ErrNoBuffer}
	}
	return r.region.SeekTo(position)
}

func (r *Reader) SeekFromBack(absoluteFromEnd int64) error {
	if r.region == nil {
		return &Error{Op: "seek_from_back", Err: ErrNoBuffer}
	}
	return r.region.SeekFromBack(absoluteFromEnd)
}

func (r *Reader) Read(length int, flags storage.ReadFlags) ([]byte, error) {
	if r.region == nil {
		return nil, &Error{Op: "read", Err: ErrNoBuffer}
	}
	return r.region.Read(length, flags)
}
