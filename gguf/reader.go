package gguf

import (
	"errors"
	"sort"

	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/tensorio"
)

// ErrNoBuffer is returned by the Storage-delegating methods before
// ReadNextBuffer has produced a buffer (always, for a file with no
// tensors). Once produced, the single buffer stays readable even after
// ReadNextBuffer has reported false.
var ErrNoBuffer = errors.New("gguf: no current buffer")

// Reader parses a GGUF v3 stream: typed key-value metadata followed by
// tensor infos, then a single alignment-padded data region. It exposes
// that region as the sole buffer of the tensorio.Reader contract.
type Reader struct {
	base   storage.Storage
	h      header
	infos  []tensorio.TensorInfo
	served bool
	region *tensorio.RegionView
}

// NewReader reads and validates the GGUF header (metadata and tensor
// infos) from base. The data region itself is not read until
// ReadNextBuffer is called.
func NewReader(base storage.Storage) (*Reader, error) {
	h, err := readHeader(base)
	if err != nil {
		return nil, err
	}

	infos := make([]tensorio.TensorInfo, len(h.tensors))
	for i, t := range h.tensors {
		info, err := t.toTensorInfo()
		if err != nil {
			return nil, wrapErr("build_tensor_info", err)
		}
		infos[i] = info
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].OffsetStart < infos[j].OffsetStart
	})

	return &Reader{base: base, h: h, infos: infos}, nil
}

// Metadata returns the file's parsed key-value metadata.
func (r *Reader) Metadata() Metadata {
	return r.h.metadata
}

// Alignment returns the data-region alignment in effect (default 32,
// overridden by a valid general.alignment metadata entry).
func (r *Reader) Alignment() uint64 {
	return r.h.alignment
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
