// Package tensorio defines the contract every format parser (safetensors,
// gguf, pytorch) and the buffer splitter implement: buffer iteration,
// tensor metadata, and region-scoped sub-reads over a storage.Storage.
package tensorio

import (
	"github.com/tensorweave/tensorweave/dtype"
	"github.com/tensorweave/tensorweave/storage"
)

// UnknownOffset is the sentinel used for TensorInfo.OffsetStart when
// offsets are returned without per-buffer grouping (ReadAllTensorInfos),
// since such offsets would otherwise cross buffer boundaries.
const UnknownOffset = ^uint64(0)

// TensorInfo is pure tensor metadata: no payload, just enough to locate
// and interpret the tensor's bytes within a buffer.
type TensorInfo struct {
	// Name is the tensor's textual identifier; it may be empty.
	Name string

	// OffsetStart is the byte offset of the tensor's first element
	// within the buffer that contains it, or UnknownOffset.
	OffsetStart uint64

	// SizeBytes is the total number of bytes the tensor occupies.
	SizeBytes uint64

	// Type identifies the tensor's element representation.
	Type dtype.ValueType

	// Shape is the ordered sequence of dimension extents, innermost last.
	Shape []uint64

	// Stride gives, per dimension, the element-count offset (not byte
	// offset) between successive elements along that dimension. It has
	// the same length as Shape.
	Stride []uint64
}

// BufferView is the unit of iteration surfaced by a Reader: a contiguous
// byte range of known length, together with the tensors whose data lies
// entirely within it. Tensors within one buffer may overlap.
type BufferView struct {
	Size    uint64
	Tensors []TensorInfo
}

// Reader is the contract shared by every format-specific tensor reader
// (safetensors, gguf, pytorch) and by the buffer splitter that wraps one.
type Reader interface {
	storage.Storage

	// ReadNextBuffer advances to the next buffer, returning false once
	// there are no more. It must be called before TensorsInBuffer,
	// BufferSize, Read, or any other Storage method targeting the
	// current buffer are meaningful.
	ReadNextBuffer() (bool, error)

	// TensorsInBuffer returns the tensors of the current buffer, with
	// offsets relative to the start of that buffer.
	TensorsInBuffer() []TensorInfo

	// BufferSize returns the size in bytes of the current buffer.
	BufferSize() uint64

	// ReadAllTensorInfos returns every tensor across every buffer, with
	// OffsetStart set to UnknownOffset since offsets would otherwise
	// cross buffer boundaries.
	ReadAllTensorInfos() ([]TensorInfo, error)
}
