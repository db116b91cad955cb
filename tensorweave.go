// Package tensorweave gives a single read-only API over the three tensor
// container formats used by ML checkpoints: Safetensors, GGUF, and
// PyTorch's pickle-over-ZIP ".pt" format. Open auto-detects which one a
// storage.Storage holds and returns a tensorio.Reader over it; the
// per-format constructors are also exposed directly for callers who
// already know their input's format.
package tensorweave

import (
	"bytes"
	"errors"

	"github.com/tensorweave/tensorweave/gguf"
	"github.com/tensorweave/tensorweave/pytorch"
	"github.com/tensorweave/tensorweave/safetensors"
	"github.com/tensorweave/tensorweave/splitter"
	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/tensorio"
)

// ErrUnknownFormat is returned by Open when the first bytes of a storage
// match none of GGUF, ZIP (PyTorch), or Safetensors.
var ErrUnknownFormat = errors.New("tensorweave: unrecognized tensor container format")

// detectPeekSize is the number of leading bytes Open inspects: enough to
// see either magic ("GGUF", the ZIP local-file signature) or byte 8 of a
// Safetensors stream, where its JSON header begins after the u64 length.
const detectPeekSize = 12

var zipLocalFileSignature = []byte{0x50, 0x4b, 0x03, 0x04}
var ggufMagic = []byte("GGUF")

// Open peeks at base's leading bytes to detect its format, constructs the
// matching parser, and returns it as a tensorio.Reader. The peek does not
// consume any bytes, so the chosen parser still sees base from position
// 0. When smallBuffers is true, the result is wrapped in a buffer
// splitter that partitions each format-level buffer into the smallest
// covering groups of overlapping tensors.
func Open(base storage.Storage, smallBuffers bool) (tensorio.Reader, error) {
	peek, err := base.Read(detectPeekSize, storage.ReadFlags{Peek: true, AllowPartial: true})
	if err != nil {
		return nil, wrapErr("detect_format", err)
	}

	var reader tensorio.Reader
	switch {
	case hasPrefix(peek, ggufMagic):
		reader, err = GGUFReader(base)
	case hasPrefix(peek, zipLocalFileSignature):
		reader, err = PyTorchReader(base)
	case len(peek) >= 9 && peek[8] == '{':
		reader, err = SafetensorsReader(base)
	default:
		return nil, wrapErr("detect_format", ErrUnknownFormat)
	}
	if err != nil {
		return nil, err
	}

	if smallBuffers {
		return splitter.New(reader), nil
	}
	return reader, nil
}

func hasPrefix(peek, magic []byte) bool {
	return len(peek) >= len(magic) && bytes.Equal(peek[:len(magic)], magic)
}

// SafetensorsReader parses base as a Safetensors stream.
func SafetensorsReader(base storage.Storage) (*safetensors.Reader, error) {
	return safetensors.NewReader(base)
}

// GGUFReader parses base as a GGUF v3 stream.
func GGUFReader(base storage.Storage) (*gguf.Reader, error) {
	return gguf.NewReader(base)
}

// PyTorchReader parses base as a PyTorch ".pt" checkpoint: a stored-only
// ZIP archive whose members it drives and decodes directly.
func PyTorchReader(base storage.Storage) (*pytorch.Reader, error) {
	return pytorch.NewReader(base)
}

// Error wraps an operation name around an underlying cause, matching the
// small per-package error type used across this module.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "tensorweave: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
