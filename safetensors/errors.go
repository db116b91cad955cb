package safetensors

import (
	"errors"
	"fmt"
)

// ErrHeaderTooSmall is returned when the declared header length is
// smaller than the bare minimum JSON object "{}".
var ErrHeaderTooSmall = errors.New("safetensors: header too small")

// ErrHeaderTooLarge is returned when the declared header length exceeds
// MaxHeaderSize, guarding against giant allocations from corrupted or
// adversarial input.
var ErrHeaderTooLarge = errors.New("safetensors: header too large")

// ErrBadMetadata is returned when the header JSON does not match the
// expected shape (non-object value, wrong field types, unknown dtype).
var ErrBadMetadata = errors.New("safetensors: malformed header metadata")

// ErrOffsetsNotContiguous is returned when the union of tensor data
// offsets, sorted ascending, is not a single gapless region starting at 0.
var ErrOffsetsNotContiguous = errors.New("safetensors: tensor data offsets are not contiguous")

// ErrSizeMismatch is returned when a tensor's declared offset span
// disagrees with the byte size implied by its shape and dtype.
var ErrSizeMismatch = errors.New("safetensors: tensor byte size does not match shape")

// Error wraps one of the sentinels above with the tensor or field it
// concerns.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("safetensors: %s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
