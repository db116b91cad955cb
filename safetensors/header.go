// Package safetensors reads the safetensors tensor container format: an
// 8-byte little-endian header length, that many bytes of JSON describing
// a flat tensor table, followed by one contiguous data region.
package safetensors

import (
	"encoding/json"
	"fmt"
	"io"
	"math/bits"
	"sort"

	"github.com/tensorweave/tensorweave/dtype"
	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/tensorio"
	"github.com/tensorweave/tensorweave/wire"
)

// MaxHeaderSize bounds the JSON header length accepted by readHeader, so
// a corrupted or adversarial length prefix cannot trigger a giant
// allocation before any other validation runs.
const MaxHeaderSize = 100 << 20 // 100 MiB

const metadataKey = "__metadata__"

// dtypeNames maps the closed set of safetensors dtype strings to
// dtype.ValueType. Any string outside this set is rejected: safetensors
// does not have an "unknown but tolerated" type the way GGUF does.
var dtypeNames = map[string]dtype.ValueType{
	"F32":     dtype.F32,
	"F64":     dtype.F64,
	"F16":     dtype.F16,
	"BF16":    dtype.BF16,
	"U8":      dtype.U8,
	"U16":     dtype.U16,
	"U32":     dtype.U32,
	"U64":     dtype.U64,
	"I8":      dtype.I8,
	"I16":     dtype.I16,
	"I32":     dtype.I32,
	"I64":     dtype.I64,
	"F8_E5M2": dtype.F8E5M2,
	"F8_E4M3": dtype.F8E4M3,
	"BOOL":    dtype.Bool,
}

// tensorEntry is a single tensor's header-declared metadata, plus its
// name for the record once the JSON object's keys have been read.
type tensorEntry struct {
	name        string
	dType       dtype.ValueType
	shape       []uint64
	offsetBegin uint64
	offsetEnd   uint64
}

// header is the fully parsed and validated safetensors header.
type header struct {
	tensors    []tensorEntry
	metadata   map[string]string
	dataOffset uint64 // 8 + header JSON length
	dataSize   uint64 // max(offsetEnd) across all tensors
}

func readHeader(s storage.Storage) (header, error) {
	size, err := wire.ReadU64LE(s)
	if err != nil {
		return header{}, &Error{Op: "read_header_size", Err: err}
	}
	switch {
	case size < 2: // a bare-minimum header is "{}"
		return header{}, &Error{Op: "read_header", Err: ErrHeaderTooSmall}
	case size > MaxHeaderSize:
		return header{}, &Error{Op: "read_header", Err: ErrHeaderTooLarge}
	}

	raw, err := wire.ReadBytes(s, int(size))
	if err != nil {
		return header{}, &Error{Op: "read_header", Err: err}
	}

	h, err := parseHeaderJSON(raw)
	if err != nil {
		return header{}, err
	}
	h.dataOffset = 8 + size

	sorted, maxEnd, err := validate(h)
	if err != nil {
		return header{}, err
	}
	h.tensors = sorted
	h.dataSize = maxEnd
	return h, nil
}

func parseHeaderJSON(raw []byte) (header, error) {
	dec := json.NewDecoder(newByteReader(raw))
	dec.UseNumber()

	var obj map[string]map[string]any
	if err := dec.Decode(&obj); err != nil {
		return header{}, &Error{Op: "decode_header_json", Err: fmt.Errorf("%w: %v", ErrBadMetadata, err)}
	}

	var h header
	if rawMeta, ok := obj[metadataKey]; ok {
		delete(obj, metadataKey)
		meta, err := convertMetadata(rawMeta)
		if err != nil {
			return header{}, err
		}
		h.metadata = meta
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	h.tensors = make([]tensorEntry, 0, len(names))
	for _, name := range names {
		entry, err := convertTensor(name, obj[name])
		if err != nil {
			return header{}, err
		}
		h.tensors = append(h.tensors, entry)
	}
	return h, nil
}

func newByteReader(b []byte) io.Reader {
	return &byteReader{b: b}
}

// byteReader is a minimal io.Reader over an owned byte slice, avoiding a
// dependency on bytes.Reader purely to keep this file's imports narrow;
// json.Decoder only ever calls Read here.
type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

func convertMetadata(raw map[string]any) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, &Error{Op: "convert_metadata", Err: fmt.Errorf("%w: key %q has non-string value", ErrBadMetadata, k)}
		}
		meta[k] = s
	}
	return meta, nil
}

func convertTensor(name string, raw map[string]any) (tensorEntry, error) {
	e := tensorEntry{name: name}

	rawDType, ok := raw["dtype"]
	if !ok {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q missing dtype", ErrBadMetadata, name)}
	}
	strDType, ok := rawDType.(string)
	if !ok {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q has non-string dtype", ErrBadMetadata, name)}
	}
	dt, ok := dtypeNames[strDType]
	if !ok {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q has unknown dtype %q", ErrBadMetadata, name, strDType)}
	}
	e.dType = dt

	rawShape, ok := raw["shape"]
	if !ok {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q missing shape", ErrBadMetadata, name)}
	}
	shapeSlice, ok := rawShape.([]any)
	if !ok {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q has non-array shape", ErrBadMetadata, name)}
	}
	shape := make([]uint64, len(shapeSlice))
	for i, v := range shapeSlice {
		n, err := nonNegInt(v)
		if err != nil {
			return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q shape[%d]: %v", ErrBadMetadata, name, i, err)}
		}
		shape[i] = n
	}
	e.shape = shape

	rawOffsets, ok := raw["data_offsets"]
	if !ok {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q missing data_offsets", ErrBadMetadata, name)}
	}
	offSlice, ok := rawOffsets.([]any)
	if !ok || len(offSlice) != 2 {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q data_offsets must be a pair", ErrBadMetadata, name)}
	}
	begin, err := nonNegInt(offSlice[0])
	if err != nil {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q data_offsets[0]: %v", ErrBadMetadata, name, err)}
	}
	end, err := nonNegInt(offSlice[1])
	if err != nil {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q data_offsets[1]: %v", ErrBadMetadata, name, err)}
	}
	e.offsetBegin, e.offsetEnd = begin, end

	if len(raw) != 3 {
		return tensorEntry{}, &Error{Op: "convert_tensor", Err: fmt.Errorf("%w: tensor %q has unexpected extra keys", ErrBadMetadata, name)}
	}
	return e, nil
}

func nonNegInt(v any) (uint64, error) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("value is not a number")
	}
	i, err := num.Int64()
	if err != nil {
		return 0, fmt.Errorf("value %q does not fit an int64: %w", num.String(), err)
	}
	if i < 0 {
		return 0, fmt.Errorf("value is negative: %d", i)
	}
	return uint64(i), nil
}

// validate enforces the layout invariants spec.md §4.4 demands: sorted
// and gapless offsets starting at 0, begin <= end, and a byte size that
// agrees with shape * dtype size. It returns the tensors in the sorted
// (by offsetBegin) order callers must expose them in, and the maximum
// offset seen, which is the size of the single data buffer the header
// describes.
func validate(h header) ([]tensorEntry, uint64, error) {
	sorted := make([]tensorEntry, len(h.tensors))
	copy(sorted, h.tensors)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		return a.offsetBegin < b.offsetBegin || (a.offsetBegin == b.offsetBegin && a.offsetEnd < b.offsetEnd)
	})

	var expectedBegin uint64
	var maxEnd uint64
	for _, t := range sorted {
		if t.offsetBegin != expectedBegin {
			return nil, 0, &Error{Op: "validate", Err: fmt.Errorf("%w: tensor %q begins at %d, expected %d", ErrOffsetsNotContiguous, t.name, t.offsetBegin, expectedBegin)}
		}
		if t.offsetEnd < t.offsetBegin {
			return nil, 0, &Error{Op: "validate", Err: fmt.Errorf("%w: tensor %q has end %d < begin %d", ErrBadMetadata, t.name, t.offsetEnd, t.offsetBegin)}
		}
		byteSize, err := byteSizeFromShape(t)
		if err != nil {
			return nil, 0, &Error{Op: "validate", Err: fmt.Errorf("tensor %q: %w", t.name, err)}
		}
		if offSize := t.offsetEnd - t.offsetBegin; offSize != byteSize {
			return nil, 0, &Error{Op: "validate", Err: fmt.Errorf("%w: tensor %q declares %d bytes via offsets, %d via shape", ErrSizeMismatch, t.name, offSize, byteSize)}
		}
		expectedBegin = t.offsetEnd
		if t.offsetEnd > maxEnd {
			maxEnd = t.offsetEnd
		}
	}
	return sorted, maxEnd, nil
}

func byteSizeFromShape(t tensorEntry) (uint64, error) {
	elems := uint64(1)
	for _, v := range t.shape {
		hi, lo := bits.Mul64(elems, v)
		if hi != 0 {
			return 0, fmt.Errorf("int overflow computing element count from shape")
		}
		elems = lo
	}
	hi, size := bits.Mul64(elems, t.dType.Size())
	if hi != 0 {
		return 0, fmt.Errorf("int overflow computing byte size from shape")
	}
	return size, nil
}

func (e tensorEntry) toTensorInfo() tensorio.TensorInfo {
	return tensorio.TensorInfo{
		Name:        e.name,
		OffsetStart: e.offsetBegin,
		SizeBytes:   e.offsetEnd - e.offsetBegin,
		Type:        e.dType,
		Shape:       e.shape,
		Stride:      rowMajorStride(e.shape),
	}
}

// rowMajorStride computes the element-count stride of a row-major
// (C-ordered) shape: stride[i] = product of shape[i+1:].
func rowMajorStride(shape []uint64) []uint64 {
	if len(shape) == 0 {
		return []uint64{}
	}
	stride := make([]uint64, len(shape))
	acc := uint64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= shape[i]
	}
	return stride
}
