package gguf

import (
	"math/bits"

	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/tensorio"
	"github.com/tensorweave/tensorweave/wire"
)

// tensorEntry is a single tensor info record, as laid out in the file:
// GGUF stores extents innermost-first; shape here has already been
// reversed to the common innermost-last convention (spec.md §4.5).
type tensorEntry struct {
	name       string
	ggmlType   GgmlType
	shape      []uint64
	dataOffset uint64 // relative to the start of the data section
}

// header is the fully parsed GGUF header: metadata, tensor infos, and
// the computed data region.
type header struct {
	version    uint32
	metadata   Metadata
	tensors    []tensorEntry
	alignment  uint64
	dataOffset uint64 // absolute offset of the data section
	dataSize   uint64 // max(dataOffset + size) across all tensors
}

func readHeader(s storage.Storage) (header, error) {
	magic, err := wire.ReadBytes(s, 4)
	if err != nil {
		return header{}, wrapErr("read_magic", err)
	}
	if string(magic) != Magic {
		return header{}, wrapErr("read_magic", ErrBadMagic)
	}

	version, err := wire.ReadU32LE(s)
	if err != nil {
		return header{}, wrapErr("read_version", err)
	}
	if version != SupportedVersion {
		return header{}, wrapErr("read_version", ErrUnsupportedVersion)
	}

	tensorCount, err := wire.ReadU64LE(s)
	if err != nil {
		return header{}, wrapErr("read_tensor_count", err)
	}
	kvCount, err := wire.ReadU64LE(s)
	if err != nil {
		return header{}, wrapErr("read_kv_count", err)
	}

	entries := make([]KV, 0, kvCount)
	for i := uint64(0); i < kvCount; i++ {
		kv, err := readKV(s)
		if err != nil {
			return header{}, wrapErr("read_metadata_kv", err)
		}
		entries = append(entries, kv)
	}
	metadata := newMetadata(entries)

	alignment := uint64(DefaultAlignment)
	if v, ok := metadata.Lookup(AlignmentKey); ok {
		a, ok := asUint64(v)
		if !ok || a == 0 || a%8 != 0 {
			return header{}, wrapErr("read_metadata_kv", ErrBadAlignment)
		}
		alignment = a
	}

	tensors := make([]tensorEntry, 0, tensorCount)
	for i := uint64(0); i < tensorCount; i++ {
		t, err := readTensorEntry(s)
		if err != nil {
			return header{}, wrapErr("read_tensor_info", err)
		}
		tensors = append(tensors, t)
	}

	headerEnd := uint64(s.CurrentPosition())
	dataOffset := alignUp(headerEnd, alignment)

	maxEnd := uint64(0)
	for _, t := range tensors {
		size, err := tensorio.SizeFromShape(t.shape, t.ggmlType.ValueType().Size())
		if err != nil {
			return header{}, wrapErr("compute_tensor_size", err)
		}
		end, carry := bits.Add64(t.dataOffset, size, 0)
		if carry != 0 {
			return header{}, wrapErr("compute_tensor_size", tensorio.ErrOverflow)
		}
		if end > maxEnd {
			maxEnd = end
		}
	}

	return header{
		version:    version,
		metadata:   metadata,
		tensors:    tensors,
		alignment:  alignment,
		dataOffset: dataOffset,
		dataSize:   maxEnd,
	}, nil
}

func alignUp(v, alignment uint64) uint64 {
	rem := v % alignment
	if rem == 0 {
		return v
	}
	return v + (alignment - rem)
}

func asUint64(v Value) (uint64, bool) {
	switch n := v.Scalar.(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int8:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int16:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func readKV(s storage.Storage) (KV, error) {
	key, err := wire.ReadLengthPrefixedString(s)
	if err != nil {
		return KV{}, err
	}
	tag, err := wire.ReadU32LE(s)
	if err != nil {
		return KV{}, err
	}
	v, err := readValue(s, ValueKind(tag))
	if err != nil {
		return KV{}, err
	}
	return KV{Key: key, Value: v}, nil
}

func readValue(s storage.Storage, kind ValueKind) (Value, error) {
	if kind == KindArray {
		elemTag, err := wire.ReadU32LE(s)
		if err != nil {
			return Value{}, err
		}
		elemKind := ValueKind(elemTag)
		count, err := wire.ReadU64LE(s)
		if err != nil {
			return Value{}, err
		}
		elements := make([]any, count)
		for i := range elements {
			var ev any
			if elemKind == KindArray {
				ev, err = readValue(s, elemKind)
			} else {
				ev, err = readScalar(s, elemKind)
			}
			if err != nil {
				return Value{}, err
			}
			elements[i] = ev
		}
		return Value{Kind: KindArray, ElemKind: elemKind, Elements: elements}, nil
	}

	scalar, err := readScalar(s, kind)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: kind, Scalar: scalar}, nil
}

func readScalar(s storage.Storage, kind ValueKind) (any, error) {
	switch kind {
	case KindUint8:
		v, err := wire.ReadU8(s)
		return v, err
	case KindInt8:
		v, err := wire.ReadU8(s)
		return int8(v), err
	case KindUint16:
		return wire.ReadU16LE(s)
	case KindInt16:
		v, err := wire.ReadU16LE(s)
		return int16(v), err
	case KindUint32:
		return wire.ReadU32LE(s)
	case KindInt32:
		v, err := wire.ReadU32LE(s)
		return int32(v), err
	case KindFloat32:
		return wire.ReadF32LE(s)
	case KindBool:
		v, err := wire.ReadU8(s)
		return v != 0, err
	case KindString:
		return wire.ReadLengthPrefixedString(s)
	case KindUint64:
		return wire.ReadU64LE(s)
	case KindInt64:
		v, err := wire.ReadU64LE(s)
		return int64(v), err
	case KindFloat64:
		return wire.ReadF64LE(s)
	default:
		return nil, ErrBadValueKind
	}
}

func readTensorEntry(s storage.Storage) (tensorEntry, error) {
	name, err := wire.ReadLengthPrefixedString(s)
	if err != nil {
		return tensorEntry{}, err
	}
	rank, err := wire.ReadU32LE(s)
	if err != nil {
		return tensorEntry{}, err
	}

	// GGUF writes extents innermost-first; this module stores shape
	// innermost-last to match the common row-major convention shared
	// with safetensors and PyTorch (spec.md §4.5).
	shape := make([]uint64, rank)
	for i := uint32(0); i < rank; i++ {
		v, err := wire.ReadU64LE(s)
		if err != nil {
			return tensorEntry{}, err
		}
		shape[rank-1-i] = v
	}

	ggmlType, err := wire.ReadU32LE(s)
	if err != nil {
		return tensorEntry{}, err
	}
	dataOffset, err := wire.ReadU64LE(s)
	if err != nil {
		return tensorEntry{}, err
	}

	return tensorEntry{
		name:       name,
		ggmlType:   GgmlType(ggmlType),
		shape:      shape,
		dataOffset: dataOffset,
	}, nil
}

func (t tensorEntry) toTensorInfo() (tensorio.TensorInfo, error) {
	vt := t.ggmlType.ValueType()
	size, err := tensorio.SizeFromShape(t.shape, vt.Size())
	if err != nil {
		return tensorio.TensorInfo{}, err
	}
	return tensorio.TensorInfo{
		Name:        t.name,
		OffsetStart: t.dataOffset,
		SizeBytes:   size,
		Type:        vt,
		Shape:       t.shape,
		Stride:      tensorio.RowMajorStride(t.shape),
	}, nil
}
