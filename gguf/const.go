// Package gguf reads the GGUF tensor container format: a fixed header
// (magic, version, counts), typed key-value metadata, tensor infos, and
// a single alignment-padded data region.
package gguf

import "github.com/tensorweave/tensorweave/dtype"

// Magic is the 4-byte ASCII signature every GGUF file begins with.
const Magic = "GGUF"

// SupportedVersion is the only GGUF version this reader parses, per spec.
const SupportedVersion = 3

// DefaultAlignment is used when the metadata carries no
// "general.alignment" key.
const DefaultAlignment = 32

// AlignmentKey is the one metadata key this parser semantically consumes:
// it overrides DefaultAlignment when present, non-zero, and a multiple
// of 8.
const AlignmentKey = "general.alignment"

// GgmlType is ggml's own tensor element type tag, a strict superset of
// dtype.ValueType that additionally names the quantized block formats
// this module recognizes but does not size or interpret.
type GgmlType uint32

const (
	GgmlF32 GgmlType = iota
	GgmlF16
	GgmlQ4_0
	GgmlQ4_1
	ggmlRemoved4
	ggmlRemoved5
	GgmlQ5_0
	GgmlQ5_1
	GgmlQ8_0
	GgmlQ8_1
	GgmlQ2K
	GgmlQ3K
	GgmlQ4K
	GgmlQ5K
	GgmlQ6K
	GgmlQ8K
	GgmlIQ2XXS
	GgmlIQ2XS
	GgmlIQ3XXS
	GgmlIQ1S
	GgmlIQ4NL
	GgmlIQ3S
	GgmlIQ2S
	GgmlIQ4XS
	GgmlI8
	GgmlI16
	GgmlI32
	GgmlI64
	GgmlF64
	GgmlIQ1M
	GgmlBF16
)

// valueType maps the subset of GgmlType this module can size and
// interpret onto dtype.ValueType. Every other (quantized) tag decodes to
// dtype.Unknown per spec.md §4.5 and §9: recognized, listed, but with
// size_bytes == 0.
var valueType = map[GgmlType]dtype.ValueType{
	GgmlF32:  dtype.F32,
	GgmlF16:  dtype.F16,
	GgmlI8:   dtype.I8,
	GgmlI16:  dtype.I16,
	GgmlI32:  dtype.I32,
	GgmlI64:  dtype.I64,
	GgmlF64:  dtype.F64,
	GgmlBF16: dtype.BF16,
}

// ValueType returns the dtype.ValueType this module supports for t, or
// dtype.Unknown for any recognized-but-unsupported (quantized) type.
func (t GgmlType) ValueType() dtype.ValueType {
	if vt, ok := valueType[t]; ok {
		return vt
	}
	return dtype.Unknown
}
