// Package dtype defines the closed set of tensor element representations
// shared by every format parser in this module.
package dtype

import "fmt"

// ValueType identifies how the bytes of a single tensor element are to be
// interpreted. It is a closed tag: every format parser maps its own
// type system onto these variants, recognizing but not necessarily being
// able to size or interpret every one of them (see Unknown).
type ValueType uint8

const (
	// Unknown marks a type the parser recognized but cannot size or
	// interpret (for example a quantized GGUF ggml type). Size is 0.
	Unknown ValueType = iota
	F32
	F64
	F16
	BF16
	U8
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F8E5M2
	F8E4M3
	Bool
	ComplexF32
	ComplexF64
	ComplexF16
)

var elementSize = [...]uint64{
	Unknown:    0,
	F32:        4,
	F64:        8,
	F16:        2,
	BF16:       2,
	U8:         1,
	U16:        2,
	U32:        4,
	U64:        8,
	I8:         1,
	I16:        2,
	I32:        4,
	I64:        8,
	F8E5M2:     1,
	F8E4M3:     1,
	Bool:       1,
	ComplexF32: 8,
	ComplexF64: 16,
	ComplexF16: 4,
}

var typeName = [...]string{
	Unknown:    "unknown",
	F32:        "f32",
	F64:        "f64",
	F16:        "f16",
	BF16:       "bf16",
	U8:         "u8",
	U16:        "u16",
	U32:        "u32",
	U64:        "u64",
	I8:         "i8",
	I16:        "i16",
	I32:        "i32",
	I64:        "i64",
	F8E5M2:     "f8_e5m2",
	F8E4M3:     "f8_e4m3",
	Bool:       "bool",
	ComplexF32: "complex_f32",
	ComplexF64: "complex_f64",
	ComplexF16: "complex_f16",
}

// Size returns the element size in bytes of dt, or 0 if dt is Unknown or
// out of range.
func (dt ValueType) Size() uint64 {
	if int(dt) >= len(elementSize) {
		return 0
	}
	return elementSize[dt]
}

// String returns a lower-case textual name for dt, e.g. "f32", "bf16".
func (dt ValueType) String() string {
	if int(dt) >= len(typeName) {
		return fmt.Sprintf("dtype(%d)", uint8(dt))
	}
	return typeName[dt]
}

// Valid reports whether dt is one of the defined ValueType constants.
func (dt ValueType) Valid() bool {
	return int(dt) < len(typeName)
}
