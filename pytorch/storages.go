package pytorch

import "github.com/tensorweave/tensorweave/dtype"

// storageElementType maps a torch.*Storage global (as referenced by a
// _rebuild_tensor_v2 persid tuple) to the element type it implies, per
// nsd20463/gopickle's pickleFindClass table generalized to dtype.ValueType.
var storageElementType = map[string]dtype.ValueType{
	"torch.FloatStorage":         dtype.F32,
	"torch.DoubleStorage":        dtype.F64,
	"torch.HalfStorage":          dtype.F16,
	"torch.BFloat16Storage":      dtype.BF16,
	"torch.ByteStorage":          dtype.U8,
	"torch.CharStorage":          dtype.I8,
	"torch.ShortStorage":         dtype.I16,
	"torch.IntStorage":           dtype.I32,
	"torch.LongStorage":          dtype.I64,
	"torch.BoolStorage":          dtype.Bool,
	"torch.ComplexFloatStorage":  dtype.ComplexF32,
	"torch.ComplexDoubleStorage": dtype.ComplexF64,
}

// rebuildDtypeType maps a torch.<dtype> global, as carried by
// _rebuild_tensor_v3's 7th argument, to the element type it names. This
// overrides the storage's own nominal element type (spec.md §4.6).
var rebuildDtypeType = map[string]dtype.ValueType{
	"torch.float32":         dtype.F32,
	"torch.float":           dtype.F32,
	"torch.float64":         dtype.F64,
	"torch.double":          dtype.F64,
	"torch.float16":         dtype.F16,
	"torch.half":            dtype.F16,
	"torch.bfloat16":        dtype.BF16,
	"torch.uint8":           dtype.U8,
	"torch.int8":            dtype.I8,
	"torch.int16":           dtype.I16,
	"torch.short":           dtype.I16,
	"torch.int32":           dtype.I32,
	"torch.int":             dtype.I32,
	"torch.int64":           dtype.I64,
	"torch.long":            dtype.I64,
	"torch.bool":            dtype.Bool,
	"torch.complex64":       dtype.ComplexF32,
	"torch.complex128":      dtype.ComplexF64,
	"torch.float8_e5m2":     dtype.F8E5M2,
	"torch.float8_e5m2fnuz": dtype.F8E5M2,
	"torch.float8_e4m3fn":   dtype.F8E4M3,
	"torch.float8_e4m3fnuz": dtype.F8E4M3,
}

// storageRecord tracks one ZIP-backed storage as referenced by persid
// tuples in the pickle tree: its nominal element type and declared
// element count, fixed at first reference per spec.md §4.6.
type storageRecord struct {
	key         string
	valueType   dtype.ValueType
	numElements uint64
	sizeBytes   uint64
}
