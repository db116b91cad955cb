package gguf

// ValueKind tags a GGUF metadata value's wire-level type, per spec.md
// §4.5: the fixed-width scalars, length-prefixed strings, and typed
// arrays a metadata KV entry's u32 type tag can name. Distinct from
// GgmlType, which tags tensor element types rather than metadata values.
type ValueKind uint32

const (
	KindUint8 ValueKind = iota
	KindInt8
	KindUint16
	KindInt16
	KindUint32
	KindInt32
	KindFloat32
	KindBool
	KindString
	KindArray
	KindUint64
	KindInt64
	KindFloat64
)

// Value is one decoded metadata value. Exactly one of Scalar or Elements
// is meaningful, selected by Kind: KindArray populates Elements (each
// entry itself a Go value of the type ElemKind names, or a nested Value
// when ElemKind is KindArray), every other Kind
// populates Scalar with the corresponding Go native type (uint8, int8,
// uint16, int16, uint32, int32, float32, bool, string, uint64, int64, or
// float64).
type Value struct {
	Kind     ValueKind
	Scalar   any
	ElemKind ValueKind
	Elements []any
}

// KV is one metadata key-value pair, in file order.
type KV struct {
	Key   string
	Value Value
}

// Metadata is the ordered sequence of a GGUF file's metadata KV entries,
// plus a by-key index for lookup. Per the "Supplemental features" section
// of SPEC_FULL.md, every recognized KV is retained (not just
// general.alignment) so callers can inspect architecture/tokenizer
// metadata even though only alignment affects parsing semantics.
type Metadata struct {
	Entries []KV
	byKey   map[string]int
}

func newMetadata(entries []KV) Metadata {
	byKey := make(map[string]int, len(entries))
	for i, kv := range entries {
		byKey[kv.Key] = i
	}
	return Metadata{Entries: entries, byKey: byKey}
}

// Lookup returns the value stored under key, if any.
func (m Metadata) Lookup(key string) (Value, bool) {
	idx, ok := m.byKey[key]
	if !ok {
		return Value{}, false
	}
	return m.Entries[idx].Value, true
}
