package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorweave/tensorweave/dtype"
	"github.com/tensorweave/tensorweave/storage"
)

// buildSafetensors assembles a minimal, valid safetensors byte stream
// from a JSON-marshalable header object and raw tensor data, exactly
// matching the on-disk layout: u64 length, header bytes, data bytes.
func buildSafetensors(t *testing.T, obj map[string]any, data []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(obj)
	require.NoError(t, err)

	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerJSON)))
	buf.Write(lenBuf[:])
	buf.Write(headerJSON)
	buf.Write(data)
	return buf.Bytes()
}

// TestReaderThreeTensors reproduces the end-to-end scenario of three
// contiguous integer tensors sharing one buffer.
func TestReaderThreeTensors(t *testing.T) {
	var data bytes.Buffer
	i64vals := []int64{1, 0, -1, 64, -9223372036854775808, 9223372036854775807}
	for _, v := range i64vals {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		data.Write(b[:])
	}
	i32vals := make([]byte, 6*4)
	data.Write(i32vals)
	i16vals := make([]byte, 6*2)
	data.Write(i16vals)

	obj := map[string]any{
		"int64_tensor": map[string]any{
			"dtype":        "I64",
			"shape":        []int{6},
			"data_offsets": []int{0, 48},
		},
		"int32_tensor": map[string]any{
			"dtype":        "I32",
			"shape":        []int{6},
			"data_offsets": []int{48, 72},
		},
		"int16_tensor": map[string]any{
			"dtype":        "I16",
			"shape":        []int{6},
			"data_offsets": []int{72, 84},
		},
	}
	raw := buildSafetensors(t, obj, data.Bytes())

	r, err := NewReader(storage.FromMemory(raw))
	require.NoError(t, err)

	ok, err := r.ReadNextBuffer()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(84), r.BufferSize())

	tensors := r.TensorsInBuffer()
	require.Len(t, tensors, 3)

	var names []string
	for _, ti := range tensors {
		names = append(names, ti.Name)
		assert.Equal(t, len(ti.Shape), len(ti.Stride))
	}
	// Sorted by offset_start, not alphabetically: int64_tensor (0) comes
	// before int32_tensor (48) comes before int16_tensor (72), even
	// though that's the reverse of their names' lexical order.
	assert.Equal(t, []string{"int64_tensor", "int32_tensor", "int16_tensor"}, names)

	assert.Equal(t, uint64(0), tensors[0].OffsetStart)
	assert.Equal(t, uint64(48), tensors[0].SizeBytes)
	assert.Equal(t, dtype.I64, tensors[0].Type)
	assert.Equal(t, uint64(48), tensors[1].OffsetStart)
	assert.Equal(t, uint64(72), tensors[2].OffsetStart)

	ok, err = r.ReadNextBuffer()
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.Read(8, storage.ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), int64(binary.LittleEndian.Uint64(got)))
}

func TestReaderEmptyYieldsNoBuffer(t *testing.T) {
	raw := buildSafetensors(t, map[string]any{}, nil)
	r, err := NewReader(storage.FromMemory(raw))
	require.NoError(t, err)

	ok, err := r.ReadNextBuffer()
	require.NoError(t, err)
	assert.False(t, ok)

	infos, err := r.ReadAllTensorInfos()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestReaderRejectsOverlap(t *testing.T) {
	obj := map[string]any{
		"a": map[string]any{"dtype": "U8", "shape": []int{4}, "data_offsets": []int{0, 4}},
		"b": map[string]any{"dtype": "U8", "shape": []int{4}, "data_offsets": []int{2, 6}},
	}
	raw := buildSafetensors(t, obj, make([]byte, 6))
	_, err := NewReader(storage.FromMemory(raw))
	require.Error(t, err)
}

func TestReaderRejectsSizeMismatch(t *testing.T) {
	obj := map[string]any{
		"a": map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int{0, 12}},
	}
	raw := buildSafetensors(t, obj, make([]byte, 12))
	_, err := NewReader(storage.FromMemory(raw))
	require.Error(t, err)
}
