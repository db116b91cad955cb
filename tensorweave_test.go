package tensorweave

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorweave/tensorweave/gguf"
	"github.com/tensorweave/tensorweave/pytorch"
	"github.com/tensorweave/tensorweave/safetensors"
	"github.com/tensorweave/tensorweave/splitter"
	"github.com/tensorweave/tensorweave/storage"
)

// minimalGGUF builds the smallest valid GGUF v3 stream: magic, version,
// zero tensors, zero metadata entries.
func minimalGGUF() []byte {
	buf := make([]byte, 0, 24)
	buf = append(buf, "GGUF"...)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], 3)
	buf = append(buf, u32[:]...)
	var u64 [8]byte
	buf = append(buf, u64[:]...) // tensor_count = 0
	buf = append(buf, u64[:]...) // metadata_kv_count = 0
	return buf
}

// minimalSafetensors builds the smallest valid safetensors stream: an
// empty JSON header object and no data.
func minimalSafetensors() []byte {
	header := []byte("{}")
	buf := make([]byte, 0, 8+len(header))
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(header)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, header...)
	return buf
}

// minimalPyTorchZip builds a stored-only ZIP whose first (and only)
// member is archive/data.pkl containing an empty-dict pickle stream.
func minimalPyTorchZip() []byte {
	pickle := []byte{0x80, 2, '}', '.'} // PROTO 2, EMPTY_DICT, STOP

	const (
		localFileHeaderSignature  = 0x04034b50
		centralDirSignature       = 0x02014b50
		eocdSignature             = 0x06054b50
		localFileHeaderFixedSize  = 30
		centralDirHeaderFixedSize = 46
		eocdFixedSize             = 22
	)
	name := "archive/data.pkl"

	var buf []byte
	hdr := make([]byte, localFileHeaderFixedSize)
	binary.LittleEndian.PutUint32(hdr[0:4], localFileHeaderSignature)
	binary.LittleEndian.PutUint16(hdr[26:28], uint16(len(name)))
	buf = append(buf, hdr...)
	buf = append(buf, name...)
	buf = append(buf, pickle...)

	dirStart := uint32(len(buf))
	cdr := make([]byte, centralDirHeaderFixedSize)
	binary.LittleEndian.PutUint32(cdr[0:4], centralDirSignature)
	binary.LittleEndian.PutUint32(cdr[20:24], uint32(len(pickle)))
	binary.LittleEndian.PutUint32(cdr[24:28], uint32(len(pickle)))
	binary.LittleEndian.PutUint16(cdr[28:30], uint16(len(name)))
	buf = append(buf, cdr...)
	buf = append(buf, name...)
	dirSize := uint32(len(buf)) - dirStart

	eocd := make([]byte, eocdFixedSize)
	binary.LittleEndian.PutUint32(eocd[0:4], eocdSignature)
	binary.LittleEndian.PutUint16(eocd[10:12], 1)
	binary.LittleEndian.PutUint32(eocd[12:16], dirSize)
	binary.LittleEndian.PutUint32(eocd[16:20], dirStart)
	buf = append(buf, eocd...)
	return buf
}

func TestOpenDetectsGGUF(t *testing.T) {
	r, err := Open(storage.FromMemory(minimalGGUF()), false)
	require.NoError(t, err)
	assert.IsType(t, &gguf.Reader{}, r)
}

func TestOpenDetectsSafetensors(t *testing.T) {
	r, err := Open(storage.FromMemory(minimalSafetensors()), false)
	require.NoError(t, err)
	assert.IsType(t, &safetensors.Reader{}, r)
}

func TestOpenDetectsPyTorch(t *testing.T) {
	r, err := Open(storage.FromMemory(minimalPyTorchZip()), false)
	require.NoError(t, err)
	assert.IsType(t, &pytorch.Reader{}, r)
}

func TestOpenWrapsWithSplitterWhenRequested(t *testing.T) {
	r, err := Open(storage.FromMemory(minimalSafetensors()), true)
	require.NoError(t, err)
	assert.IsType(t, &splitter.Reader{}, r)
}

func TestOpenRejectsUnknownFormat(t *testing.T) {
	_, err := Open(storage.FromMemory([]byte("not a tensor file at all")), false)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
