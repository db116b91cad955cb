package pytorch

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorweave/tensorweave/dtype"
	"github.com/tensorweave/tensorweave/storage"
)

// pickleBuilder assembles a pickle opcode stream by hand, using a small
// binary (non-framed) opcode set under a PROTO 2 header: PROTO,
// SHORT_BINUNICODE (a protocol 4 opcode the decoder accepts under any
// PROTO), BININT, GLOBAL, MARK/TUPLE, BINPERSID, REDUCE,
// EMPTY_DICT/SETITEMS.
type pickleBuilder struct {
	buf bytes.Buffer
}

func (p *pickleBuilder) proto(v byte) *pickleBuilder {
	p.buf.WriteByte(0x80)
	p.buf.WriteByte(v)
	return p
}

func (p *pickleBuilder) mark() *pickleBuilder    { p.buf.WriteByte('('); return p }
func (p *pickleBuilder) tuple() *pickleBuilder   { p.buf.WriteByte('t'); return p }
func (p *pickleBuilder) reduce() *pickleBuilder  { p.buf.WriteByte('R'); return p }
func (p *pickleBuilder) persid() *pickleBuilder  { p.buf.WriteByte('Q'); return p }
func (p *pickleBuilder) emptyDict() *pickleBuilder { p.buf.WriteByte('}'); return p }
func (p *pickleBuilder) setitems() *pickleBuilder  { p.buf.WriteByte('u'); return p }
func (p *pickleBuilder) stop() *pickleBuilder    { p.buf.WriteByte('.'); return p }

func (p *pickleBuilder) str(s string) *pickleBuilder {
	p.buf.WriteByte(0x8c)
	p.buf.WriteByte(byte(len(s)))
	p.buf.WriteString(s)
	return p
}

func (p *pickleBuilder) int32(v int32) *pickleBuilder {
	p.buf.WriteByte('J')
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	p.buf.Write(b[:])
	return p
}

func (p *pickleBuilder) intTuple(vs []int) *pickleBuilder {
	p.mark()
	for _, v := range vs {
		p.int32(int32(v))
	}
	return p.tuple()
}

// storageRef pushes a persid item wrapping ("storage", torch.<class>,
// key, "cpu", numElements).
func (p *pickleBuilder) storageRef(class, key string, numElements int) *pickleBuilder {
	p.mark()
	p.str("storage")
	p.buf.WriteByte('c')
	p.buf.WriteString("torch")
	p.buf.WriteByte('\n')
	p.buf.WriteString(class)
	p.buf.WriteByte('\n')
	p.str(key)
	p.str("cpu")
	p.int32(int32(numElements))
	p.tuple()
	return p.persid()
}

// rebuildTensorV2 pushes a REDUCE item equivalent to
// torch._utils._rebuild_tensor_v2(storageRef, offset, shape, stride,
// False, None). Only the first four arguments matter to this module.
func (p *pickleBuilder) rebuildTensorV2(class, key string, numElements, offsetElems int, shape, stride []int) *pickleBuilder {
	p.buf.WriteByte('c')
	p.buf.WriteString("torch._utils")
	p.buf.WriteByte('\n')
	p.buf.WriteString("_rebuild_tensor_v2")
	p.buf.WriteByte('\n')

	p.mark()
	p.storageRef(class, key, numElements)
	p.int32(int32(offsetElems))
	p.intTuple(shape)
	p.intTuple(stride)
	p.tuple()
	return p.reduce()
}

// ---- ZIP assembly (ordered, stored-only, no data descriptors) ----

type zipMember struct {
	name    string
	content []byte
}

func buildOrderedZip(t *testing.T, members []zipMember) []byte {
	t.Helper()

	const (
		localFileHeaderSignature  = 0x04034b50
		centralDirSignature       = 0x02014b50
		eocdSignature             = 0x06054b50
		localFileHeaderFixedSize  = 30
		centralDirHeaderFixedSize = 46
		eocdFixedSize             = 22
		compressionStored         = 0
	)

	type centralRecord struct {
		name        string
		crc         uint32
		size        uint32
		localOffset uint32
	}
	var centrals []centralRecord

	var buf bytes.Buffer
	for _, m := range members {
		crc := crc32.ChecksumIEEE(m.content)
		localOffset := uint32(buf.Len())

		hdr := make([]byte, localFileHeaderFixedSize)
		binary.LittleEndian.PutUint32(hdr[0:4], localFileHeaderSignature)
		binary.LittleEndian.PutUint16(hdr[4:6], 20)
		binary.LittleEndian.PutUint16(hdr[6:8], 0)
		binary.LittleEndian.PutUint16(hdr[8:10], compressionStored)
		binary.LittleEndian.PutUint32(hdr[14:18], crc)
		binary.LittleEndian.PutUint32(hdr[18:22], uint32(len(m.content)))
		binary.LittleEndian.PutUint32(hdr[22:26], uint32(len(m.content)))
		binary.LittleEndian.PutUint16(hdr[26:28], uint16(len(m.name)))
		binary.LittleEndian.PutUint16(hdr[28:30], 0)

		buf.Write(hdr)
		buf.WriteString(m.name)
		buf.Write(m.content)

		centrals = append(centrals, centralRecord{m.name, crc, uint32(len(m.content)), localOffset})
	}

	dirStart := uint32(buf.Len())
	for _, c := range centrals {
		hdr := make([]byte, centralDirHeaderFixedSize)
		binary.LittleEndian.PutUint32(hdr[0:4], centralDirSignature)
		binary.LittleEndian.PutUint16(hdr[10:12], compressionStored)
		binary.LittleEndian.PutUint32(hdr[16:20], c.crc)
		binary.LittleEndian.PutUint32(hdr[20:24], c.size)
		binary.LittleEndian.PutUint32(hdr[24:28], c.size)
		binary.LittleEndian.PutUint16(hdr[28:30], uint16(len(c.name)))
		binary.LittleEndian.PutUint32(hdr[42:46], c.localOffset)

		buf.Write(hdr)
		buf.WriteString(c.name)
	}
	dirSize := uint32(buf.Len()) - dirStart

	eocd := make([]byte, eocdFixedSize)
	binary.LittleEndian.PutUint32(eocd[0:4], eocdSignature)
	binary.LittleEndian.PutUint16(eocd[10:12], uint16(len(centrals)))
	binary.LittleEndian.PutUint32(eocd[12:16], dirSize)
	binary.LittleEndian.PutUint32(eocd[16:20], dirStart)
	buf.Write(eocd)

	return buf.Bytes()
}

func TestReaderSharedStorageSlices(t *testing.T) {
	var p pickleBuilder
	p.proto(2)
	p.emptyDict()
	p.mark()

	p.str("slice1")
	p.rebuildTensorV2("FloatStorage", "1", 16, 0, []int{4}, []int{1})

	p.str("slice2")
	p.rebuildTensorV2("FloatStorage", "1", 16, 4, []int{4}, []int{1})

	p.setitems()
	p.stop()

	zip := buildOrderedZip(t, []zipMember{
		{"archive/data.pkl", p.buf.Bytes()},
		{"archive/data/1", bytes.Repeat([]byte{0x01}, 64)},
	})

	r, err := NewReader(storage.FromMemory(zip))
	require.NoError(t, err)
	assert.Equal(t, "archive", r.Prefix())

	ok, err := r.ReadNextBuffer()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(64), r.BufferSize())

	tensors := r.TensorsInBuffer()
	require.Len(t, tensors, 2)
	names := []string{tensors[0].Name, tensors[1].Name}
	assert.ElementsMatch(t, []string{"slice1", "slice2"}, names)
	for _, ti := range tensors {
		assert.Equal(t, dtype.F32, ti.Type)
	}

	ok, err = r.ReadNextBuffer()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReaderRankFourPermute(t *testing.T) {
	shape := []int{2, 3, 4, 5}
	// Stride as if the underlying contiguous storage had shape
	// (2, 4, 3, 5) and dims 1 and 2 were swapped by permute().
	stride := []int{60, 5, 15, 1}

	var p pickleBuilder
	p.proto(2)
	p.emptyDict()
	p.mark()
	p.str("permuted")
	p.rebuildTensorV2("FloatStorage", "w", 120, 0, shape, stride)
	p.setitems()
	p.stop()

	zip := buildOrderedZip(t, []zipMember{
		{"archive/data.pkl", p.buf.Bytes()},
		{"archive/data/w", bytes.Repeat([]byte{0x00}, 480)},
	})

	r, err := NewReader(storage.FromMemory(zip))
	require.NoError(t, err)

	ok, err := r.ReadNextBuffer()
	require.NoError(t, err)
	require.True(t, ok)

	tensors := r.TensorsInBuffer()
	require.Len(t, tensors, 1)
	ti := tensors[0]
	assert.Equal(t, []uint64{60, 5, 15, 1}, ti.Stride)

	coords := []uint64{0, 1, 2, 1}
	var elemOffset uint64
	for i, c := range coords {
		elemOffset += c * ti.Stride[i]
	}
	byteOffset := ti.OffsetStart + elemOffset*dtype.F32.Size()
	assert.Equal(t, (1*5+2*15+1*1)*dtype.F32.Size(), byteOffset)
}

func TestReaderEmptyFile(t *testing.T) {
	var p pickleBuilder
	p.proto(2)
	p.emptyDict()
	p.stop()

	zip := buildOrderedZip(t, []zipMember{
		{"archive/data.pkl", p.buf.Bytes()},
	})

	r, err := NewReader(storage.FromMemory(zip))
	require.NoError(t, err)

	infos, err := r.ReadAllTensorInfos()
	require.NoError(t, err)
	assert.Empty(t, infos)

	ok, err := r.ReadNextBuffer()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), r.BufferSize())

	ok, err = r.ReadNextBuffer()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReaderMissingStorageMember(t *testing.T) {
	var p pickleBuilder
	p.proto(2)
	p.emptyDict()
	p.mark()
	p.str("orphan")
	p.rebuildTensorV2("FloatStorage", "missing", 4, 0, []int{4}, []int{1})
	p.setitems()
	p.stop()

	zip := buildOrderedZip(t, []zipMember{
		{"archive/data.pkl", p.buf.Bytes()},
	})

	r, err := NewReader(storage.FromMemory(zip))
	require.NoError(t, err)

	_, err = r.ReadNextBuffer()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageNotFound)
}

func TestReaderRejectsNonDataPickleFirstMember(t *testing.T) {
	zip := buildOrderedZip(t, []zipMember{
		{"archive/version", []byte("3")},
	})

	_, err := NewReader(storage.FromMemory(zip))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDataPickle)
}
