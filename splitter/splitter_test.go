package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorweave/tensorweave/dtype"
	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/tensorio"
)

// fakeBuffer is one buffer a fakeReader surfaces: raw bytes plus the
// tensors it contains, offsets relative to the buffer's own start.
type fakeBuffer struct {
	data    []byte
	tensors []tensorio.TensorInfo
}

// fakeReader is a minimal tensorio.Reader stub so splitter tests can
// control exact tensor offsets and overlap without going through a real
// format parser.
type fakeReader struct {
	buffers []fakeBuffer
	cur     int
	pos     int64
}

func newFakeReader(buffers []fakeBuffer) *fakeReader {
	return &fakeReader{buffers: buffers, cur: -1}
}

func (f *fakeReader) ReadNextBuffer() (bool, error) {
	f.cur++
	f.pos = 0
	return f.cur < len(f.buffers), nil
}

func (f *fakeReader) TensorsInBuffer() []tensorio.TensorInfo {
	return f.buffers[f.cur].tensors
}

func (f *fakeReader) BufferSize() uint64 {
	return uint64(len(f.buffers[f.cur].data))
}

func (f *fakeReader) ReadAllTensorInfos() ([]tensorio.TensorInfo, error) {
	var out []tensorio.TensorInfo
	for _, b := range f.buffers {
		for _, t := range b.tensors {
			t.OffsetStart = tensorio.UnknownOffset
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeReader) CurrentPosition() int64        { return f.pos }
func (f *fakeReader) OriginalPosition() int64       { return f.pos }
func (f *fakeReader) CanSeekBack(bool) bool         { return true }
func (f *fakeReader) SeekTo(position int64) error   { f.pos = position; return nil }
func (f *fakeReader) SeekFromBack(fromEnd int64) error {
	f.pos = int64(len(f.buffers[f.cur].data)) - fromEnd
	return nil
}

func (f *fakeReader) Read(length int, flags storage.ReadFlags) ([]byte, error) {
	data := f.buffers[f.cur].data
	remaining := int64(len(data)) - f.pos
	n := int64(length)
	if n > remaining {
		if !flags.AllowPartial && !(remaining == 0 && flags.AllowEmpty) {
			return nil, storage.ErrEndOfStream
		}
		n = remaining
	}
	out := data[f.pos : f.pos+n]
	if !flags.Peek {
		f.pos += n
	}
	return out, nil
}

func tensorAt(name string, offset, size uint64) tensorio.TensorInfo {
	return tensorio.TensorInfo{
		Name:        name,
		OffsetStart: offset,
		SizeBytes:   size,
		Type:        dtype.U8,
		Shape:       []uint64{size},
		Stride:      []uint64{1},
	}
}

// TestSplitterSeparatesNonOverlapping checks that three tensors with no
// byte-range overlap become three singleton split buffers, each rebased
// to start at offset 0.
func TestSplitterSeparatesNonOverlapping(t *testing.T) {
	underlying := newFakeReader([]fakeBuffer{{
		data: make([]byte, 30),
		tensors: []tensorio.TensorInfo{
			tensorAt("a", 0, 10),
			tensorAt("b", 10, 10),
			tensorAt("c", 20, 10),
		},
	}})

	s := New(underlying)

	for _, name := range []string{"a", "b", "c"} {
		ok, err := s.ReadNextBuffer()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint64(10), s.BufferSize())
		tensors := s.TensorsInBuffer()
		require.Len(t, tensors, 1)
		assert.Equal(t, name, tensors[0].Name)
		assert.Equal(t, uint64(0), tensors[0].OffsetStart)
	}

	ok, err := s.ReadNextBuffer()
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestSplitterGroupsOverlapping checks that two overlapping tensors merge
// into one split buffer spanning their union, with offsets rebased to the
// group's own start, while a third disjoint tensor stays a singleton.
func TestSplitterGroupsOverlapping(t *testing.T) {
	underlying := newFakeReader([]fakeBuffer{{
		data: make([]byte, 40),
		tensors: []tensorio.TensorInfo{
			tensorAt("view1", 0, 16),
			tensorAt("view2", 8, 16),
			tensorAt("solo", 24, 8),
		},
	}})

	s := New(underlying)

	ok, err := s.ReadNextBuffer()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(24), s.BufferSize())
	tensors := s.TensorsInBuffer()
	require.Len(t, tensors, 2)
	assert.Equal(t, "view1", tensors[0].Name)
	assert.Equal(t, uint64(0), tensors[0].OffsetStart)
	assert.Equal(t, "view2", tensors[1].Name)
	assert.Equal(t, uint64(8), tensors[1].OffsetStart)

	ok, err = s.ReadNextBuffer()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(8), s.BufferSize())
	tensors = s.TensorsInBuffer()
	require.Len(t, tensors, 1)
	assert.Equal(t, "solo", tensors[0].Name)
	assert.Equal(t, uint64(0), tensors[0].OffsetStart)

	ok, err = s.ReadNextBuffer()
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestSplitterReadThroughGroup checks that reading bytes from a split
// buffer returns the correct rebased slice of the underlying buffer.
func TestSplitterReadThroughGroup(t *testing.T) {
	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i)
	}
	underlying := newFakeReader([]fakeBuffer{{
		data: data,
		tensors: []tensorio.TensorInfo{
			tensorAt("a", 0, 10),
			tensorAt("b", 10, 10),
		},
	}})

	s := New(underlying)

	ok, err := s.ReadNextBuffer()
	require.NoError(t, err)
	require.True(t, ok)
	out, err := s.Read(10, storage.ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, data[0:10], out)

	ok, err = s.ReadNextBuffer()
	require.NoError(t, err)
	require.True(t, ok)
	out, err = s.Read(10, storage.ReadFlags{})
	require.NoError(t, err)
	assert.Equal(t, data[10:20], out)
}

// TestSplitterEmptyBufferPreservesSignal checks that an underlying buffer
// with no tensors still yields exactly one split buffer, of size 0.
func TestSplitterEmptyBufferPreservesSignal(t *testing.T) {
	underlying := newFakeReader([]fakeBuffer{{data: nil, tensors: nil}})

	s := New(underlying)

	ok, err := s.ReadNextBuffer()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), s.BufferSize())
	assert.Empty(t, s.TensorsInBuffer())

	ok, err = s.ReadNextBuffer()
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestSplitterReadAllTensorInfosDelegates checks that ReadAllTensorInfos
// passes through to the underlying reader unchanged (splitting only
// repartitions buffers, it doesn't change which tensors exist).
func TestSplitterReadAllTensorInfosDelegates(t *testing.T) {
	underlying := newFakeReader([]fakeBuffer{{
		data: make([]byte, 20),
		tensors: []tensorio.TensorInfo{
			tensorAt("a", 0, 10),
			tensorAt("b", 10, 10),
		},
	}})

	s := New(underlying)
	infos, err := s.ReadAllTensorInfos()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, tensorio.UnknownOffset, info.OffsetStart)
	}
}
