package storage

import "fmt"

// MemoryStorage is a Storage backed by an in-memory byte slice. All reads
// are zero-copy borrows of the underlying slice and the storage is fully
// seekable in both directions.
type MemoryStorage struct {
	data []byte
	pos  int64
}

// FromMemory wraps data as a Storage. The slice is not copied; callers
// must not mutate it while the storage is in use.
func FromMemory(data []byte) *MemoryStorage {
	return &MemoryStorage{data: data}
}

func (m *MemoryStorage) CurrentPosition() int64  { return m.pos }
func (m *MemoryStorage) OriginalPosition() int64 { return m.pos }

func (m *MemoryStorage) CanSeekBack(bool) bool { return true }

func (m *MemoryStorage) SeekTo(position int64) error {
	if position < 0 || position > int64(len(m.data)) {
		return wrapErr("seek_to", fmt.Errorf("position %d out of range [0, %d]", position, len(m.data)))
	}
	m.pos = position
	return nil
}

func (m *MemoryStorage) SeekFromBack(absoluteFromEnd int64) error {
	return m.SeekTo(int64(len(m.data)) - absoluteFromEnd)
}

func (m *MemoryStorage) Read(length int, flags ReadFlags) ([]byte, error) {
	remaining := int64(len(m.data)) - m.pos
	n, err := clampReadLength(length, remaining, flags)
	if err != nil {
		return nil, wrapErr("read", err)
	}

	out := m.data[m.pos : m.pos+n]
	if !flags.Peek {
		m.pos += n
	}
	return out, nil
}
