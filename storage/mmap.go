//go:build !windows

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// MmapStorage is a Storage backed by a read-only memory-mapped file.
// Like MemoryStorage, all reads are zero-copy borrows and the storage is
// fully seekable.
type MmapStorage struct {
	f    *os.File
	data []byte
	pos  int64
}

// OpenMmap memory-maps path read-only and wraps it as a Storage.
func OpenMmap(path string) (*MmapStorage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr("open_mmap", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, wrapErr("open_mmap", err)
	}
	size := int(info.Size())
	if size == 0 {
		return &MmapStorage{f: f}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, wrapErr("open_mmap", err)
	}
	return &MmapStorage{f: f, data: data}, nil
}

func (m *MmapStorage) CurrentPosition() int64  { return m.pos }
func (m *MmapStorage) OriginalPosition() int64 { return m.pos }

// Close unmaps the region and closes the underlying file handle.
func (m *MmapStorage) Close() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
		m.data = nil
	}
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return wrapErr("close", err)
}

func (m *MmapStorage) CanSeekBack(bool) bool { return true }

func (m *MmapStorage) SeekTo(position int64) error {
	if position < 0 || position > int64(len(m.data)) {
		return wrapErr("seek_to", ErrEndOfStream)
	}
	m.pos = position
	return nil
}

func (m *MmapStorage) SeekFromBack(absoluteFromEnd int64) error {
	return m.SeekTo(int64(len(m.data)) - absoluteFromEnd)
}

func (m *MmapStorage) Read(length int, flags ReadFlags) ([]byte, error) {
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
