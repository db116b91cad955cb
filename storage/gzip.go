package storage

import (
	"os"

	"github.com/klauspost/compress/gzip"
)

// GzipStorage is a Storage over a gzip-compressed file, decompressed on
// the fly with github.com/klauspost/compress/gzip. It cannot seek
// backward; a forward SeekTo is emulated by reading and discarding bytes.
type GzipStorage struct {
	f    *os.File
	gz   *gzip.Reader
	base streamingBase
}

// OpenGzip opens path and wraps its decompressed content as a Storage.
func OpenGzip(path string) (*GzipStorage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr("open_gzip", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, wrapErr("open_gzip", err)
	}
	return &GzipStorage{f: f, gz: gz, base: newStreamingBase(gz)}, nil
}

func (s *GzipStorage) CurrentPosition() int64  { return s.base.currentPosition() }
func (s *GzipStorage) OriginalPosition() int64 { return s.base.currentPosition() }

// Close releases the gzip reader and the underlying file handle.
func (s *GzipStorage) Close() error {
	err := s.gz.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return wrapErr("close", err)
}

func (s *GzipStorage) CanSeekBack(bool) bool { return false }

func (s *GzipStorage) SeekTo(position int64) error {
	if position < s.base.currentPosition() {
		return wrapErr("seek_to", ErrSeekBackward)
	}
	return wrapErr("seek_to", s.base.seekForward(position-s.base.currentPosition()))
}

func (s *GzipStorage) SeekFromBack(int64) error {
	return wrapErr("seek_from_back", ErrSeekBackward)
}

func (s *GzipStorage) Read(length int, flags ReadFlags) ([]byte, error) {
	out, err := s.base.read(length, flags)
	return out, wrapErr("read", err)
}
