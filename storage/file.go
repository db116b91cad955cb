package storage

import (
	"io"
	"os"
)

// FileStorage is a Storage backed by an *os.File, read sequentially.
// Seekability is not assumed: it is detected lazily on first use (by
// attempting a no-op seek) and the result is cached.
type FileStorage struct {
	f   *os.File
	pos int64

	seekProbed bool
	seekable   bool
}

// OpenFile opens path and wraps it as a Storage.
func OpenFile(path string) (*FileStorage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr("open_file", err)
	}
	return &FileStorage{f: f}, nil
}

func (s *FileStorage) CurrentPosition() int64  { return s.pos }
func (s *FileStorage) OriginalPosition() int64 { return s.pos }

// Close releases the underlying file handle.
func (s *FileStorage) Close() error {
	return wrapErr("close", s.f.Close())
}

// CanSeekBack probes the file's seekability with a harmless no-op seek
// (seek to current position) the first time it is asked, unless
// allowDetect is false, in which case it only reports an already-cached
// result.
func (s *FileStorage) CanSeekBack(allowDetect bool) bool {
	if s.seekProbed {
		return s.seekable
	}
	if !allowDetect {
		return false
	}
	_, err := s.f.Seek(0, io.SeekCurrent)
	s.seekProbed = true
	s.seekable = err == nil
	return s.seekable
}

func (s *FileStorage) SeekTo(position int64) error {
	if position < s.pos && !s.CanSeekBack(true) {
		return wrapErr("seek_to", ErrSeekBackward)
	}
	if !s.CanSeekBack(true) {
		// Forward seek on a pipe or similar: discard the skipped bytes.
		if _, err := io.CopyN(io.Discard, s.f, position-s.pos); err != nil {
			if err == io.EOF {
				err = ErrEndOfStream
			}
			return wrapErr("seek_to", err)
		}
		s.pos = position
		return nil
	}
	if _, err := s.f.Seek(position, io.SeekStart); err != nil {
		return wrapErr("seek_to", err)
	}
	s.pos = position
	return nil
}

func (s *FileStorage) SeekFromBack(absoluteFromEnd int64) error {
	if !s.CanSeekBack(true) {
		return wrapErr("seek_from_back", ErrSeekBackward)
	}
	pos, err := s.f.Seek(-absoluteFromEnd, io.SeekEnd)
	if err != nil {
		return wrapErr("seek_from_back", err)
	}
	s.pos = pos
	return nil
}

func (s *FileStorage) Read(length int, flags ReadFlags) ([]byte, error) {
	buf := make([]byte, length)
	n, err := io.ReadFull(s.f, buf)
	switch {
	case err == nil:
		// got everything requested
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		if n == 0 && !flags.AllowEmpty && !flags.AllowPartial {
			return nil, wrapErr("read", ErrEndOfStream)
		}
		if n < length && !flags.AllowPartial && !(n == 0 && flags.AllowEmpty) {
			return nil, wrapErr("read", ErrEndOfStream)
		}
	default:
		return nil, wrapErr("read", err)
	}

	buf = buf[:n]
	if flags.Peek {
		if _, serr := s.f.Seek(-int64(n), io.SeekCurrent); serr != nil {
			return nil, wrapErr("read", serr)
		}
	} else {
		s.pos += int64(n)
	}
	return buf, nil
}
