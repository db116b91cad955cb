package storage

import "io"

// streamingBase implements the peek/temporary/forward-seek semantics of
// the Storage contract on top of any io.Reader that can only be consumed
// forward. It is embedded by storage sources (such as GzipStorage) whose
// backing reader cannot seek.
//
// A lookahead buffer satisfies Peek (re-observable bytes) and the
// Temporary==false case (bytes must outlive the next read): when
// Temporary is not requested, data is copied into a caller-owned buffer;
// the internal lookahead slice itself is owned by streamingBase and is
// invalidated by the next non-peek read.
type streamingBase struct {
	r   io.Reader
	pos int64

	lookahead []byte // unconsumed bytes already read from r
}

func newStreamingBase(r io.Reader) streamingBase {
	return streamingBase{r: r}
}

func (s *streamingBase) currentPosition() int64 { return s.pos }

// fill ensures at least n bytes are present in the lookahead buffer,
// short-reading at end of stream.
func (s *streamingBase) fill(n int) error {
	for len(s.lookahead) < n {
		chunk := make([]byte, n-len(s.lookahead))
		read, err := s.r.Read(chunk)
		if read > 0 {
			s.lookahead = append(s.lookahead, chunk[:read]...)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if read == 0 {
			return nil
		}
	}
	return nil
}

func (s *streamingBase) read(length int, flags ReadFlags) ([]byte, error) {
	if err := s.fill(length); err != nil {
		return nil, err
	}

	available := len(s.lookahead)
	n, err := clampReadLength(length, int64(available), flags)
	if err != nil {
		return nil, err
	}

	out := s.lookahead[:n]
	if !flags.Temporary {
		cp := make([]byte, n)
		copy(cp, out)
		out = cp
	}

	if !flags.Peek {
		s.lookahead = s.lookahead[n:]
		s.pos += n
	}
	return out, nil
}

// seekForward discards n bytes by reading and throwing them away,
// emulating a forward seek on a stream that cannot truly seek.
func (s *streamingBase) seekForward(n int64) error {
	for n > 0 {
		step := n
		const maxStep = 1 << 20
		if step > maxStep {
			step = maxStep
		}
		buf, err := s.read(int(step), ReadFlags{Temporary: true, AllowPartial: true})
		if err != nil {
			return err
		}
		if len(buf) == 0 {
			return ErrEndOfStream
		}
		n -= int64(len(buf))
	}
	return nil
}
