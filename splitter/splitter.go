// Package splitter wraps a tensorio.Reader and re-partitions each of its
// buffers into the smallest covering groups of transitively-overlapping
// tensors, so a caller never has to hold a whole wide buffer (a
// safetensors/GGUF data region, or one PyTorch storage) resident at once
// when most of its tensors don't actually overlap.
package splitter

import (
	"errors"
	"sort"

	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/tensorio"
)

// ErrNoBuffer is returned by the Storage-delegating methods before
// ReadNextBuffer has produced a split buffer, or once there are no more.
var ErrNoBuffer = errors.New("splitter: no current buffer")

// group is one split buffer computed from a single underlying buffer: a
// contiguous run of tensors that pairwise overlap, rebased to start at 0.
type group struct {
	offset  uint64
	size    uint64
	tensors []tensorio.TensorInfo
}

// Reader presents a tensorio.Reader's buffers as a finer-grained sequence
// of smaller buffers, grouped by tensor overlap.
type Reader struct {
	underlying tensorio.Reader

	pending []group
	current group
	region  *tensorio.RegionView
}

// New wraps underlying, splitting each of its buffers on first access.
func New(underlying tensorio.Reader) *Reader {
	return &Reader{underlying: underlying}
}

func (r *Reader) ReadNextBuffer() (bool, error) {
	if len(r.pending) == 0 {
		ok, err := r.underlying.ReadNextBuffer()
		if err != nil {
			r.region = nil
			return false, err
		}
		if !ok {
			r.region = nil
			return false, nil
		}
		r.pending = splitGroups(r.underlying.TensorsInBuffer())
	}

	r.current, r.pending = r.pending[0], r.pending[1:]
	r.region = tensorio.NewRegionView(r.underlying, r.current.offset, r.current.size)
	return true, nil
}

// splitGroups sorts tensors by OffsetStart and partitions them into runs
// where every tensor's OffsetStart is strictly less than the maximum
// OffsetStart+SizeBytes seen so far in the run. A buffer with no tensors
// still produces one empty group, so the splitter preserves the
// "a buffer exists" signal the underlying reader gave.
func splitGroups(tensors []tensorio.TensorInfo) []group {
	if len(tensors) == 0 {
		return []group{{}}
	}

	sorted := make([]tensorio.TensorInfo, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OffsetStart < sorted[j].OffsetStart })

	var groups []group
	var run []tensorio.TensorInfo
	var runStart, runMaxEnd uint64

	flush := func() {
		if len(run) == 0 {
			return
		}
		g := group{offset: runStart, size: runMaxEnd - runStart, tensors: make([]tensorio.TensorInfo, len(run))}
		for i, t := range run {
			t.OffsetStart -= runStart
			g.tensors[i] = t
		}
		groups = append(groups, g)
		run = nil
	}

	for _, t := range sorted {
		end := t.OffsetStart + t.SizeBytes
		switch {
		case len(run) == 0:
			runStart, runMaxEnd = t.OffsetStart, end
		case t.OffsetStart < runMaxEnd:
			if end > runMaxEnd {
				runMaxEnd = end
			}
		default:
			flush()
			runStart, runMaxEnd = t.OffsetStart, end
		}
		run = append(run, t)
	}
	flush()

	return groups
}

func (r *Reader) TensorsInBuffer() []tensorio.TensorInfo {
	return r.current.tensors
}

func (r *Reader) BufferSize() uint64 {
	return r.current.size
}

// ReadAllTensorInfos fast-paths past the split/group bookkeeping: the set
// of tensors a reader exposes doesn't change when their buffers are
// re-partitioned, so this simply delegates to the underlying reader,
// which already has (or eagerly computed) the full list.
func (r *Reader) ReadAllTensorInfos() ([]tensorio.TensorInfo, error) {
	return r.underlying.ReadAllTensorInfos()
}

func (r *Reader) CurrentPosition() int64 {
	if r.region == nil {
		return 0
	}
	return r.region.CurrentPosition()
}

func (r *Reader) OriginalPosition() int64 {
	if r.region == nil {
		return 0
	}
	return r.region.OriginalPosition()
}

func (r *Reader) CanSeekBack(allowDetect bool) bool {
	if r.region == nil {
		return false
	}
	return r.region.CanSeekBack(allowDetect)
}

func (r *Reader) SeekTo(position int64) error {
	if r.region == nil {
		return wrapErr("seek_to", ErrNoBuffer)
	}
	return r.region.SeekTo(position)
}

func (r *Reader) SeekFromBack(absoluteFromEnd int64) error {
	if r.region == nil {
		return wrapErr("seek_from_back", ErrNoBuffer)
	}
	return r.region.SeekFromBack(absoluteFromEnd)
}

func (r *Reader) Read(length int, flags storage.ReadFlags) ([]byte, error) {
	if r.region == nil {
		return nil, wrapErr("read", ErrNoBuffer)
	}
	return r.region.Read(length, flags)
}

func wrapErr(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// Error wraps an operation name around an underlying cause, matching the
// small per-package error type used across this module.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "splitter: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
