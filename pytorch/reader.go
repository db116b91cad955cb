// Package pytorch reads PyTorch ".pt" checkpoints: a stored-only ZIP
// archive whose first member is a pickled object graph (data.pkl) and
// whose remaining members hold the raw bytes of each tensor's storage.
package pytorch

import (
	"errors"
	"math/bits"
	"sort"
	"strings"

	"github.com/tensorweave/tensorweave/pickle"
	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/tensorio"
	"github.com/tensorweave/tensorweave/zipstore"
)

// ErrNoBuffer is returned by the Storage-delegating methods before
// ReadNextBuffer has produced a buffer, or once there are no more.
var ErrNoBuffer = errors.New("pytorch: no current buffer")

const dataPickleSuffix = "/data.pkl"
const dataMemberInfix = "/data/"

// Reader drives a ZIP archive, decoding its data.pkl member into a
// pickle tree and producing one buffer per distinct storage the tree
// references, in the ZIP's own iteration order.
type Reader struct {
	zr     *zipstore.Reader
	prefix string

	storages     map[string]*storageRecord
	tensorsByKey map[string][]tensorio.TensorInfo
	allInfos     []tensorio.TensorInfo
	visited      map[string]bool

	currentKey     string
	currentTensors []tensorio.TensorInfo
	currentSize    uint64
	haveBuffer     bool

	emptyFile   bool
	emptyServed bool
}

// NewReader opens base as a ZIP archive, validates that its first
// member is <prefix>/data.pkl, decodes it, and walks the resulting
// pickle tree to discover every tensor and the storage it belongs to.
// The storage members themselves are not read until ReadNextBuffer is
// called.
func NewReader(base storage.Storage) (*Reader, error) {
	zr, err := zipstore.NewReader(base)
	if err != nil {
		return nil, wrapErr("open_zip", err)
	}

	ok, err := zr.ReadNextFile()
	if err != nil {
		return nil, wrapErr("read_first_member", err)
	}
	if !ok {
		return nil, wrapErr("read_first_member", ErrNoDataPickle)
	}

	entry := zr.CurrentEntry()
	if !strings.HasSuffix(entry.Name, dataPickleSuffix) {
		return nil, wrapErr("read_first_member", ErrNoDataPickle)
	}
	prefix := strings.TrimSuffix(entry.Name, dataPickleSuffix)

	dec := pickle.NewDecoder(zr)
	root, err := dec.Decode()
	if err != nil {
		return nil, wrapErr("decode_pickle", err)
	}

	w := newWalker(dec)
	if err := w.walk(root, ""); err != nil {
		return nil, wrapErr("walk_object_graph", err)
	}

	r := &Reader{
		zr:       zr,
		prefix:   prefix,
		storages: w.storages,
		visited:  make(map[string]bool, len(w.storages)),
		emptyFile: len(w.storages) == 0,
	}

	tensorsByKey := make(map[string][]tensorio.TensorInfo, len(w.storages))
	var allInfos []tensorio.TensorInfo
	for _, t := range w.tensors {
		rec := w.storages[t.storageKey]
		elemSize := t.valueType.Size()

		hiOff, offsetBytes := bits.Mul64(t.offsetElems, elemSize)
		if hiOff != 0 {
			return nil, wrapErr("compute_tensor_offset", ErrOverflow)
		}

		sizeBytes, err := tensorio.SizeFromStride(t.shape, t.stride, elemSize)
		if err != nil {
			return nil, wrapErr("compute_tensor_size", err)
		}

		end, carry := bits.Add64(offsetBytes, sizeBytes, 0)
		if carry != 0 {
			return nil, wrapErr("compute_tensor_size", ErrOverflow)
		}
		if end > rec.sizeBytes {
			return nil, wrapErr("validate_tensor_bounds", ErrTensorExceedsStorage)
		}

		info := tensorio.TensorInfo{
			Name:        t.name,
			OffsetStart: offsetBytes,
			SizeBytes:   sizeBytes,
			Type:        t.valueType,
			Shape:       t.shape,
			Stride:      t.stride,
		}
		tensorsByKey[t.storageKey] = append(tensorsByKey[t.storageKey], info)

		unsentineled := info
		unsentineled.OffsetStart = tensorio.UnknownOffset
		allInfos = append(allInfos, unsentineled)
	}

	for _, infos := range tensorsByKey {
		sort.Slice(infos, func(i, j int) bool { return infos[i].OffsetStart < infos[j].OffsetStart })
	}

	r.tensorsByKey = tensorsByKey
	r.allInfos = allInfos
	return r, nil
}

// Prefix returns the archive's top-level directory name, as captured
// from the name of its first (data.pkl) member.
func (r *Reader) Prefix() string {
	return r.prefix
}

func (r *Reader) matchStorageKey(name string) (string, bool) {
	withPrefix := r.prefix + dataMemberInfix
	if !strings.HasPrefix(name, withPrefix) {
		return "", false
	}
	return strings.TrimPrefix(name, withPrefix), true
}

func (r *Reader) ReadNextBuffer() (bool, error) {
	if r.emptyFile {
		if r.emptyServed {
			r.haveBuffer = false
			return false, nil
		}
		r.emptyServed = true
		r.haveBuffer = true
		r.currentKey = ""
		r.currentTensors = nil
		r.currentSize = 0
		return true, nil
	}

	for {
		ok, err := r.zr.ReadNextFile()
		if err != nil {
			r.haveBuffer = false
			return false, wrapErr("read_next_buffer", err)
		}
		if !ok {
			r.haveBuffer = false
			for key := range r.storages {
				if !r.visited[key] {
					return false, wrapErr("read_next_buffer", ErrStorageNotFound)
				}
			}
			return false, nil
		}

		entry := r.zr.CurrentEntry()
		key, ok := r.matchStorageKey(entry.Name)
		if !ok {
			continue
		}
		rec, ok := r.storages[key]
		if !ok {
			// A ZIP member with a storage-shaped name that nothing in
			// the pickle tree referenced; skip it.
			continue
		}

		r.visited[key] = true
		r.currentKey = key
		r.currentTensors = r.tensorsByKey[key]
		r.currentSize = rec.sizeBytes
		r.haveBuffer = true
		return true, nil
	}
}

// CurrentStorageKey returns the storage key of the buffer most recently
// produced by ReadNextBuffer.
func (r *Reader) CurrentStorageKey() string {
	return r.currentKey
}

func (r *Reader) TensorsInBuffer() []tensorio.TensorInfo {
	return r.currentTensors
}

func (r *Reader) BufferSize() uint64 {
	return r.currentSize
}

func (r *Reader) ReadAllTensorInfos() ([]tensorio.TensorInfo, error) {
	return r.allInfos, nil
}

func (r *Reader) CurrentPosition() int64 {
	if !r.haveBuffer || r.emptyFile {
		return 0
	}
	return r.zr.CurrentPosition()
}

func (r *Reader) OriginalPosition() int64 {
	if !r.haveBuffer || r.emptyFile {
		return 0
	}
	return r.zr.OriginalPosition()
}

func (r *Reader) CanSeekBack(allowDetect bool) bool {
	if !r.haveBuffer || r.emptyFile {
		return false
	}
	return r.zr.CanSeekBack(allowDetect)
}

func (r *Reader) SeekTo(position int64) error {
	if !r.haveBuffer || r.emptyFile {
		return wrapErr("seek_to", ErrNoBuffer)
	}
	return r.zr.SeekTo(position)
}

func (r *Reader) SeekFromBack(absoluteFromEnd int64) error {
	if !r.haveBuffer || r.emptyFile {
		return wrapErr("seek_from_back", ErrNoBuffer)
	}
	return r.zr.SeekFromBack(absoluteFromEnd)
}

func (r *Reader) Read(length int, flags storage.ReadFlags) ([]byte, error) {
	if !r.haveBuffer || r.emptyFile {
		return nil, wrapErr("read", ErrNoBuffer)
	}
	return r.zr.Read(length, flags)
}
