package pytorch

import (
	"math/bits"
	"strconv"

	"github.com/tensorweave/tensorweave/dtype"
	"github.com/tensorweave/tensorweave/pickle"
)

// pendingTensor is one tensor found by walking data.pkl's object graph,
// before its storage member has been located in the ZIP.
type pendingTensor struct {
	name        string
	storageKey  string
	valueType   dtype.ValueType
	offsetElems uint64
	shape       []uint64
	stride      []uint64
}

// walker traverses a decoded pickle tree looking for
// torch._utils._rebuild_tensor_v2/v3 reductions, naming each one by the
// dict-key/list-index path that led to it (spec.md §4.6).
type walker struct {
	dec      *pickle.Decoder
	tensors  []pendingTensor
	storages map[string]*storageRecord
	order    []string
}

func newWalker(dec *pickle.Decoder) *walker {
	return &walker{
		dec:      dec,
		storages: make(map[string]*storageRecord),
	}
}

// walk traverses the tree rooted at idx, naming nodes starting with prefix.
func (w *walker) walk(idx int, prefix string) error {
	it := w.dec.At(idx)

	switch it.Type {
	case pickle.Dict:
		return w.walkDict(it, prefix)
	case pickle.List, pickle.Tuple:
		return w.walkSequence(it, prefix)
	case pickle.Reduce:
		return w.walkReduce(it, prefix)
	default:
		return nil
	}
}

func (w *walker) walkDict(it *pickle.Item, prefix string) error {
	for _, entry := range it.DictChildren {
		key := w.dec.At(entry.Key)
		if key.Type != pickle.Str {
			continue
		}
		name := joinName(prefix, string(key.Data))
		if err := w.walk(entry.Value, name); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walkSequence(it *pickle.Item, prefix string) error {
	for i, childIdx := range it.Children {
		name := joinName(prefix, strconv.Itoa(i))
		if err := w.walk(childIdx, name); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walkReduce(it *pickle.Item, prefix string) error {
	if len(it.Children) != 2 {
		return ErrMalformedRebuild
	}
	callable := w.dec.At(it.Children[0])
	args := w.dec.At(it.Children[1])

	if callable.Type == pickle.Global {
		module, name := callable.GlobalName()
		if module == "collections" && name == "OrderedDict" {
			return w.walkOrderedDict(args, prefix)
		}
		if module == "torch._utils" && (name == "_rebuild_tensor_v2" || name == "_rebuild_tensor_v3") {
			return w.walkRebuildTensor(args, prefix, name == "_rebuild_tensor_v3")
		}
	}

	// Unrecognized reduce (e.g. _rebuild_parameter wrapping another
	// reduce): recurse transparently into every argument under the
	// same name, so a tensor nested one level deeper is still found.
	if args.Type == pickle.Tuple || args.Type == pickle.List {
		for _, childIdx := range args.Children {
			if err := w.walk(childIdx, prefix); err != nil {
				return err
			}
		}
	}
	return nil
}

// walkOrderedDict handles collections.OrderedDict(items), whose sole
// argument is a list of (key, value) pairs rather than a Dict item.
func (w *walker) walkOrderedDict(args *pickle.Item, prefix string) error {
	if len(args.Children) == 0 {
		return nil
	}
	items := w.dec.At(args.Children[0])
	if items.Type != pickle.List && items.Type != pickle.Tuple {
		return nil
	}
	for _, pairIdx := range items.Children {
		pair := w.dec.At(pairIdx)
		if pair.Type != pickle.Tuple || len(pair.Children) != 2 {
			continue
		}
		key := w.dec.At(pair.Children[0])
		if key.Type != pickle.Str {
			continue
		}
		name := joinName(prefix, string(key.Data))
		if err := w.walk(pair.Children[1], name); err != nil {
			return err
		}
	}
	return nil
}

// walkRebuildTensor interprets a torch._utils._rebuild_tensor_v2/v3 call:
// args is the tuple (storage, storage_offset, size, stride[, requires_grad,
// backward_hooks[, dtype]]).
func (w *walker) walkRebuildTensor(args *pickle.Item, name string, v3 bool) error {
	if args.Type != pickle.Tuple || len(args.Children) < 4 {
		return ErrMalformedRebuild
	}

	persid := w.dec.At(args.Children[0])
	storageKey, elementType, numElements, err := w.readPersID(persid)
	if err != nil {
		return err
	}

	offsetElems, err := w.readIntLike(args.Children[1])
	if err != nil {
		return wrapErr("read_storage_offset", err)
	}
	shape, err := w.readIntTuple(args.Children[2])
	if err != nil {
		return wrapErr("read_shape", err)
	}
	stride, err := w.readIntTuple(args.Children[3])
	if err != nil {
		return wrapErr("read_stride", err)
	}

	valueType := elementType
	if v3 && len(args.Children) >= 7 {
		dtypeItem := w.dec.At(args.Children[6])
		if dtypeItem.Type == pickle.Global {
			module, dn := dtypeItem.GlobalName()
			full := module + "." + dn
			vt, ok := rebuildDtypeType[full]
			if !ok {
				return wrapErr("resolve_dtype_override", ErrUnknownDtype)
			}
			valueType = vt
		}
	}

	rec, ok := w.storages[storageKey]
	if !ok {
		elemSize := valueType.Size()
		hi, sizeBytes := bits.Mul64(numElements, elemSize)
		if hi != 0 {
			return wrapErr("compute_storage_size", ErrOverflow)
		}
		rec = &storageRecord{
			key:         storageKey,
			valueType:   valueType,
			numElements: numElements,
			sizeBytes:   sizeBytes,
		}
		w.storages[storageKey] = rec
		w.order = append(w.order, storageKey)
	} else if rec.valueType != valueType || rec.numElements != numElements {
		return ErrStorageRedefined
	}

	w.tensors = append(w.tensors, pendingTensor{
		name:        name,
		storageKey:  storageKey,
		valueType:   valueType,
		offsetElems: offsetElems,
		shape:       shape,
		stride:      stride,
	})
	return nil
}

// readPersID unpacks a persid item wrapping the persistent-storage
// tuple ("storage", element_global, storage_key, device, num_elements).
func (w *walker) readPersID(it *pickle.Item) (storageKey string, valueType dtype.ValueType, numElements uint64, err error) {
	var tuple *pickle.Item
	switch it.Type {
	case pickle.PersID:
		if len(it.Children) == 1 {
			tuple = w.dec.At(it.Children[0])
		} else if it.Data != nil {
			// Old-style PERSID: a bare string, not a tuple; unsupported
			// by the tensor reductions this module recognizes.
			return "", dtype.Unknown, 0, ErrMalformedPersID
		}
	default:
		return "", dtype.Unknown, 0, ErrMalformedPersID
	}
	if tuple == nil || tuple.Type != pickle.Tuple || len(tuple.Children) < 5 {
		return "", dtype.Unknown, 0, ErrMalformedPersID
	}

	marker := w.dec.At(tuple.Children[0])
	if marker.Type != pickle.Str || string(marker.Data) != "storage" {
		return "", dtype.Unknown, 0, ErrMalformedPersID
	}

	elemGlobal := w.dec.At(tuple.Children[1])
	if elemGlobal.Type != pickle.Global {
		return "", dtype.Unknown, 0, ErrMalformedPersID
	}
	module, gname := elemGlobal.GlobalName()
	vt, ok := storageElementType[module+"."+gname]
	if !ok {
		return "", dtype.Unknown, 0, ErrUnknownStorageClass
	}

	keyItem := w.dec.At(tuple.Children[2])
	if keyItem.Type != pickle.Str {
		return "", dtype.Unknown, 0, ErrMalformedPersID
	}

	count, err := w.readIntLike(tuple.Children[4])
	if err != nil {
		return "", dtype.Unknown, 0, err
	}

	return string(keyItem.Data), vt, count, nil
}

// readIntLike reads an Int item's decimal text as a uint64.
func (w *walker) readIntLike(idx int) (uint64, error) {
	it := w.dec.At(idx)
	if it.Type != pickle.Int {
		return 0, ErrMalformedRebuild
	}
	v, err := strconv.ParseUint(string(it.Data), 10, 64)
	if err != nil {
		return 0, ErrMalformedRebuild
	}
	return v, nil
}

// readIntTuple reads a Tuple/List of Int items as a uint64 slice.
func (w *walker) readIntTuple(idx int) ([]uint64, error) {
	it := w.dec.At(idx)
	if it.Type != pickle.Tuple && it.Type != pickle.List {
		return nil, ErrMalformedRebuild
	}
	out := make([]uint64, len(it.Children))
	for i, childIdx := range it.Children {
		v, err := w.readIntLike(childIdx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func joinName(prefix, component string) string {
	if prefix == "" {
		return component
	}
	return prefix + "." + component
}
