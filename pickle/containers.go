package pickle

import (
	"hash/maphash"

	"github.com/aristanetworks/gomap"
)

func equalDictKey(a, b string) bool { return a == b }

func hashDictKey(seed maphash.Seed, s string) uint64 {
	return maphash.String(seed, s)
}

func newDictItem() Item {
	item := newItem(Dict)
	item.dictIndex = gomap.NewHint[string, int](0, equalDictKey, hashDictKey)
	return item
}

// canonicalDictKey returns a string that two pickle keys compare equal
// under only if they would be the same Python dict key, for the simple
// leaf types a PyTorch checkpoint's dicts actually use (str, int,
// bool, none). Complex keys (tuples, objects) return ok=false, so
// SETITEM always appends rather than risk merging two different keys
// under one string.
func canonicalDictKey(item *Item) (string, bool) {
	switch item.Type {
	case Str:
		return "s:" + string(item.Data), true
	case Int:
		return "i:" + string(item.Data), true
	case Bool:
		return "b:" + string(item.Data), true
	case None:
		return "n:", true
	default:
		return "", false
	}
}

// setDictItem assigns key -> value within dict, overwriting an
// existing equal key in place (as Python's dict does) when the key is
// one of the simple types canonicalDictKey recognizes.
func (d *Decoder) setDictItem(dict *Item, key, value int) {
	keyItem := d.At(key)
	if canon, ok := canonicalDictKey(keyItem); ok {
		if pos, found := dict.dictIndex.Get_(canon); found {
			dict.DictChildren[pos].Value = value
			return
		}
		dict.dictIndex.Set(canon, len(dict.DictChildren))
	}
	dict.DictChildren = append(dict.DictChildren, DictEntry{Key: key, Value: value})
}

func (d *Decoder) loadList() error {
	items, err := d.popToMark()
	if err != nil {
		return err
	}
	d.push(d.alloc(Item{Type: List, Children: items, BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadAppend() error {
	value, err := d.pop()
	if err != nil {
		return err
	}
	listIdx, err := d.top()
	if err != nil {
		return err
	}
	list := d.At(listIdx)
	if list.Type != List {
		return ErrTypeMismatch
	}
	list.Children = append(list.Children, value)
	return nil
}

func (d *Decoder) loadAppends() error {
	items, err := d.popToMark()
	if err != nil {
		return err
	}
	listIdx, err := d.top()
	if err != nil {
		return err
	}
	list := d.At(listIdx)
	if list.Type != List {
		return ErrTypeMismatch
	}
	list.Children = append(list.Children, items...)
	return nil
}

func (d *Decoder) loadTuple() error {
	items, err := d.popToMark()
	if err != nil {
		return err
	}
	d.push(d.alloc(Item{Type: Tuple, Children: items, BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadTupleN(n int) error {
	items := make([]int, n)
	for i := n - 1; i >= 0; i-- {
		idx, err := d.pop()
		if err != nil {
			return err
		}
		items[i] = idx
	}
	d.push(d.alloc(Item{Type: Tuple, Children: items, BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadDict() error {
	items, err := d.popToMark()
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return ErrMalformed
	}
	dict := newDictItem()
	for i := 0; i < len(items); i += 2 {
		d.setDictItem(&dict, items[i], items[i+1])
	}
	d.push(d.alloc(dict))
	return nil
}

func (d *Decoder) loadSetitem() error {
	value, err := d.pop()
	if err != nil {
		return err
	}
	key, err := d.pop()
	if err != nil {
		return err
	}
	dictIdx, err := d.top()
	if err != nil {
		return err
	}
	dict := d.At(dictIdx)
	// The reference unpickler does not verify the target is a dict
	// before SETITEM; some real-world pickles rely on that laxity, so
	// this is preserved rather than turned into ErrTypeMismatch.
	if dict.Type != Dict {
		dict.Type = Dict
		dict.dictIndex = gomap.NewHint[string, int](0, equalDictKey, hashDictKey)
	}
	d.setDictItem(dict, key, value)
	return nil
}

func (d *Decoder) loadSetitems() error {
	items, err := d.popToMark()
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return ErrMalformed
	}
	dictIdx, err := d.top()
	if err != nil {
		return err
	}
	dict := d.At(dictIdx)
	if dict.Type != Dict {
		dict.Type = Dict
		dict.dictIndex = gomap.NewHint[string, int](0, equalDictKey, hashDictKey)
	}
	for i := 0; i < len(items); i += 2 {
		d.setDictItem(dict, items[i], items[i+1])
	}
	return nil
}

func (d *Decoder) loadFrozenset() error {
	items, err := d.popToMark()
	if err != nil {
		return err
	}
	d.push(d.alloc(Item{Type: FrozenSet, Children: items, BuildState: noBuildState}))
	return nil
}

func (d *Decoder) loadAdditems() error {
	items, err := d.popToMark()
	if err != nil {
		return err
	}
	setIdx, err := d.top()
	if err != nil {
		return err
	}
	set := d.At(setIdx)
	if set.Type != Set {
		return ErrTypeMismatch
	}
	set.Children = append(set.Children, items...)
	return nil
}
