// Package pickle implements a virtual machine for Python's pickle stack
// language, sufficient to reconstruct the object graph PyTorch writes
// into a checkpoint's data.pkl. It decodes into a tree of Item values
// rather than native Go types, since a pickle stream can describe
// classes and reductions with no Go equivalent; callers that know the
// shape they expect (as the pytorch package does) walk the tree
// themselves.
package pickle

import (
	"bytes"

	"github.com/aristanetworks/gomap"
)

// DictEntry is one key/value pair of a Dict item, both by arena index.
type DictEntry struct {
	Key   int
	Value int
}

// ItemType tags what an Item represents.
type ItemType uint8

const (
	Unknown ItemType = iota
	None
	Int
	Float
	Bool
	Bytes
	ByteArray
	Str
	List
	Tuple
	Buffer
	FrozenSet
	Set
	Dict
	Global
	Reduce
	Obj
	PersID
	Ext
)

// noBuildState marks an Item with no BUILD-populated side slot.
const noBuildState = -1

// Item is one node of the decoded object tree. Children are referenced
// by index into the owning Decoder's arena rather than by pointer,
// since pickle streams can describe object graphs with shared or
// cyclic references (via PUT/GET) that Go's ownership model cannot
// express directly with owned pointers.
type Item struct {
	Type ItemType

	// Data holds the leaf payload: raw bytes for Bytes/ByteArray/Buffer,
	// UTF-8 text for Str, the decimal or big.Int text form for Int, the
	// 8-byte little-endian IEEE754 encoding for Float, module NUL name
	// for Global (and for an Obj built by INST), the decimal extension
	// code for Ext, and one byte (0 or 1) for Bool.
	Data []byte

	// Children holds ordered child item indices: list/tuple/frozenset/
	// set elements, reduce's [callable, argtuple] pair, obj's
	// [class, ...args] (an INST-built obj holds only args, its class
	// being in Data), persid's wrapped identifier. Global items have
	// no children.
	Children []int

	// DictChildren holds a dict's key/value item-index pairs in
	// insertion order: dicts built by BUILD (via __setstate__) and
	// genuine pickle dicts both need order preserved for faithful
	// reconstruction. A parallel gomap.Map index (dictIndex, unexported)
	// gives SETITEM/SETITEMS an O(1) way to detect and overwrite an
	// already-present key in place rather than append a duplicate.
	DictChildren []DictEntry

	dictIndex *gomap.Map[string, int]

	// BuildState is the item index BUILD attached to this item, or
	// noBuildState if none.
	BuildState int
}

func newItem(t ItemType) Item {
	return Item{Type: t, BuildState: noBuildState}
}

// GlobalName splits a Global (or INST-built Obj) item's Data field back
// into the (module, name) pair globalName packed, for callers (the pytorch
// package) that walk the decoded tree looking for specific globals.
func (it *Item) GlobalName() (module, name string) {
	sep := bytes.IndexByte(it.Data, 0)
	if sep < 0 {
		return string(it.Data), ""
	}
	return string(it.Data[:sep]), string(it.Data[sep+1:])
}
