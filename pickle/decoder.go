package pickle

import (
	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/wire"
)

// Encoding selects how the old (protocol < 3) string opcodes (STRING,
// BINSTRING, SHORT_BINSTRING) are interpreted, since Python 2 pickles do
// not distinguish str from bytes the way protocol >= 3 does.
type Encoding int

const (
	EncodingUTF8 Encoding = iota
	EncodingBytes
)

// Decoder is a stack machine that decodes a pickle byte stream into a
// tree of Item values. It owns the arena every decoded Item lives in;
// Items referencing each other (shared or cyclic via PUT/GET) do so by
// arena index rather than by Go pointer.
type Decoder struct {
	s storage.Storage

	arena []Item
	stack []int
	marks []int
	memo  map[int]int

	encoding Encoding

	// protocol is the version declared by the most recent PROTO
	// opcode, or 0 if none has been seen. It governs whether GLOBAL/
	// STACK_GLOBAL/INST names are rewritten for Python 2 compatibility.
	protocol int
}

// NewDecoder constructs a Decoder reading from s.
func NewDecoder(s storage.Storage) *Decoder {
	return NewDecoderWithEncoding(s, EncodingUTF8)
}

// NewDecoderWithEncoding is like NewDecoder but lets the caller pick how
// old-protocol string opcodes are decoded.
func NewDecoderWithEncoding(s storage.Storage, encoding Encoding) *Decoder {
	return &Decoder{
		s:        s,
		memo:     make(map[int]int),
		encoding: encoding,
	}
}

// Arena returns the decoded item arena, valid after Decode returns
// successfully. Index 0 is not necessarily the root; use the returned
// root index.
func (d *Decoder) Arena() []Item { return d.arena }

// alloc appends item to the arena and returns its index.
func (d *Decoder) alloc(item Item) int {
	d.arena = append(d.arena, item)
	return len(d.arena) - 1
}

// At returns the item at index idx.
func (d *Decoder) At(idx int) *Item { return &d.arena[idx] }

func (d *Decoder) push(idx int) {
	d.stack = append(d.stack, idx)
}

func (d *Decoder) pop() (int, error) {
	if len(d.stack) == 0 {
		return 0, ErrStackUnderflow
	}
	idx := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	return idx, nil
}

func (d *Decoder) top() (int, error) {
	if len(d.stack) == 0 {
		return 0, ErrStackUnderflow
	}
	return d.stack[len(d.stack)-1], nil
}

func (d *Decoder) pushMark() {
	d.marks = append(d.marks, len(d.stack))
}

// popToMark pops and returns, in original order, every item pushed
// since the most recent mark, then discards that mark.
func (d *Decoder) popToMark() ([]int, error) {
	if len(d.marks) == 0 {
		return nil, ErrNoMarker
	}
	markPos := d.marks[len(d.marks)-1]
	d.marks = d.marks[:len(d.marks)-1]
	if markPos > len(d.stack) {
		return nil, ErrNoMarker
	}
	items := append([]int(nil), d.stack[markPos:]...)
	d.stack = d.stack[:markPos]
	return items, nil
}

// Decode reads opcodes from the storage until STOP, returning the
// index of the single remaining item. It fails if the stream ends
// without STOP, or STOP runs with zero or more than one item on the
// stack, or with marks still open.
func (d *Decoder) Decode() (int, error) {
	for {
		pos := d.s.CurrentPosition()
		key, err := wire.ReadU8(d.s)
		if err != nil {
			return 0, &Error{Op: "read_opcode", Position: pos, Err: err}
		}

		if key == opStop {
			break
		}

		if err := d.dispatch(key); err != nil {
			return 0, &Error{Op: "dispatch", Opcode: key, Position: pos, Err: err}
		}
	}

	if len(d.marks) != 0 {
		return 0, ErrNoStopResult
	}
	if len(d.stack) != 1 {
		return 0, ErrNoStopResult
	}
	return d.stack[0], nil
}

func (d *Decoder) dispatch(key byte) error {
	switch key {
	case opMark:
		d.pushMark()
		return nil
	case opPop:
		_, err := d.pop()
		return err
	case opPopMark:
		_, err := d.popToMark()
		return err
	case opDup:
		return d.opDup()
	case opNone:
		d.push(d.alloc(newItem(None)))
		return nil
	case opNewtrue:
		return d.loadBool(true)
	case opNewfalse:
		return d.loadBool(false)

	case opInt:
		return d.loadInt()
	case opBinint:
		return d.loadBinint()
	case opBinint1:
		return d.loadBinint1()
	case opBinint2:
		return d.loadBinint2()
	case opLong:
		return d.loadLong()
	case opLong1:
		return d.loadLong1()
	case opLong4:
		return d.loadLong4()
	case opFloat:
		return d.loadFloat()
	case opBinfloat:
		return d.loadBinfloat()

	case opString:
		return d.loadString()
	case opBinstring:
		return d.loadBinstring()
	case opShortBinstring:
		return d.loadShortBinstring()
	case opUnicode:
		return d.loadUnicode()
	case opBinunicode:
		return d.loadBinunicode()
	case opShortBinunicode:
		return d.loadShortBinunicode()
	case opBinunicode8:
		return d.loadBinunicode8()
	case opBinbytes:
		return d.loadBinbytes()
	case opShortBinbytes:
		return d.loadShortBinbytes()
	case opBinbytes8:
		return d.loadBinbytes8()
	case opBytearray8:
		return d.loadBytearray8()
	case opNextBuffer, opReadonlyBuffer:
		return d.loadOutOfBandBuffer(key)

	case opEmptyList:
		d.push(d.alloc(newItem(List)))
		return nil
	case opList:
		return d.loadList()
	case opAppend:
		return d.loadAppend()
	case opAppends:
		return d.loadAppends()

	case opEmptyTuple:
		d.push(d.alloc(newItem(Tuple)))
		return nil
	case opTuple:
		return d.loadTuple()
	case opTuple1:
		return d.loadTupleN(1)
	case opTuple2:
		return d.loadTupleN(2)
	case opTuple3:
		return d.loadTupleN(3)

	case opEmptyDict:
		d.push(d.alloc(newDictItem()))
		return nil
	case opDict:
		return d.loadDict()
	case opSetitem:
		return d.loadSetitem()
	case opSetitems:
		return d.loadSetitems()

	case opEmptySet:
		d.push(d.alloc(newItem(Set)))
		return nil
	case opFrozenset:
		return d.loadFrozenset()
	case opAdditems:
		return d.loadAdditems()

	case opGet:
		return d.loadGet()
	case opBinget:
		return d.loadBinget()
	case opLongBinget:
		return d.loadLongBinget()
	case opPut:
		return d.loadPut()
	case opBinput:
		return d.loadBinput()
	case opLongBinput:
		return d.loadLongBinput()
	case opMemoize:
		return d.loadMemoize()

	case opGlobal:
		return d.loadGlobal()
	case opStackGlobal:
		return d.loadStackGlobal()
	case opReduce:
		return d.loadReduce()
	case opBuild:
		return d.loadBuild()
	case opInst:
		return d.loadInst()
	case opObj:
		return d.loadObj()
	case opNewobj:
		return d.loadNewobj()
	case opNewobjEx:
		return d.loadNewobjEx()
	case opPersid:
		return d.loadPersid()
	case opBinpersid:
		return d.loadBinpersid()
	case opExt1:
		return d.loadExt(1)
	case opExt2:
		return d.loadExt(2)
	case opExt4:
		return d.loadExt(4)

	case opFrame:
		return d.loadFrame()
	case opProto:
		return d.loadProto()

	default:
		return ErrUnknownOpcode
	}
}

func (d *Decoder) opDup() error {
	idx, err := d.top()
	if err != nil {
		return err
	}
	d.push(idx)
	return nil
}

func (d *Decoder) loadBool(v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	d.push(d.alloc(Item{Type: Bool, Data: []byte{b}, BuildState: noBuildState}))
	return nil
}
