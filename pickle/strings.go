package pickle

import (
	"strconv"

	"github.com/tensorweave/tensorweave/wire"
)

// unquotePickleString interprets the backslash-escaped, quote-delimited
// text argument of the old-protocol STRING opcode, which Python wrote
// using its repr() quoting rules.
func unquotePickleString(line []byte) ([]byte, error) {
	if len(line) < 2 {
		return nil, ErrMalformed
	}
	quote := line[0]
	if quote != '\'' && quote != '"' {
		return nil, ErrMalformed
	}
	if line[len(line)-1] != quote {
		return nil, ErrMalformed
	}
	unquoted, err := strconv.Unquote(`"` + string(line[1:len(line)-1]) + `"`)
	if err != nil {
		return nil, ErrMalformed
	}
	return []byte(unquoted), nil
}

func (d *Decoder) pushStringLike(t ItemType, data []byte) {
	d.push(d.alloc(Item{Type: t, Data: data, BuildState: noBuildState}))
}

// loadString handles STRING, whose decoded type depends on the
// decoder's configured Encoding since Python 2 does not distinguish
// str from bytes at the pickle level.
func (d *Decoder) loadString() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	unquoted, err := unquotePickleString(line)
	if err != nil {
		return err
	}
	return d.pushOldString(unquoted)
}

func (d *Decoder) pushOldString(data []byte) error {
	if d.encoding == EncodingBytes {
		d.pushStringLike(Bytes, data)
	} else {
		d.pushStringLike(Str, data)
	}
	return nil
}

func (d *Decoder) loadBinstring() error {
	n, err := wire.ReadU32LE(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	return d.pushOldString(b)
}

func (d *Decoder) loadShortBinstring() error {
	n, err := wire.ReadU8(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	return d.pushOldString(b)
}

// loadUnicode handles UNICODE: a raw-unicode-escape, newline-terminated
// text argument. Unlike STRING it is always text, regardless of
// Encoding, matching CPython's unpickler.
func (d *Decoder) loadUnicode() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	d.pushStringLike(Str, line)
	return nil
}

func (d *Decoder) loadBinunicode() error {
	n, err := wire.ReadU32LE(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	d.pushStringLike(Str, b)
	return nil
}

func (d *Decoder) loadShortBinunicode() error {
	n, err := wire.ReadU8(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	d.pushStringLike(Str, b)
	return nil
}

func (d *Decoder) loadBinunicode8() error {
	n, err := wire.ReadU64LE(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	d.pushStringLike(Str, b)
	return nil
}

func (d *Decoder) loadBinbytes() error {
	n, err := wire.ReadU32LE(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	d.pushStringLike(Bytes, b)
	return nil
}

func (d *Decoder) loadShortBinbytes() error {
	n, err := wire.ReadU8(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	d.pushStringLike(Bytes, b)
	return nil
}

func (d *Decoder) loadBinbytes8() error {
	n, err := wire.ReadU64LE(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	d.pushStringLike(Bytes, b)
	return nil
}

func (d *Decoder) loadBytearray8() error {
	n, err := wire.ReadU64LE(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	d.pushStringLike(ByteArray, b)
	return nil
}

// loadOutOfBandBuffer handles NEXT_BUFFER and READONLY_BUFFER.
// NEXT_BUFFER is meant to pull the next externally supplied
// out-of-band buffer; since this decoder has no such side channel, it
// pushes an empty Buffer item. READONLY_BUFFER wraps whatever is on
// top of the stack in a fresh Buffer item without checking that it
// actually is one, matching the reference unpickler's own behavior.
func (d *Decoder) loadOutOfBandBuffer(op byte) error {
	if op == opNextBuffer {
		d.push(d.alloc(Item{Type: Buffer, BuildState: noBuildState}))
		return nil
	}
	top, err := d.pop()
	if err != nil {
		return err
	}
	d.push(d.alloc(Item{Type: Buffer, Children: []int{top}, BuildState: noBuildState}))
	return nil
}
