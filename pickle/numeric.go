package pickle

import (
	"bytes"
	"math"
	"math/big"

	"github.com/tensorweave/tensorweave/storage"
	"github.com/tensorweave/tensorweave/wire"
)

// readLine reads bytes up to and including the next '\n', returning
// the line without its terminator. INT, LONG, and FLOAT opcodes use a
// decimal-text argument terminated this way.
func (d *Decoder) readLine() ([]byte, error) {
	var line []byte
	for {
		b, err := wire.ReadU8(d.s)
		if err != nil {
			return nil, err
		}
		if b == '\n' {
			return line, nil
		}
		line = append(line, b)
	}
}

func (d *Decoder) pushInt(text []byte) {
	d.push(d.alloc(Item{Type: Int, Data: text, BuildState: noBuildState}))
}

// loadInt handles INT: a decimal-text integer, with "01"/"00" used by
// the pickle protocol itself as a shorthand for True/False.
func (d *Decoder) loadInt() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	switch string(line) {
	case "01":
		return d.loadBool(true)
	case "00":
		return d.loadBool(false)
	}
	if _, ok := new(big.Int).SetString(string(line), 10); !ok {
		return ErrMalformed
	}
	d.pushInt(line)
	return nil
}

// loadLong handles LONG: decimal text, with a trailing "L" suffix as
// Python 2's repr(long) produced.
func (d *Decoder) loadLong() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	line = bytes.TrimSuffix(line, []byte("L"))
	if len(line) == 0 {
		line = []byte("0")
	}
	if _, ok := new(big.Int).SetString(string(line), 10); !ok {
		return ErrMalformed
	}
	d.pushInt(line)
	return nil
}

func (d *Decoder) loadBinint() error {
	v, err := wire.ReadU32LE(d.s)
	if err != nil {
		return err
	}
	d.pushInt([]byte(big.NewInt(int64(int32(v))).String()))
	return nil
}

func (d *Decoder) loadBinint1() error {
	v, err := wire.ReadU8(d.s)
	if err != nil {
		return err
	}
	d.pushInt([]byte(big.NewInt(int64(v)).String()))
	return nil
}

func (d *Decoder) loadBinint2() error {
	v, err := wire.ReadU16LE(d.s)
	if err != nil {
		return err
	}
	d.pushInt([]byte(big.NewInt(int64(v)).String()))
	return nil
}

// decodeLittleEndianTwosComplement interprets b as a little-endian
// two's-complement signed integer, as LONG1/LONG4 encode their
// argument.
func decodeLittleEndianTwosComplement(b []byte) *big.Int {
	if len(b) == 0 {
		return big.NewInt(0)
	}
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	n := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		// Negative: subtract 2^(8*len(b)).
		full := new(big.Int).Lsh(big.NewInt(1), uint(8*len(b)))
		n.Sub(n, full)
	}
	return n
}

func (d *Decoder) loadLong1() error {
	n, err := wire.ReadU8(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	d.pushInt([]byte(decodeLittleEndianTwosComplement(b).String()))
	return nil
}

func (d *Decoder) loadLong4() error {
	n, err := wire.ReadU32LE(d.s)
	if err != nil {
		return err
	}
	b, err := wire.ReadBytes(d.s, int(n))
	if err != nil {
		return err
	}
	d.pushInt([]byte(decodeLittleEndianTwosComplement(b).String()))
	return nil
}

func (d *Decoder) loadFloat() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	f, ok := new(big.Float).SetString(string(line))
	if !ok {
		return ErrMalformed
	}
	v, _ := f.Float64()
	return d.pushFloat(v)
}

func (d *Decoder) loadBinfloat() error {
	v, err := wire.ReadF64LE(&bigEndianFloatReader{d.s})
	if err != nil {
		return err
	}
	return d.pushFloat(v)
}

// bigEndianFloatReader flips BINFLOAT's 8 big-endian bytes into the
// little-endian shape wire.ReadF64LE expects, since BINFLOAT is the
// one pickle opcode whose binary argument is big-endian.
type bigEndianFloatReader struct {
	storage.Storage
}

func (r *bigEndianFloatReader) Read(length int, flags storage.ReadFlags) ([]byte, error) {
	b, err := r.Storage.Read(length, flags)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out, nil
}

func (d *Decoder) pushFloat(v float64) error {
	buf := make([]byte, 8)
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	d.push(d.alloc(Item{Type: Float, Data: buf, BuildState: noBuildState}))
	return nil
}
