package pickle

import (
	"strconv"

	"github.com/tensorweave/tensorweave/wire"
)

func (d *Decoder) memoGet(id int) error {
	idx, ok := d.memo[id]
	if !ok {
		return ErrMissingMemo
	}
	d.push(idx)
	return nil
}

func (d *Decoder) memoPut(id int) error {
	idx, err := d.top()
	if err != nil {
		return err
	}
	d.memo[id] = idx
	return nil
}

func (d *Decoder) loadGet() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(string(line))
	if err != nil {
		return ErrMalformed
	}
	return d.memoGet(id)
}

func (d *Decoder) loadBinget() error {
	id, err := wire.ReadU8(d.s)
	if err != nil {
		return err
	}
	return d.memoGet(int(id))
}

func (d *Decoder) loadLongBinget() error {
	id, err := wire.ReadU32LE(d.s)
	if err != nil {
		return err
	}
	return d.memoGet(int(id))
}

func (d *Decoder) loadPut() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(string(line))
	if err != nil {
		return ErrMalformed
	}
	return d.memoPut(id)
}

func (d *Decoder) loadBinput() error {
	id, err := wire.ReadU8(d.s)
	if err != nil {
		return err
	}
	return d.memoPut(int(id))
}

func (d *Decoder) loadLongBinput() error {
	id, err := wire.ReadU32LE(d.s)
	if err != nil {
		return err
	}
	return d.memoPut(int(id))
}

// loadMemoize handles MEMOIZE: like PUT, but the memo id is implicit
// (the next sequential slot) rather than spelled out in the stream.
func (d *Decoder) loadMemoize() error {
	idx, err := d.top()
	if err != nil {
		return err
	}
	d.memo[len(d.memo)] = idx
	return nil
}

func (d *Decoder) loadFrame() error {
	// FRAME's 8-byte length prefix exists only to let a streaming
	// unpickler preallocate buffers; it has no effect on the decoded
	// tree, so it is read and discarded.
	_, err := wire.ReadU64LE(d.s)
	return err
}

func (d *Decoder) loadProto() error {
	v, err := wire.ReadU8(d.s)
	if err != nil {
		return err
	}
	if v > 5 {
		return ErrBadProtocol
	}
	d.protocol = int(v)
	return nil
}
