// Package wire collects the small, format-agnostic decoding helpers that
// every parser in this module needs: little-endian scalar decoding from a
// storage.Storage, hex formatting, and a thin CRC32 wrapper.
package wire

import (
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"math"

	"github.com/tensorweave/tensorweave/storage"
)

// ReadBytes reads exactly n owned (non-temporary) bytes from s.
func ReadBytes(s storage.Storage, n int) ([]byte, error) {
	return s.Read(n, storage.ReadFlags{})
}

// PeekBytes reads n owned bytes from s without advancing its cursor.
func PeekBytes(s storage.Storage, n int) ([]byte, error) {
	return s.Read(n, storage.ReadFlags{Peek: true})
}

// ReadU8 reads a single byte from s.
func ReadU8(s storage.Storage) (uint8, error) {
	b, err := ReadBytes(s, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16LE reads a little-endian uint16 from s.
func ReadU16LE(s storage.Storage) (uint16, error) {
	b, err := ReadBytes(s, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32LE reads a little-endian uint32 from s.
func ReadU32LE(s storage.Storage) (uint32, error) {
	b, err := ReadBytes(s, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64LE reads a little-endian uint64 from s.
func ReadU64LE(s storage.Storage) (uint64, error) {
	b, err := ReadBytes(s, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadF32LE reads a little-endian IEEE-754 float32 from s.
func ReadF32LE(s storage.Storage) (float32, error) {
	v, err := ReadU32LE(s)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadF64LE reads a little-endian IEEE-754 float64 from s.
func ReadF64LE(s storage.Storage) (float64, error) {
	v, err := ReadU64LE(s)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadLengthPrefixedString reads a u64-length-prefixed UTF-8 string, as
// used by GGUF for keys, string values, and tensor names.
func ReadLengthPrefixedString(s storage.Storage) (string, error) {
	n, err := ReadU64LE(s)
	if err != nil {
		return "", err
	}
	b, err := ReadBytes(s, int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// HexString formats b as a lower-case hex string, for example for
// printing magic numbers. No reader in this module calls it.
func HexString(b []byte) string {
	return hex.EncodeToString(b)
}

// CRC32 computes the IEEE CRC32 checksum of b.
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
