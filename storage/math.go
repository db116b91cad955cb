package storage

import (
	"fmt"
	"math/bits"
)

// checkedAdd adds a and b, returning an error on uint64 overflow.
func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("addition overflow: %d + %d", a, b)
	}
	return sum, nil
}

// checkedMul multiplies a and b, returning an error on uint64 overflow.
func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("multiplication overflow: %d * %d", a, b)
	}
	return lo, nil
}

// clampReadLength applies the ReadFlags contract to a request for length
// bytes when remaining bytes are available from a random-access, slice-
// backed source. It returns the number of bytes that may actually be
// read, or an error if the request is not satisfiable under flags.
func clampReadLength(length int, remaining int64, flags ReadFlags) (int64, error) {
	n := int64(length)
	if n == 0 {
		return 0, nil
	}
	if remaining <= 0 {
		if flags.AllowEmpty || flags.AllowPartial {
			return 0, nil
		}
		return 0, ErrEndOfStream
	}
	if n > remaining {
		if !flags.AllowPartial {
			return 0, ErrEndOfStream
		}
		return remaining, nil
	}
	return n, nil
}
