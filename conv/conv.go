// Package conv converts unsigned register values to and from the big-endian
// byte sequences devices put on the wire.
//
//	  255, 1 -> [0xFF]
//	32767, 2 -> [0x7F, 0xFF]
//	32768, 2 -> [0x80, 0x00]
//	65535, 2 -> [0xFF, 0xFF]
package conv

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	"github.com/mklimuk/i2cburst"
)

// MaxByteCount is the widest value a uint64 holds.
const MaxByteCount = 8

var (
	ErrRange     = fmt.Errorf("%w: value out of range", i2cburst.ErrValidation)
	ErrByteCount = fmt.Errorf("%w: byte count out of range", i2cburst.ErrValidation)
)

// MaxValue returns 256^byteCount - 1. byteCount is expected to be valid.
func MaxValue(byteCount int) uint64 {
	if byteCount >= MaxByteCount {
		return math.MaxUint64
	}
	return 1<<(8*uint(byteCount)) - 1
}

// CheckByteCount returns ErrByteCount unless 1 ≤ byteCount ≤ MaxByteCount.
func CheckByteCount(byteCount int) error {
	if byteCount < 1 || byteCount > MaxByteCount {
		return fmt.Errorf("%w: %d (allowed range: 1 ≤ x ≤ %d)", ErrByteCount, byteCount, MaxByteCount)
	}
	return nil
}

// Encode returns value as byteCount big-endian bytes, most significant byte first.
func Encode[T constraints.Integer](value T, byteCount int) ([]byte, error) {
	if err := CheckByteCount(byteCount); err != nil {
		return nil, err
	}
	if value < 0 {
		return nil, fmt.Errorf("%w: %d (allowed range: 0 ≤ x ≤ %d)", ErrRange, value, MaxValue(byteCount))
	}
	v := uint64(value)
	if v > MaxValue(byteCount) {
		return nil, fmt.Errorf("%w: %d (allowed range: 0 ≤ x ≤ %d)", ErrRange, v, MaxValue(byteCount))
	}
	var buf [MaxByteCount]byte
	binary.BigEndian.PutUint64(buf[:], v)
	out := make([]byte, byteCount)
	copy(out, buf[MaxByteCount-byteCount:])
	return out, nil
}

// Decode interprets b as a big-endian unsigned integer.
func Decode(b []byte) (uint64, error) {
	if err := CheckByteCount(len(b)); err != nil {
		return 0, err
	}
	var buf [MaxByteCount]byte
	copy(buf[MaxByteCount-len(b):], b)
	return binary.BigEndian.Uint64(buf[:]), nil
}
