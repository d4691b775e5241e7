package conv

import (
	"encoding/hex"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cburst"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		value     uint64
		byteCount int
		expected  []byte
	}{
		{255, 1, []byte{0xFF}},
		{32767, 2, []byte{0x7F, 0xFF}},
		{32768, 2, []byte{0x80, 0x00}},
		{65535, 2, []byte{0xFF, 0xFF}},
		{0x12, 2, []byte{0x00, 0x12}},
		{305419896, 4, []byte{0x12, 0x34, 0x56, 0x78}},
		{math.MaxUint64, 8, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d/%d", test.value, test.byteCount), func(t *testing.T) {
			buf, err := Encode(test.value, test.byteCount)
			require.NoError(t, err)
			assert.Equal(t, test.expected, buf)
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		given    []byte
		expected uint64
	}{
		{[]byte{0xFF}, 255},
		{[]byte{0x7F, 0xFF}, 32767},
		{[]byte{0x80, 0x00}, 32768},
		{[]byte{0x12, 0x34, 0x56, 0x78}, 305419896},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given), func(t *testing.T) {
			v, err := Decode(test.given)
			require.NoError(t, err)
			assert.Equal(t, test.expected, v)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for v := uint64(0); v <= MaxValue(1); v++ {
		buf, err := Encode(v, 1)
		require.NoError(t, err)
		got, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	for v := uint64(0); v <= MaxValue(2); v++ {
		buf, err := Encode(v, 2)
		require.NoError(t, err)
		got, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	// the full 32 bit domain is too large to walk, stride through it
	for v := uint64(0); v <= MaxValue(4); v += 65521 {
		buf, err := Encode(v, 4)
		require.NoError(t, err)
		got, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	buf, err := Encode(MaxValue(4), 4)
	require.NoError(t, err)
	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, MaxValue(4), got)
}

func TestEncode_OutOfRange(t *testing.T) {
	for n := 1; n < MaxByteCount; n++ {
		t.Run(fmt.Sprintf("bytes=%d", n), func(t *testing.T) {
			_, err := Encode(-1, n)
			assert.ErrorIs(t, err, ErrRange)
			assert.ErrorIs(t, err, i2cburst.ErrValidation)

			_, err = Encode(MaxValue(n)+1, n)
			assert.ErrorIs(t, err, ErrRange)
		})
	}
	_, err := Encode(int64(-1), MaxByteCount)
	assert.ErrorIs(t, err, ErrRange)
}

func TestEncode_InvalidByteCount(t *testing.T) {
	_, err := Encode(1, 0)
	assert.ErrorIs(t, err, ErrByteCount)
	_, err = Encode(1, MaxByteCount+1)
	assert.ErrorIs(t, err, ErrByteCount)
}

func TestDecode_InvalidLength(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrByteCount)
	_, err = Decode(make([]byte, MaxByteCount+1))
	assert.ErrorIs(t, err, i2cburst.ErrValidation)
}

func TestMaxValue(t *testing.T) {
	assert.Equal(t, uint64(0xFF), MaxValue(1))
	assert.Equal(t, uint64(0xFFFF), MaxValue(2))
	assert.Equal(t, uint64(0xFFFFFFFF), MaxValue(4))
	assert.Equal(t, uint64(math.MaxUint64), MaxValue(8))
}

func TestCRC8(t *testing.T) {
	// datasheet example
	assert.Equal(t, byte(0x92), CRC8([]byte{0xBE, 0xEF}))
	assert.Equal(t, byte(0xF7), CRC8([]byte("123456789")))
	assert.Equal(t, byte(0xFF), CRC8(nil))
}
