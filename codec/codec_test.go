package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpack14RoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x7F},
		{0xFF},
		{0x01, 0x02, 0x03, 0xFE, 0xFF, 0x80},
	}
	for _, bs := range cases {
		packed := Pack14(bs)
		for _, b := range packed {
			assert.Zero(t, b&0x80, "packed byte must stay within 7 bits: %x", b)
		}
		unpacked, err := Unpack14(packed)
		require.NoError(t, err)
		assert.Equal(t, bs, unpacked)
	}
}

func TestUnpack14OddLength(t *testing.T) {
	_, err := Unpack14([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestReadWriteLE32(t *testing.T) {
	buf := make([]byte, 4)
	WriteLE32(buf, 0, 0x12345678)
	assert.Equal(t, uint32(0x12345678), ReadLE32(buf, 0))
}

func TestReadWriteLE32Signed(t *testing.T) {
	buf := make([]byte, 4)
	WriteLE32Signed(buf, 0, -12345)
	assert.Equal(t, int32(-12345), ReadLE32Signed(buf, 0))
}
