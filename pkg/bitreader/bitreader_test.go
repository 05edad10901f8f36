package bitreader_test

import (
	"testing"

	"github.com/netpix/netpix/pkg/bitreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBits(t *testing.T) {
	// 0b10110100 0b11110000
	r := bitreader.New([]byte{0b10110100, 0b11110000})

	v, err := r.ReadBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b1011), v)

	v, err = r.ReadBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b0100), v)

	v, err = r.ReadBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b11110000), v)
}

func TestReadBitsSpanningBytes(t *testing.T) {
	r := bitreader.New([]byte{0xFF, 0x00})

	v, err := r.ReadBits(12)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xFF0>>0), v&0xFFF)
}

func TestReadBitsUnexpectedEOF(t *testing.T) {
	r := bitreader.New([]byte{0x01})
	_, err := r.ReadBits(16)
	assert.ErrorIs(t, err, bitreader.ErrUnexpectedEOF)
}

func TestAlignToByte(t *testing.T) {
	r := bitreader.New([]byte{0xFF, 0xAA})
	_, err := r.ReadBits(3)
	require.NoError(t, err)
	assert.Equal(t, 0, r.ByteOffset())

	r.AlignToByte()
	assert.Equal(t, 1, r.ByteOffset())

	v, err := r.ReadBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xAA), v)
}

func TestReadBitsTooManyBits(t *testing.T) {
	r := bitreader.New([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0})
	_, err := r.ReadBits(65)
	assert.ErrorIs(t, err, bitreader.ErrTooManyBits)
}
