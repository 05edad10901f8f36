package mpegts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAdaptationFieldZeroLength(t *testing.T) {
	field, n, ok := decodeAdaptationField([]byte{0x00})
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, field.Length)
}

func TestDecodeAdaptationFieldMinimal(t *testing.T) {
	// length=1, flags byte with nothing set
	buf := []byte{0x01, 0x00}
	field, n, ok := decodeAdaptationField(buf)
	require.True(t, ok)
	assert.Equal(t, 2, n)
	assert.False(t, field.Discontinuity)
	assert.False(t, field.PCRFlag)
}

func TestDecodeAdaptationFieldWithPCR(t *testing.T) {
	// flags: PCR_flag set (0x10), then 6 bytes of PCR
	flags := byte(0x10)
	pcrBytes := []byte{0x00, 0x00, 0x00, 0x00, 0x7E, 0x00} // base=0, reserved, extension=0
	body := append([]byte{flags}, pcrBytes...)
	buf := append([]byte{byte(len(body))}, body...)

	field, n, ok := decodeAdaptationField(buf)
	require.True(t, ok)
	assert.Equal(t, len(buf), n)
	require.NotNil(t, field.PCR)
	assert.True(t, field.PCRFlag)
}

func TestDecodeAdaptationFieldStuffing(t *testing.T) {
	flags := byte(0x00)
	body := append([]byte{flags}, 0xFF, 0xFF, 0xFF)
	buf := append([]byte{byte(len(body))}, body...)

	field, _, ok := decodeAdaptationField(buf)
	require.True(t, ok)
	assert.Equal(t, 3, field.StuffingBytes)
}

func TestDecodeAdaptationFieldIncompleteBuffer(t *testing.T) {
	// declares length 10 but only provides 2 bytes of body
	buf := []byte{10, 0x10, 0x00}
	_, _, ok := decodeAdaptationField(buf)
	assert.False(t, ok)
}

func TestDecodeAdaptationFieldSplicingPoint(t *testing.T) {
	flags := byte(0x04) // splicing_point_flag
	body := []byte{flags, 0xFB} // splice_countdown = -5
	buf := append([]byte{byte(len(body))}, body...)

	field, _, ok := decodeAdaptationField(buf)
	require.True(t, ok)
	require.NotNil(t, field.SpliceCountdown)
	assert.Equal(t, int8(-5), *field.SpliceCountdown)
}
