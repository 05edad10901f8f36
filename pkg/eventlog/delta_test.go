package eventlog

import (
	"testing"

	"github.com/netpix/netpix/pkg/bitreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeType1Header(w *bitWriter, deltaWidth, valueWidth uint8, signed, optional bool) {
	w.writeBits(1, 2)
	w.writeBits(uint64(deltaWidth-1), 6)
	w.writeBool(signed)
	w.writeBool(optional)
	w.writeBits(uint64(valueWidth-1), 6)
}

// bitWriter is a tiny MSB-first bit writer used only to build fixtures for
// the tests below; bitreader.Reader has no matching writer of its own.
type bitWriter struct {
	bits []bool
}

func (w *bitWriter) writeBits(v uint64, n uint8) {
	for i := int(n) - 1; i >= 0; i-- {
		w.bits = append(w.bits, (v>>uint(i))&1 == 1)
	}
}

func (w *bitWriter) writeBool(b bool) {
	w.bits = append(w.bits, b)
}

func (w *bitWriter) bytes() []byte {
	out := make([]byte, (len(w.bits)+7)/8)
	for i, b := range w.bits {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

func TestFixedLengthDeltaDecoderUnsignedDeltas(t *testing.T) {
	w := &bitWriter{}
	encodeType1Header(w, 4, 64, false, false)
	w.writeBits(2, 4)
	w.writeBits(3, 4)
	w.writeBits(1, 4)

	dec, err := NewFixedLengthDeltaDecoder(w.bytes(), 10, 3)
	require.NoError(t, err)

	values, err := dec.Decode()
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, uint64(12), *values[0])
	assert.Equal(t, uint64(15), *values[1])
	assert.Equal(t, uint64(16), *values[2])
}

func TestFixedLengthDeltaDecoderSignedNegativeDelta(t *testing.T) {
	w := &bitWriter{}
	encodeType1Header(w, 4, 64, true, false)
	// delta_width=4 bits; encode -1 as two's complement: 1111
	w.writeBits(0b1111, 4)

	dec, err := NewFixedLengthDeltaDecoder(w.bytes(), 100, 1)
	require.NoError(t, err)

	values, err := dec.Decode()
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, uint64(99), *values[0])
}

func TestFixedLengthDeltaDecoderValuesOptional(t *testing.T) {
	w := &bitWriter{}
	encodeType1Header(w, 4, 64, false, true)
	w.writeBool(true)
	w.writeBool(false)
	w.writeBool(true)
	w.writeBits(5, 4)
	w.writeBits(7, 4)

	dec, err := NewFixedLengthDeltaDecoder(w.bytes(), 0, 3)
	require.NoError(t, err)

	values, err := dec.Decode()
	require.NoError(t, err)
	require.Len(t, values, 3)
	require.NotNil(t, values[0])
	assert.Equal(t, uint64(5), *values[0])
	assert.Nil(t, values[1])
	require.NotNil(t, values[2])
	assert.Equal(t, uint64(12), *values[2])
}

func TestFixedLengthDeltaDecoderEmptyPayloadReturnsAllAbsent(t *testing.T) {
	dec, err := NewFixedLengthDeltaDecoder(nil, 42, 4)
	require.NoError(t, err)

	values, err := dec.Decode()
	require.NoError(t, err)
	require.Len(t, values, 4)
	for _, v := range values {
		assert.Nil(t, v)
	}
}

func TestBlobDecoderSlicesByVarintLengths(t *testing.T) {
	w := &bitWriter{}
	// VarInt lengths 3 and 130 (130 = 0b10000010 needs two VarInt bytes: 0x82, 0x01)
	w.writeBits(3, 8)
	w.writeBits(0x82, 8)
	w.writeBits(0x01, 8)
	raw := w.bytes()
	raw = append(raw, []byte("abc")...)
	raw = append(raw, make([]byte, 130)...)
	for i := range raw[len(raw)-130:] {
		raw[len(raw)-130+i] = byte(i)
	}

	dec := NewBlobDecoder(raw, 2)
	blobs, err := dec.Decode()
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	assert.Equal(t, []byte("abc"), blobs[0])
	assert.Len(t, blobs[1], 130)
}

func TestBlobDecoderEmptyPayloadReturnsNil(t *testing.T) {
	dec := NewBlobDecoder(nil, 3)
	blobs, err := dec.Decode()
	require.NoError(t, err)
	assert.Nil(t, blobs)
}

// sanity check the MSB-first bitWriter/bitreader pairing used by the fixture
// helpers above agrees with the production reader.
func TestBitWriterReaderRoundTrip(t *testing.T) {
	w := &bitWriter{}
	w.writeBits(0b101, 3)
	w.writeBits(0b11110000, 8)

	r := bitreader.New(w.bytes())
	v, err := r.ReadBits(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b101), v)
	v, err = r.ReadBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b11110000), v)
}
