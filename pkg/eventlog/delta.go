// Package eventlog tails a WebRTC rtc_event_log v2 capture file, decodes its
// delta-compressed RTCP packet groups, and synthesizes Packet records the
// same aggregator and wire layers the live capture path uses can consume.
package eventlog

import (
	"errors"

	"github.com/netpix/netpix/pkg/bitreader"
)

// ErrMalformedVarint is returned when a VarInt exceeds the 10-byte cap
// without its continuation bit clearing.
var ErrMalformedVarint = errors.New("eventlog: malformed varint")

// ErrUnsupportedEncoding is returned for a delta header encoding type this
// decoder doesn't recognize (only 0 and 1 are defined).
var ErrUnsupportedEncoding = errors.New("eventlog: unsupported delta encoding type")

type deltaParams struct {
	deltaWidthBits  uint8
	signedDeltas    bool
	valuesOptional  bool
	valueWidthBits  uint8
}

// FixedLengthDeltaDecoder decodes a base value plus a run of fixed-width
// deltas into N optional absolute values.
type FixedLengthDeltaDecoder struct {
	reader *bitreader.Reader
	base   uint64
	count  int
	params deltaParams
}

// NewFixedLengthDeltaDecoder parses the 2-bit encoding-type header and the
// parameters that follow it. An empty payload is valid: Decode then returns
// count entries, all absent.
func NewFixedLengthDeltaDecoder(data []byte, base uint64, count int) (*FixedLengthDeltaDecoder, error) {
	if len(data) == 0 {
		return &FixedLengthDeltaDecoder{base: base, count: count}, nil
	}

	r := bitreader.New(data)
	encodingType, err := r.ReadBits(2)
	if err != nil {
		return nil, err
	}

	var params deltaParams
	switch encodingType {
	case 0:
		width, err := r.ReadBits(6)
		if err != nil {
			return nil, err
		}
		params = deltaParams{deltaWidthBits: uint8(width) + 1, valueWidthBits: 64}
	case 1:
		width, err := r.ReadBits(6)
		if err != nil {
			return nil, err
		}
		signed, err := r.ReadBit()
		if err != nil {
			return nil, err
		}
		optional, err := r.ReadBit()
		if err != nil {
			return nil, err
		}
		valueWidth, err := r.ReadBits(6)
		if err != nil {
			return nil, err
		}
		params = deltaParams{
			deltaWidthBits: uint8(width) + 1,
			signedDeltas:   signed,
			valuesOptional: optional,
			valueWidthBits: uint8(valueWidth) + 1,
		}
	default:
		return nil, ErrUnsupportedEncoding
	}

	return &FixedLengthDeltaDecoder{reader: r, base: base, count: count, params: params}, nil
}

// Decode returns count values, each nil where the slot is absent.
func (d *FixedLengthDeltaDecoder) Decode() ([]*uint64, error) {
	if d.reader == nil {
		return make([]*uint64, d.count), nil
	}

	present := make([]bool, d.count)
	for i := range present {
		present[i] = true
	}
	if d.params.valuesOptional {
		for i := 0; i < d.count; i++ {
			bit, err := d.reader.ReadBit()
			if err != nil {
				return nil, err
			}
			present[i] = bit
		}
	}

	values := make([]*uint64, d.count)
	prev := d.base
	for i := 0; i < d.count; i++ {
		if !present[i] {
			continue
		}
		delta, err := d.reader.ReadBits(d.params.deltaWidthBits)
		if err != nil {
			return nil, err
		}
		cur := d.applyDelta(prev, delta)
		values[i] = &cur
		prev = cur
	}
	return values, nil
}

func (d *FixedLengthDeltaDecoder) applyDelta(base, delta uint64) uint64 {
	var value uint64
	if d.params.signedDeltas {
		topBit := uint64(1) << (d.params.deltaWidthBits - 1)
		if delta&topBit == 0 {
			value = base + delta
		} else {
			mask := (uint64(1) << d.params.deltaWidthBits) - 1
			deltaAbs := (^delta & mask) + 1
			value = base - deltaAbs
		}
	} else {
		value = base + delta
	}

	if d.params.valueWidthBits < 64 {
		valueMask := uint64(1)<<d.params.valueWidthBits - 1
		value &= valueMask
	}
	return value
}

// BlobDecoder decodes a run of VarInt-prefixed byte blobs: all lengths are
// read first, then the remaining payload (byte-aligned) is sliced
// accordingly.
type BlobDecoder struct {
	data   []byte
	reader *bitreader.Reader
	count  int
}

// NewBlobDecoder prepares a decoder for count blobs packed in data.
func NewBlobDecoder(data []byte, count int) *BlobDecoder {
	if len(data) == 0 {
		return &BlobDecoder{count: count}
	}
	return &BlobDecoder{data: data, reader: bitreader.New(data), count: count}
}

// Decode returns count byte slices, each a sub-slice of the original data
// (no copy). An empty payload yields nil rather than count empty slices.
func (d *BlobDecoder) Decode() ([][]byte, error) {
	if d.reader == nil {
		return nil, nil
	}

	lengths := make([]int, d.count)
	for i := 0; i < d.count; i++ {
		n, err := decodeVarInt(d.reader)
		if err != nil {
			return nil, err
		}
		lengths[i] = int(n)
	}

	d.reader.AlignToByte()
	offset := d.reader.ByteOffset()

	blobs := make([][]byte, d.count)
	for i, length := range lengths {
		end := offset + length
		if end > len(d.data) {
			return nil, errors.New("eventlog: blob length exceeds available data")
		}
		blobs[i] = d.data[offset:end]
		offset = end
	}
	return blobs, nil
}

// decodeVarInt reads a 7-bit-group VarInt, MSB-as-continuation, capped at 10
// bytes.
func decodeVarInt(r *bitreader.Reader) (uint64, error) {
	var value uint64
	for i := 0; i < 10; i++ {
		b, err := r.ReadBits(8)
		if err != nil {
			return 0, err
		}
		value |= (b & 0x7F) << (7 * i)
		if b&0x80 == 0 {
			return value, nil
		}
	}
	return 0, ErrMalformedVarint
}
