package mpegts_test

import (
	"testing"

	"github.com/netpix/netpix/pkg/decode/mpegts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragment(pid uint16, pusi bool, afc byte, cc byte, payload []byte) []byte {
	buf := make([]byte, mpegts.FragmentSize)
	buf[0] = mpegts.SyncByte
	buf[1] = byte(pid >> 8 & 0x1F)
	if pusi {
		buf[1] |= 0x40
	}
	buf[2] = byte(pid & 0xFF)
	buf[3] = (afc << 4) | (cc & 0x0F)
	copy(buf[4:], payload)
	return buf
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, ok := mpegts.Decode(make([]byte, 100))
	assert.False(t, ok)
}

func TestDecodeSevenFragments(t *testing.T) {
	raw := make([]byte, 0, mpegts.PayloadLength)
	for i := 0; i < mpegts.MaxFragments; i++ {
		raw = append(raw, fragment(uint16(256+i), false, 1, byte(i), []byte{0xAA})...)
	}
	require.Len(t, raw, mpegts.PayloadLength)

	pkt, ok := mpegts.Decode(raw)
	require.True(t, ok)
	assert.Len(t, pkt.Fragments, mpegts.MaxFragments)
	assert.Equal(t, uint16(256), pkt.Fragments[0].Header.PID.Value)
	assert.Equal(t, mpegts.PIDOther, pkt.Fragments[0].Header.PID.Kind)
}

func TestDecodeStopsOnBadSync(t *testing.T) {
	raw := make([]byte, mpegts.PayloadLength)
	copy(raw, fragment(256, false, 1, 0, []byte{0x01}))
	raw[mpegts.FragmentSize] = 0x00 // corrupt second fragment's sync byte

	pkt, ok := mpegts.Decode(raw)
	require.True(t, ok)
	assert.Len(t, pkt.Fragments, 1)
}

func TestDecodeHeaderRejectsReservedAFC(t *testing.T) {
	raw := make([]byte, mpegts.PayloadLength)
	copy(raw, fragment(256, false, 0, 0, nil)) // AFC=0 is reserved
	_, ok := mpegts.Decode(raw)
	assert.False(t, ok)
}

func TestPATAndPMTPIDs(t *testing.T) {
	raw := make([]byte, mpegts.PayloadLength)
	copy(raw, fragment(0x0000, false, 1, 0, nil))
	copy(raw[mpegts.FragmentSize:], fragment(0x0001, false, 1, 0, nil))
	copy(raw[2*mpegts.FragmentSize:], fragment(0x1FFF, false, 1, 0, nil))

	pkt, ok := mpegts.Decode(raw)
	require.True(t, ok)
	assert.Equal(t, mpegts.PIDProgramAssociation, pkt.Fragments[0].Header.PID.Kind)
	assert.Equal(t, mpegts.PIDConditionalAccess, pkt.Fragments[1].Header.PID.Kind)
	assert.Equal(t, mpegts.PIDNullPacket, pkt.Fragments[2].Header.PID.Kind)
}
