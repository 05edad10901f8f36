package rtp_test

import (
	"testing"

	"github.com/netpix/netpix/pkg/decode/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildHeader(version uint8, pt uint8, seq uint16, ts uint32, ssrc uint32) []byte {
	buf := make([]byte, 12)
	buf[0] = version << 6
	buf[1] = pt
	buf[2] = byte(seq >> 8)
	buf[3] = byte(seq)
	buf[4] = byte(ts >> 24)
	buf[5] = byte(ts >> 16)
	buf[6] = byte(ts >> 8)
	buf[7] = byte(ts)
	buf[8] = byte(ssrc >> 24)
	buf[9] = byte(ssrc >> 16)
	buf[10] = byte(ssrc >> 8)
	buf[11] = byte(ssrc)
	return buf
}

func TestDecodeValidPacket(t *testing.T) {
	raw := buildHeader(2, 0, 100, 12345, 0xAABBCCDD)
	rec, ok := rtp.Decode(raw)
	require.True(t, ok)
	assert.Equal(t, uint16(100), rec.SequenceNumber)
	assert.Equal(t, uint32(0xAABBCCDD), rec.SSRC)
	assert.Equal(t, "PCMU", rec.PayloadType.Name)
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	raw := buildHeader(1, 0, 100, 1, 1)
	_, ok := rtp.Decode(raw)
	assert.False(t, ok)
}

func TestDecodeRejectsRTCPCollisionRange(t *testing.T) {
	raw := buildHeader(2, 72, 100, 1, 1)
	_, ok := rtp.Decode(raw)
	assert.False(t, ok)
}

func TestLooksLikeRTPRejectsZeroSSRC(t *testing.T) {
	raw := buildHeader(2, 0, 1, 1, 0)
	assert.False(t, rtp.LooksLikeRTP(raw))
}

func TestResolvePayloadTypeDynamic(t *testing.T) {
	pt := rtp.ResolvePayloadType(96)
	assert.Equal(t, "dynamic", pt.Name)
	assert.Nil(t, pt.ClockRate)
}
