package packet_test

import (
	"testing"

	"github.com/netpix/netpix/pkg/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyUnknown(t *testing.T) {
	proto, contents := packet.Classify([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, packet.Unknown, proto)
	assert.Nil(t, contents.Rtp)
}

func TestClassifyRTP(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 2 << 6 // version 2
	buf[8], buf[9], buf[10], buf[11] = 0xAA, 0xBB, 0xCC, 0xDD

	proto, contents := packet.Classify(buf)
	require.Equal(t, packet.RTP, proto)
	require.NotNil(t, contents.Rtp)
	assert.Equal(t, uint32(0xAABBCCDD), contents.Rtp.SSRC)
}

func TestSessionProtocolString(t *testing.T) {
	assert.Equal(t, "MPEG-TS", packet.Mpegts.String())
	assert.Equal(t, "Unknown", packet.Unknown.String())
}
