package stream_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/netpix/netpix/pkg/decode/rtp"
	"github.com/netpix/netpix/pkg/packet"
	"github.com/netpix/netpix/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() stream.Key {
	return stream.Key{
		Source:      netip.MustParseAddrPort("10.0.0.1:5000"),
		Destination: netip.MustParseAddrPort("10.0.0.2:5000"),
		Transport:   packet.UDP,
		SSRC:        0x1234,
	}
}

func testPacket(id uint64, t time.Duration, length uint32) packet.Packet {
	return packet.Packet{ID: id, Timestamp: t, Length: length}
}

func TestNewRtpStreamSeedsFirstPacket(t *testing.T) {
	rec := rtp.Record{SequenceNumber: 100, Timestamp: 1000, PayloadType: rtp.ResolvePayloadType(0), PayloadLength: 160}
	s := stream.NewRtpStream(testKey(), "A", testPacket(1, 0, 172), rec)

	require.Len(t, s.RtpPackets, 1)
	assert.Equal(t, 1, s.ExpectedCount())
	assert.Equal(t, 0, s.LostCount())
	assert.Equal(t, time.Duration(0), s.Duration())
}

func TestAddRtpPacketTracksSequenceGaps(t *testing.T) {
	pt := rtp.ResolvePayloadType(0) // PCMU, 8000 Hz clock
	first := rtp.Record{SequenceNumber: 1, Timestamp: 0, PayloadType: pt, PayloadLength: 160}
	s := stream.NewRtpStream(testKey(), "A", testPacket(1, 0, 172), first)

	second := rtp.Record{SequenceNumber: 3, Timestamp: 1600, PayloadType: pt, PayloadLength: 160}
	s.AddRtpPacket(testPacket(2, 200*time.Millisecond, 172), second)

	assert.Equal(t, 3, s.ExpectedCount(), "sequence 1..3 expects 3 packets")
	assert.Equal(t, 1, s.LostCount(), "only 2 of 3 expected packets observed")
	assert.Equal(t, 200*time.Millisecond, s.Duration())
}

func TestUpdateJitterRequiresKnownClockRate(t *testing.T) {
	dynamic := rtp.ResolvePayloadType(97) // dynamic, no clock rate known
	first := rtp.Record{SequenceNumber: 1, Timestamp: 0, PayloadType: dynamic, PayloadLength: 160}
	s := stream.NewRtpStream(testKey(), "A", testPacket(1, 0, 172), first)

	second := rtp.Record{SequenceNumber: 2, Timestamp: 160, PayloadType: dynamic, PayloadLength: 160}
	s.AddRtpPacket(testPacket(2, 20*time.Millisecond, 172), second)

	_, ok := s.MeanJitter()
	assert.False(t, ok, "dynamic payload types without SDP clock rates can't compute jitter")
}

func TestUpdateJitterAccumulatesForKnownClockRate(t *testing.T) {
	pt := rtp.ResolvePayloadType(0) // PCMU, 8000 Hz
	first := rtp.Record{SequenceNumber: 1, Timestamp: 0, PayloadType: pt, PayloadLength: 160}
	s := stream.NewRtpStream(testKey(), "A", testPacket(1, 0, 172), first)

	second := rtp.Record{SequenceNumber: 2, Timestamp: 8000, PayloadType: pt, PayloadLength: 172}
	s.AddRtpPacket(testPacket(2, time.Second, 172), second)

	mean, ok := s.MeanJitter()
	require.True(t, ok)
	assert.GreaterOrEqual(t, mean, 0.0)
}

func TestMeanBitrateAndPacketRate(t *testing.T) {
	pt := rtp.ResolvePayloadType(0)
	first := rtp.Record{SequenceNumber: 1, Timestamp: 0, PayloadType: pt, PayloadLength: 160}
	s := stream.NewRtpStream(testKey(), "A", testPacket(1, 0, 172), first)

	second := rtp.Record{SequenceNumber: 2, Timestamp: 8000, PayloadType: pt, PayloadLength: 172}
	s.AddRtpPacket(testPacket(2, time.Second, 172), second)

	assert.InDelta(t, float64(172+172)*8/1.0, s.MeanBitrate(), 0.01)
	assert.InDelta(t, 2.0, s.MeanPacketRate(), 0.01)
}

func TestAddSdpRecalculatesClockRate(t *testing.T) {
	dynamic := rtp.ResolvePayloadType(97)
	first := rtp.Record{SequenceNumber: 1, Timestamp: 0, PayloadType: dynamic, PayloadLength: 160}
	s := stream.NewRtpStream(testKey(), "A", testPacket(1, 0, 172), first)

	second := rtp.Record{SequenceNumber: 2, Timestamp: 960, PayloadType: dynamic, PayloadLength: 160}
	s.AddRtpPacket(testPacket(2, 20*time.Millisecond, 172), second)

	_, ok := s.MeanJitter()
	require.False(t, ok)

	rate := uint32(48000)
	s.AddSdp(stream.Sdp{PayloadTypes: map[uint8]rtp.PayloadType{
		97: {ID: 97, Name: "opus", ClockRate: &rate},
	}})

	_, ok = s.MeanJitter()
	assert.True(t, ok, "after SDP attaches a clock rate, recalculate should populate jitter")
}
