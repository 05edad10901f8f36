package capture_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/netpix/netpix/pkg/capture"
	"github.com/netpix/netpix/pkg/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	key     capture.SourceKey
	packets []capture.RawPacket
	idx     int
}

func (s *fakeSource) Key() capture.SourceKey { return s.key }
func (s *fakeSource) ApplyFilter(string) error { return nil }
func (s *fakeSource) Close() error             { return nil }
func (s *fakeSource) NextPacket(ctx context.Context) (capture.RawPacket, error) {
	if s.idx >= len(s.packets) {
		return capture.RawPacket{}, capture.ErrSourceEnded
	}
	p := s.packets[s.idx]
	s.idx++
	return p, nil
}

type fakeBroadcaster struct {
	packets []packet.Packet
	stats   int
}

func (b *fakeBroadcaster) Broadcast(_ capture.SourceKey, p packet.Packet) {
	b.packets = append(b.packets, p)
}
func (b *fakeBroadcaster) BroadcastStats(discharged, overwritten uint64) { b.stats++ }

func TestPipelineRunClassifiesAndBroadcastsUntilSourceEnds(t *testing.T) {
	raw := capture.RawPacket{
		CreationTime:    time.Now(),
		Length:          12,
		SourceAddr:      netip.MustParseAddrPort("10.0.0.1:1000"),
		DestinationAddr: netip.MustParseAddrPort("10.0.0.2:1000"),
		Transport:       capture.RawUDP,
		Payload:         []byte{0x01, 0x02, 0x03},
	}
	src := &fakeSource{key: capture.SourceKey{Kind: capture.SourceFile, Name: "test.pcap"}, packets: []capture.RawPacket{raw, raw}}
	ring := capture.NewRing(16, 0)
	bcast := &fakeBroadcaster{}

	p := capture.NewPipeline(src, ring, bcast, 0)
	err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, bcast.packets, 2)
	assert.Equal(t, uint64(1), bcast.packets[0].ID)
	assert.Equal(t, uint64(2), bcast.packets[1].ID)
	assert.Equal(t, packet.Unknown, bcast.packets[0].Session)

	snap := ring.Snapshot()
	assert.Len(t, snap, 2)
}

func TestReparseReDecodesRetainedPayload(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 2 << 6
	buf[8], buf[9], buf[10], buf[11] = 0xAA, 0xBB, 0xCC, 0xDD
	p := packet.Packet{ID: 1, Session: packet.Unknown, Payload: buf}

	reparsed, ok := capture.Reparse(p, packet.RTP)
	require.True(t, ok)
	assert.Equal(t, packet.RTP, reparsed.Session)
	require.NotNil(t, reparsed.Contents.Rtp)
}
