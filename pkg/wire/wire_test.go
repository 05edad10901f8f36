package wire_test

import (
	"bytes"
	"net/netip"
	"strings"
	"testing"

	"github.com/netpix/netpix/pkg/capture"
	"github.com/netpix/netpix/pkg/packet"
	"github.com/netpix/netpix/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponsePacketRoundTrip(t *testing.T) {
	p := packet.Packet{
		ID:              7,
		Length:          11,
		SourceAddr:      netip.MustParseAddrPort("10.0.0.1:5000"),
		DestinationAddr: netip.MustParseAddrPort("10.0.0.2:5000"),
		Transport:       packet.UDP,
		Session:         packet.Unknown,
		Payload:         []byte{0x01, 0x02, 0x03},
	}
	resp := wire.Response{Kind: wire.KindPacket, Packet: &p}

	b, err := resp.Encode()
	require.NoError(t, err)

	decoded, err := wire.DecodeResponse(b)
	require.NoError(t, err)

	require.NotNil(t, decoded.Packet)
	assert.Equal(t, p.ID, decoded.Packet.ID)
	assert.Equal(t, p.Length, decoded.Packet.Length)
	assert.Equal(t, p.SourceAddr, decoded.Packet.SourceAddr)
	assert.Equal(t, p.DestinationAddr, decoded.Packet.DestinationAddr)
	assert.Equal(t, p.Payload, decoded.Packet.Payload)
}

func TestResponseSourcesRoundTrip(t *testing.T) {
	resp := wire.Response{
		Kind: wire.KindSources,
		Sources: []capture.SourceKey{
			{Kind: capture.SourceFile, Name: "capture.pcap"},
			{Kind: capture.SourceInterface, Name: "eth0", Promisc: true},
		},
	}

	b, err := resp.Encode()
	require.NoError(t, err)

	decoded, err := wire.DecodeResponse(b)
	require.NoError(t, err)
	require.Len(t, decoded.Sources, 2)
	assert.Equal(t, "capture.pcap", decoded.Sources[0].Name)
	assert.Equal(t, capture.SourceInterface, decoded.Sources[1].Kind)
	assert.True(t, decoded.Sources[1].Promisc)
}

func TestResponseStatsRoundTrip(t *testing.T) {
	resp := wire.Response{Kind: wire.KindPacketsStats, Discharged: 4, Overwritten: 9}

	b, err := resp.Encode()
	require.NoError(t, err)

	decoded, err := wire.DecodeResponse(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), decoded.Discharged)
	assert.Equal(t, uint64(9), decoded.Overwritten)
}

func TestRequestChangeSourceRoundTrip(t *testing.T) {
	req := wire.Request{
		Kind:   wire.KindChangeSource,
		Source: capture.SourceKey{Kind: capture.SourceInterface, Name: "wlan0"},
	}

	b, err := req.Encode()
	require.NoError(t, err)

	decoded, err := wire.DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, req.Source, decoded.Source)
}

func TestRequestReparseRoundTrip(t *testing.T) {
	req := wire.Request{Kind: wire.KindReparse, ReparsePacketID: 42, ReparseProtocol: packet.RTP}

	b, err := req.Encode()
	require.NoError(t, err)

	decoded, err := wire.DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), decoded.ReparsePacketID)
	assert.Equal(t, packet.RTP, decoded.ReparseProtocol)
}

func TestFrameRoundTripSmallPayloadStaysPlain(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("small response")

	require.NoError(t, wire.WriteFrame(&buf, payload))
	out, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestFrameRoundTripLargePayloadCompresses(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(strings.Repeat("x", 10000))

	require.NoError(t, wire.WriteFrame(&buf, payload))
	assert.Less(t, buf.Len(), len(payload), "compressible payload should shrink on the wire")

	out, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
