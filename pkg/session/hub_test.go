package session_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netpix/netpix/pkg/capture"
	"github.com/netpix/netpix/pkg/packet"
	"github.com/netpix/netpix/pkg/session"
	"github.com/netpix/netpix/pkg/wire"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResponse(t *testing.T, conn *websocket.Conn) wire.Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	payload, err := wire.DecodeFrame(msg)
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(payload)
	require.NoError(t, err)
	return resp
}

func sendRequest(t *testing.T, conn *websocket.Conn, req wire.Request) {
	t.Helper()
	payload, err := req.Encode()
	require.NoError(t, err)
	framed, err := wire.EncodeFrame(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, framed))
}

func TestHubSendsSourcesOnConnect(t *testing.T) {
	hub := session.NewHub(0)
	fileKey := capture.SourceKey{Kind: capture.SourceFile, Name: "capture.pcap"}
	hub.RegisterSource(fileKey, capture.NewRing(16, 0))

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	resp := readResponse(t, conn)
	require.Equal(t, wire.KindSources, resp.Kind)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "capture.pcap", resp.Sources[0].Name)
}

func TestHubReplaysRingOnChangeSource(t *testing.T) {
	hub := session.NewHub(0)
	fileKey := capture.SourceKey{Kind: capture.SourceFile, Name: "capture.pcap"}
	ring := capture.NewRing(16, 0)
	ring.Push(packet.Packet{ID: 1})
	ring.Push(packet.Packet{ID: 2})
	hub.RegisterSource(fileKey, ring)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	readResponse(t, conn) // Sources handshake

	sendRequest(t, conn, wire.Request{Kind: wire.KindChangeSource, Source: fileKey})

	first := readResponse(t, conn)
	second := readResponse(t, conn)
	require.Equal(t, wire.KindPacket, first.Kind)
	require.Equal(t, wire.KindPacket, second.Kind)
	assert.Equal(t, uint64(1), first.Packet.ID)
	assert.Equal(t, uint64(2), second.Packet.ID)
}

func TestHubBroadcastOnlyReachesMatchingSource(t *testing.T) {
	hub := session.NewHub(0)
	fileKey := capture.SourceKey{Kind: capture.SourceFile, Name: "a.pcap"}
	otherKey := capture.SourceKey{Kind: capture.SourceFile, Name: "b.pcap"}
	hub.RegisterSource(fileKey, capture.NewRing(16, 0))
	hub.RegisterSource(otherKey, capture.NewRing(16, 0))

	srv := httptest.NewServer(hub)
	defer srv.Close()

	subscribed := dial(t, srv)
	readResponse(t, subscribed) // Sources
	sendRequest(t, subscribed, wire.Request{Kind: wire.KindChangeSource, Source: fileKey})

	unsubscribed := dial(t, srv)
	readResponse(t, unsubscribed) // Sources
	sendRequest(t, unsubscribed, wire.Request{Kind: wire.KindChangeSource, Source: otherKey})

	hub.Broadcast(fileKey, packet.Packet{ID: 99})

	got := readResponse(t, subscribed)
	assert.Equal(t, uint64(99), got.Packet.ID)

	unsubscribed.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := unsubscribed.ReadMessage()
	assert.Error(t, err, "unsubscribed client should not receive a matching-source broadcast")
}

func TestHubReparseRedecodesAndBroadcastsRetainedPacket(t *testing.T) {
	hub := session.NewHub(0)
	fileKey := capture.SourceKey{Kind: capture.SourceFile, Name: "capture.pcap"}
	ring := capture.NewRing(16, 0)

	buf := make([]byte, 12)
	buf[0] = 2 << 6
	buf[8], buf[9], buf[10], buf[11] = 0xAA, 0xBB, 0xCC, 0xDD
	ring.Push(packet.Packet{ID: 1, Session: packet.Unknown, Payload: buf})
	hub.RegisterSource(fileKey, ring)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	readResponse(t, conn) // Sources

	sendRequest(t, conn, wire.Request{Kind: wire.KindChangeSource, Source: fileKey})
	readResponse(t, conn) // replayed packet 1, still Unknown

	sendRequest(t, conn, wire.Request{Kind: wire.KindReparse, ReparsePacketID: 1, ReparseProtocol: packet.RTP})

	resp := readResponse(t, conn)
	require.Equal(t, wire.KindPacket, resp.Kind)
	require.NotNil(t, resp.Packet)
	assert.Equal(t, uint64(1), resp.Packet.ID)
	assert.Equal(t, packet.RTP, resp.Packet.Session)
	require.NotNil(t, resp.Packet.Contents.Rtp)

	snap := ring.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, packet.RTP, snap[0].Session)
}

func TestHubBroadcastStatsReachesAllSessions(t *testing.T) {
	hub := session.NewHub(0)
	hub.RegisterSource(capture.SourceKey{Kind: capture.SourceFile, Name: "a.pcap"}, capture.NewRing(16, 0))

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	readResponse(t, conn) // Sources

	hub.BroadcastStats(3, 5)

	resp := readResponse(t, conn)
	require.Equal(t, wire.KindPacketsStats, resp.Kind)
	assert.Equal(t, uint64(3), resp.Discharged)
	assert.Equal(t, uint64(5), resp.Overwritten)
}
