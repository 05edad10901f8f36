// Package session implements the client-facing half of the system: a Hub
// of websocket sessions, each subscribed to at most one configured capture
// source, fed by the capture pipelines through the capture.Broadcaster
// contract.
package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pion/sdp/v3"
	"golang.org/x/time/rate"

	"github.com/netpix/netpix/pkg/capture"
	"github.com/netpix/netpix/pkg/logger"
	"github.com/netpix/netpix/pkg/metrics"
	"github.com/netpix/netpix/pkg/packet"
	"github.com/netpix/netpix/pkg/wire"
)

// queueCapacity bounds each client's outbound buffer; beyond this a slow
// client starts losing packets rather than stalling the broadcaster.
const queueCapacity = 256

// replayRate and replayBurst bound how fast a freshly subscribed client's
// ring catch-up is pushed into its queue, so a large backlog doesn't blow
// straight past queueCapacity and start dropping before the client ever
// reads its first message.
const (
	replayRate  = 2000
	replayBurst = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// sourceEntry pairs a configured source with the ring its pipeline feeds,
// so a newly subscribing client can replay recent history.
type sourceEntry struct {
	key  capture.SourceKey
	ring *capture.Ring
}

// Hub owns every active session and the set of sources clients can pick
// from. It implements capture.Broadcaster.
type Hub struct {
	mu         sync.Mutex
	clients    map[uint64]*client
	nextID     atomic.Uint64
	maxClients int
	sources       []sourceEntry
	log           *logger.Logger
	metrics       *metrics.Registry
	replayLimiter *rate.Limiter
}

// NewHub returns a hub admitting at most maxClients concurrent sessions. A
// non-positive maxClients means unlimited.
func NewHub(maxClients int) *Hub {
	return &Hub{
		clients:       make(map[uint64]*client),
		maxClients:    maxClients,
		log:           logger.Default().WithComponent("hub"),
		replayLimiter: rate.NewLimiter(replayRate, replayBurst),
	}
}

// WithMetrics attaches a metrics registry the hub and its clients update.
func (h *Hub) WithMetrics(m *metrics.Registry) *Hub {
	h.metrics = m
	return h
}

// RegisterSource makes a configured source available for clients to select,
// backed by the ring its pipeline maintains.
func (h *Hub) RegisterSource(key capture.SourceKey, ring *capture.Ring) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources = append(h.sources, sourceEntry{key: key, ring: ring})
	if h.metrics != nil {
		h.metrics.SourcesActive.Set(float64(len(h.sources)))
	}
}

func (h *Hub) sourceKeys() []capture.SourceKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]capture.SourceKey, len(h.sources))
	for i, s := range h.sources {
		keys[i] = s.key
	}
	return keys
}

func (h *Hub) ringFor(key capture.SourceKey) (*capture.Ring, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sources {
		if s.key == key {
			return s.ring, true
		}
	}
	return nil, false
}

// client is one connected session.
type client struct {
	id     uint64
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	mu     sync.Mutex
	source *capture.SourceKey
}

func (c *client) currentSource() (capture.SourceKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return capture.SourceKey{}, false
	}
	return *c.source, true
}

func (c *client) setSource(key capture.SourceKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = &key
}

// enqueue drops the message and logs a warning if the client's queue is
// full, per the backpressure policy: one slow client never blocks others.
func (c *client) enqueue(payload []byte) {
	framed, err := wire.EncodeFrame(payload)
	if err != nil {
		c.hub.log.Warn().Err(err).Uint64("client", c.id).Msg("frame encode failed")
		return
	}
	select {
	case c.send <- framed:
	default:
		c.hub.log.Warn().Uint64("client", c.id).Msg("client queue full, dropping message")
		if c.hub.metrics != nil {
			c.hub.metrics.QueueDropped.Inc()
		}
	}
}

// ServeHTTP upgrades the connection and runs the session until the
// transport closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxClients > 0 && h.activeCount() >= h.maxClients {
		http.Error(w, "too many active sessions", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   h.nextID.Add(1),
		conn: conn,
		send: make(chan []byte, queueCapacity),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ClientsActive.Set(float64(h.activeCount()))
	}

	h.log.Info().Uint64("client", c.id).Msg("session opened")

	resp := wire.Response{Kind: wire.KindSources, Sources: h.sourceKeys()}
	if payload, err := resp.Encode(); err == nil {
		c.enqueue(payload)
	}

	go c.drain()
	c.readLoop(h)

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ClientsActive.Set(float64(h.activeCount()))
	}
	h.log.Info().Uint64("client", c.id).Msg("session closed")
}

func (h *Hub) activeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// drain is the per-session task that owns the transport write side: pops
// the queue, writes to the websocket, and terminates the session on any
// write error.
func (c *client) drain() {
	defer c.conn.Close()
	for framed := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, framed); err != nil {
			return
		}
	}
}

// readLoop is the per-session request-handling task.
func (c *client) readLoop(h *Hub) {
	defer close(c.send)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		payload, err := wire.DecodeFrame(msg)
		if err != nil {
			h.log.Warn().Err(err).Uint64("client", c.id).Msg("malformed frame")
			continue
		}

		req, err := wire.DecodeRequest(payload)
		if err != nil {
			h.log.Warn().Err(err).Uint64("client", c.id).Msg("malformed request")
			continue
		}

		h.handleRequest(c, req)
	}
}

func (h *Hub) handleRequest(c *client, req wire.Request) {
	switch req.Kind {
	case wire.KindFetchAll:
		if key, ok := c.currentSource(); ok {
			h.replay(c, key)
		}
	case wire.KindChangeSource:
		if _, ok := h.ringFor(req.Source); !ok {
			h.log.Warn().Str("source", req.Source.String()).Msg("change to unknown source")
			return
		}
		c.setSource(req.Source)
		h.replay(c, req.Source)
	case wire.KindParseSdp:
		h.applySdp(c, req.StreamSSRC, req.SdpText)
	case wire.KindReparse:
		h.handleReparse(c, req)
	case wire.KindRequestStats:
		resp := wire.Response{Kind: wire.KindPacketsStats, Discharged: req.Discharged, Overwritten: req.Overwritten}
		h.broadcastToAll(resp)
	default:
		h.log.Warn().Int("kind", int(req.Kind)).Uint64("client", c.id).Msg("unhandled request")
	}
}

// replay pushes the current contents of key's ring into c's queue, in
// order, so a freshly subscribed client catches up on history.
func (h *Hub) replay(c *client, key capture.SourceKey) {
	ring, ok := h.ringFor(key)
	if !ok {
		return
	}
	for _, p := range ring.Snapshot() {
		_ = h.replayLimiter.Wait(context.Background())
		resp := wire.Response{Kind: wire.KindPacket, Packet: &p}
		if payload, err := resp.Encode(); err == nil {
			c.enqueue(payload)
		}
	}
}

// handleReparse re-runs a single decoder against c's currently selected
// source's retained copy of the named packet and broadcasts the result, so
// every subscribed session's aggregator observes the same id out of order
// and recalculates.
func (h *Hub) handleReparse(c *client, req wire.Request) {
	key, ok := c.currentSource()
	if !ok {
		h.log.Warn().Uint64("client", c.id).Msg("Reparse with no source selected")
		return
	}
	ring, ok := h.ringFor(key)
	if !ok {
		return
	}
	reparsed, ok := ring.ReparseAndUpdate(req.ReparsePacketID, req.ReparseProtocol)
	if !ok {
		h.log.Warn().Uint64("client", c.id).Uint64("packet", req.ReparsePacketID).Msg("reparse target not found")
		return
	}
	h.Broadcast(key, reparsed)
}

// applySdp parses text and, on success, broadcasts it to every session
// currently subscribed to the same source as c.
func (h *Hub) applySdp(c *client, ssrc uint32, text string) {
	source, ok := c.currentSource()
	if !ok {
		h.log.Warn().Uint64("client", c.id).Msg("ParseSdp with no source selected")
		return
	}

	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(text)); err != nil {
		h.log.Warn().Err(err).Uint64("client", c.id).Msg("invalid SDP")
		return
	}

	resp := wire.Response{Kind: wire.KindSdp, StreamSSRC: ssrc, SdpText: text}
	payload, err := resp.Encode()
	if err != nil {
		return
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, other := range h.clients {
		if key, ok := other.currentSource(); ok && key == source {
			targets = append(targets, other)
		}
	}
	h.mu.Unlock()

	for _, target := range targets {
		target.enqueue(payload)
	}
}

// Broadcast implements capture.Broadcaster: fan out a newly classified
// packet to every session subscribed to source.
func (h *Hub) Broadcast(source capture.SourceKey, p packet.Packet) {
	resp := wire.Response{Kind: wire.KindPacket, Packet: &p}
	payload, err := resp.Encode()
	if err != nil {
		h.log.Warn().Err(err).Msg("packet encode failed")
		return
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if key, ok := c.currentSource(); ok && key == source {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}

// BroadcastStats implements capture.Broadcaster: ring discharge/overwrite
// counters go to every session regardless of selected source.
func (h *Hub) BroadcastStats(discharged, overwritten uint64) {
	h.broadcastToAll(wire.Response{Kind: wire.KindPacketsStats, Discharged: discharged, Overwritten: overwritten})
}

func (h *Hub) broadcastToAll(resp wire.Response) {
	payload, err := resp.Encode()
	if err != nil {
		h.log.Warn().Err(err).Msg("stats encode failed")
		return
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}
