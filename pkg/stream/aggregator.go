// Package stream indexes classified packets into per-SSRC RTP streams and
// per-TSID MPEG transport streams, maintaining the running statistics each
// carries.
package stream

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/netpix/netpix/pkg/decode/rtcp"
	"github.com/netpix/netpix/pkg/packet"
)

// RoleResolver pre-declares an SSRC's media role before its first packet
// arrives, so the aggregator can name the stream meaningfully on first
// sight instead of with a generic alias. *eventlog.Registry implements
// this via its RoleName method.
type RoleResolver interface {
	RoleName(ssrc uint32) (string, bool)
}

// pipeKey identifies a transport-stream pipe by its 4-tuple, before its
// TSID is known: the TSID only arrives once the PAT reassembles, but the
// aggregator must start tracking a stream from its very first fragment.
type pipeKey struct {
	Source      netip.AddrPort
	Destination netip.AddrPort
	Transport   packet.TransportProtocol
}

// Aggregator owns every RTP and MPEG-TS stream derived from one source's
// packet history.
type Aggregator struct {
	mu sync.Mutex

	rtpStreams  map[Key]*RtpStream
	rtpAliasSeq int

	mpegtsStreams  map[pipeKey]*MpegtsStream
	mpegtsAliasSeq int

	lastSeenID uint64
	packets    []packet.Packet

	roles RoleResolver
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		rtpStreams:    make(map[Key]*RtpStream),
		mpegtsStreams: make(map[pipeKey]*MpegtsStream),
	}
}

// NewAggregatorWithRoles creates an aggregator that consults roles to
// pre-name an RTP stream from its pre-declared media role, falling back to
// the generic alias sequence when the SSRC was never registered.
func NewAggregatorWithRoles(roles RoleResolver) *Aggregator {
	a := NewAggregator()
	a.roles = roles
	return a
}

// aliasFor names a newly seen SSRC: its pre-declared role if one was
// registered before this packet arrived, otherwise the next generic alias.
func (a *Aggregator) aliasFor(ssrc uint32) string {
	if a.roles != nil {
		if name, ok := a.roles.RoleName(ssrc); ok {
			return name
		}
	}
	alias := NextAlias(a.rtpAliasSeq)
	a.rtpAliasSeq++
	return alias
}

// AddPacket implements the insertion law: packets with an id beyond
// everything seen so far are new and dispatch directly; any other id
// (out-of-order arrival, or a re-decode via Reparse) triggers a full
// recalculation from scratch so derived state never drifts from packet
// history.
func (a *Aggregator) AddPacket(p packet.Packet) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.packets = append(a.packets, p)

	if p.ID > a.lastSeenID {
		a.lastSeenID = p.ID
		a.handlePacket(p)
		return
	}
	a.recalculateLocked()
}

func (a *Aggregator) recalculateLocked() {
	packets := append([]packet.Packet(nil), a.packets...)
	sort.Slice(packets, func(i, j int) bool { return packets[i].ID < packets[j].ID })

	a.rtpStreams = make(map[Key]*RtpStream)
	a.rtpAliasSeq = 0
	a.mpegtsStreams = make(map[pipeKey]*MpegtsStream)
	a.mpegtsAliasSeq = 0
	a.lastSeenID = 0

	for _, p := range packets {
		if p.ID > a.lastSeenID {
			a.lastSeenID = p.ID
		}
		a.handlePacket(p)
	}
}

func (a *Aggregator) handlePacket(p packet.Packet) {
	switch p.Session {
	case packet.Mpegts:
		a.handleMpegts(p)
	case packet.RTP:
		a.handleRtp(p)
	case packet.RTCP:
		a.handleRtcp(p)
	}
}

func (a *Aggregator) handleMpegts(p packet.Packet) {
	if p.Contents.Mpegts == nil {
		return
	}
	pk := pipeKey{Source: p.SourceAddr, Destination: p.DestinationAddr, Transport: p.Transport}
	ms, ok := a.mpegtsStreams[pk]
	if !ok {
		key := MpegtsKey{Source: p.SourceAddr, Destination: p.DestinationAddr, Transport: p.Transport}
		ms = NewMpegtsStream(key, NextAlias(a.mpegtsAliasSeq))
		a.mpegtsAliasSeq++
		a.mpegtsStreams[pk] = ms
	}
	ms.AddPacket(p.ID, p.Contents.Mpegts)
}

func (a *Aggregator) handleRtp(p packet.Packet) {
	if p.Contents.Rtp == nil {
		return
	}
	key := Key{Source: p.SourceAddr, Destination: p.DestinationAddr, Transport: p.Transport, SSRC: p.Contents.Rtp.SSRC}
	if existing, ok := a.rtpStreams[key]; ok {
		existing.AddRtpPacket(p, *p.Contents.Rtp)
		return
	}
	s := NewRtpStream(key, a.aliasFor(p.Contents.Rtp.SSRC), p, *p.Contents.Rtp)
	a.rtpStreams[key] = s
}

// handleRtcp attaches every record in the compound to the RTP stream it
// reports on, tolerating the RTCP-on-RTP-port+1 convention: if no stream is
// found at the packet's own address pair, the lookup retries with both
// ports decremented by one.
func (a *Aggregator) handleRtcp(p packet.Packet) {
	for _, rec := range p.Contents.Rtcp {
		ssrc, ok := rtcpTargetSSRC(rec)
		if !ok {
			continue
		}
		stream := a.findRtpStreamForRtcp(p, ssrc)
		if stream == nil {
			continue
		}
		stream.AddRtcpPacket(p.ID, p.Timestamp, rec)
	}
}

func (a *Aggregator) findRtpStreamForRtcp(p packet.Packet, ssrc uint32) *RtpStream {
	key := Key{Source: p.SourceAddr, Destination: p.DestinationAddr, Transport: p.Transport, SSRC: ssrc}
	if s, ok := a.rtpStreams[key]; ok {
		return s
	}

	altKey := Key{
		Source:      decrementPort(p.SourceAddr),
		Destination: decrementPort(p.DestinationAddr),
		Transport:   p.Transport,
		SSRC:        ssrc,
	}
	if s, ok := a.rtpStreams[altKey]; ok {
		return s
	}
	return nil
}

func decrementPort(addr netip.AddrPort) netip.AddrPort {
	if addr.Port() == 0 {
		return addr
	}
	return netip.AddrPortFrom(addr.Addr(), addr.Port()-1)
}

// rtcpTargetSSRC extracts the SSRC a record reports on, when it names one
// unambiguously enough to resolve an owning stream.
func rtcpTargetSSRC(p rtcp.Packet) (uint32, bool) {
	switch p.Kind {
	case rtcp.KindSenderReport:
		return p.SenderReport.SSRC, true
	case rtcp.KindReceiverReport:
		return p.ReceiverReport.SSRC, true
	case rtcp.KindSourceDescription:
		if len(p.SourceDescription.Chunks) > 0 {
			return p.SourceDescription.Chunks[0].Source, true
		}
	case rtcp.KindPictureLossIndication:
		return p.PictureLossIndication.MediaSSRC, true
	case rtcp.KindFullIntraRequest:
		return p.FullIntraRequest.MediaSSRC, true
	case rtcp.KindSliceLossIndication:
		return p.SliceLossIndication.MediaSSRC, true
	case rtcp.KindRapidResynchronizationRequest:
		return p.RapidResynchronizationRequest.MediaSSRC, true
	case rtcp.KindTransportLayerCC:
		return p.TransportLayerCC.MediaSSRC, true
	case rtcp.KindTransportLayerNack:
		return p.TransportLayerNack.MediaSSRC, true
	}
	return 0, false
}

// RtpStreams returns a snapshot of every RTP stream currently tracked.
func (a *Aggregator) RtpStreams() []*RtpStream {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*RtpStream, 0, len(a.rtpStreams))
	for _, s := range a.rtpStreams {
		out = append(out, s)
	}
	return out
}

// MpegtsStreams returns a snapshot of every transport stream currently
// tracked.
func (a *Aggregator) MpegtsStreams() []*MpegtsStream {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*MpegtsStream, 0, len(a.mpegtsStreams))
	for _, s := range a.mpegtsStreams {
		out = append(out, s)
	}
	return out
}
