// Package packet defines netpix's canonical capture record and the
// STUN → MPEG-TS → RTCP → RTP classification dispatch shared by every
// capture source.
package packet

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/netpix/netpix/pkg/decode/mpegts"
	"github.com/netpix/netpix/pkg/decode/rtcp"
	"github.com/netpix/netpix/pkg/decode/rtp"
	"github.com/netpix/netpix/pkg/decode/stun"
)

// TransportProtocol is the IP-layer transport a Packet rode in on.
type TransportProtocol int

const (
	TCP TransportProtocol = iota
	UDP
)

func (t TransportProtocol) String() string {
	if t == TCP {
		return "TCP"
	}
	return "UDP"
}

// SessionProtocol tags which media-plane protocol a Packet's payload
// decoded as.
type SessionProtocol int

const (
	Unknown SessionProtocol = iota
	RTP
	RTCP
	Mpegts
	Stun
)

func (s SessionProtocol) String() string {
	switch s {
	case RTP:
		return "RTP"
	case RTCP:
		return "RTCP"
	case Mpegts:
		return "MPEG-TS"
	case Stun:
		return "STUN"
	default:
		return "Unknown"
	}
}

// Contents is the tagged union of decoded payload records, keyed by the
// enclosing Packet's SessionProtocol. Exactly one field is non-nil except
// when SessionProtocol is Unknown, and except for packets synthesized from
// an event log: those carry SessionProtocol RTCP with every field nil, the
// RTCP bytes being held only in Payload.
type Contents struct {
	Rtp    *rtp.Record
	Rtcp   rtcp.Compound
	Mpegts *mpegts.Packet
	Stun   *stun.Message
}

// Packet is the canonical capture record shared by every source and by the
// stream aggregator.
type Packet struct {
	ID              uint64
	Timestamp       time.Duration
	CreationTime    time.Time
	Length          uint32
	SourceAddr      netip.AddrPort
	DestinationAddr netip.AddrPort
	Transport       TransportProtocol
	Session         SessionProtocol
	Payload         []byte
	Contents        Contents
	// Synthetic marks packets synthesized from a WebRTC event log rather
	// than captured off the wire.
	Synthetic bool
}

func (p Packet) String() string {
	return fmt.Sprintf("#%d %s %s %s->%s len=%d",
		p.ID, p.Transport, p.Session, p.SourceAddr, p.DestinationAddr, p.Length)
}

// Classify decodes payload, trying STUN, then MPEG-TS, then RTCP, then RTP
// in that order — the same precedence the original implementation uses,
// since each subsequent format's header is permissive enough to collide
// with an already-rejected one.
func Classify(payload []byte) (SessionProtocol, Contents) {
	if stun.LooksLikeSTUN(payload) {
		if msg, ok := stun.Decode(payload); ok {
			return Stun, Contents{Stun: &msg}
		}
	}

	if len(payload) == mpegts.PayloadLength {
		if pkt, ok := mpegts.Decode(payload); ok {
			return Mpegts, Contents{Mpegts: &pkt}
		}
	}

	if compound, ok := rtcp.Decode(payload); ok {
		return RTCP, Contents{Rtcp: compound}
	}

	if rtp.LooksLikeRTP(payload) {
		if rec, ok := rtp.Decode(payload); ok {
			return RTP, Contents{Rtp: &rec}
		}
	}

	return Unknown, Contents{}
}

// ParseAs re-decodes payload as the single session protocol requested,
// bypassing Classify's dispatch order. Used by Request::Reparse.
func ParseAs(payload []byte, proto SessionProtocol) (Contents, bool) {
	switch proto {
	case Stun:
		if msg, ok := stun.Decode(payload); ok {
			return Contents{Stun: &msg}, true
		}
	case Mpegts:
		if pkt, ok := mpegts.Decode(payload); ok {
			return Contents{Mpegts: &pkt}, true
		}
	case RTCP:
		if compound, ok := rtcp.Decode(payload); ok {
			return Contents{Rtcp: compound}, true
		}
	case RTP:
		if rec, ok := rtp.Decode(payload); ok {
			return Contents{Rtp: &rec}, true
		}
	}
	return Contents{}, false
}
