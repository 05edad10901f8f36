package stream

import (
	"net/netip"
	"time"

	"github.com/netpix/netpix/pkg/decode/rtcp"
	"github.com/netpix/netpix/pkg/decode/rtp"
	"github.com/netpix/netpix/pkg/packet"
)

// Key identifies an RTP stream by its 4-tuple plus SSRC, matching how the
// aggregator keys its rtp_streams map.
type Key struct {
	Source      netip.AddrPort
	Destination netip.AddrPort
	Transport   packet.TransportProtocol
	SSRC        uint32
}

// Sdp is the subset of a parsed session description netpix consults: a
// payload-type -> resolved-type map built by pkg/session from pion/sdp/v3.
type Sdp struct {
	PayloadTypes map[uint8]rtp.PayloadType
}

// RtcpInfo pairs a decoded RTCP record with when and under which packet id
// it arrived.
type RtcpInfo struct {
	Packet rtcp.Packet
	ID     uint64
	Time   time.Duration
}

// RtpInfo is one RTP packet's place within its stream's running statistics.
type RtpInfo struct {
	Packet     rtp.Record
	ID         uint64
	Time       time.Duration
	NTPTime    *uint64
	TimeDelta  time.Duration
	Jitter     *float64
	PrevLost   bool
	Bytes      int
	Bitrate    int // bits/sec over the trailing 1s window
	PacketRate int // packets/sec over the trailing 1s window
}

// RtpStream accumulates per-SSRC RTP statistics, ported from the reference
// implementation's jitter/bitrate/loss-estimation algorithms.
type RtpStream struct {
	Key   Key
	Alias string

	RtpPackets  []RtpInfo
	RtcpPackets []RtcpInfo

	MaxJitter float64
	CNAME     string

	bytes              int
	rtpBytes           int
	sumJitter          float64
	jitterCount        int
	firstSequenceNumber uint16
	lastSequenceNumber  uint16
	firstTime           time.Duration
	lastTime            time.Duration

	sdp *Sdp

	PayloadTypes []rtp.PayloadType

	// NTP<->RTP clock synchronization: left unresolved, see AddRtcpPacket.
	NtpRtp               *[2]uint64
	EstimatedClockRate    *float64
}

// NewRtpStream creates a stream from its first observed packet.
func NewRtpStream(key Key, alias string, p packet.Packet, rec rtp.Record) *RtpStream {
	jitter := 0.0
	info := RtpInfo{
		Packet:     rec,
		ID:         p.ID,
		Time:       p.Timestamp,
		Jitter:     &jitter,
		PrevLost:   false,
		Bytes:      int(p.Length),
		Bitrate:    int(p.Length) * 8,
		PacketRate: 1,
	}

	return &RtpStream{
		Key:                 key,
		Alias:               alias,
		RtpPackets:          []RtpInfo{info},
		bytes:               int(p.Length),
		rtpBytes:            rec.PayloadLength,
		firstSequenceNumber: rec.SequenceNumber,
		lastSequenceNumber:  rec.SequenceNumber,
		firstTime:           p.Timestamp,
		lastTime:            p.Timestamp,
	}
}

// AddSdp attaches a parsed SDP and recomputes every statistic, since payload
// type resolution may change retroactively.
func (s *RtpStream) AddSdp(sdp Sdp) {
	s.sdp = &sdp
	s.recalculate()
}

// Duration is the stream's observed wall-clock span.
func (s *RtpStream) Duration() time.Duration {
	if s.lastTime < s.firstTime {
		return 0
	}
	return s.lastTime - s.firstTime
}

// ExpectedCount mirrors the original's "last+1-first" sequence-number math:
// unsigned 16-bit arithmetic wraps for free, matching the original's
// (undocumented) wraparound behavior rather than adding a 32-bit promotion.
func (s *RtpStream) ExpectedCount() int {
	return int(uint16(s.lastSequenceNumber + 1 - s.firstSequenceNumber))
}

// LostCount is ExpectedCount minus the number of packets actually observed.
func (s *RtpStream) LostCount() int {
	return s.ExpectedCount() - len(s.RtpPackets)
}

// MeanJitter is the average jitter across packets where it could be
// computed (payload type must carry a known clock rate).
func (s *RtpStream) MeanJitter() (float64, bool) {
	if s.jitterCount == 0 {
		return 0, false
	}
	return s.sumJitter / float64(s.jitterCount), true
}

// MeanBitrate is total bytes * 8 / observed duration.
func (s *RtpStream) MeanBitrate() float64 {
	d := s.Duration().Seconds()
	if d == 0 {
		return 0
	}
	return float64(s.bytes) * 8 / d
}

// MeanPacketRate is packet count / observed duration.
func (s *RtpStream) MeanPacketRate() float64 {
	d := s.Duration().Seconds()
	if d == 0 {
		return 0
	}
	return float64(len(s.RtpPackets)) / d
}

// AddRtpPacket folds a new RTP packet into the stream's running statistics.
func (s *RtpStream) AddRtpPacket(p packet.Packet, rec rtp.Record) {
	info := RtpInfo{
		Packet:   rec,
		ID:       p.ID,
		Time:     p.Timestamp,
		PrevLost: true,
		Bytes:    int(p.Length),
	}
	s.updateRtpParameters(info)
}

// AddRtcpPacket folds an RTCP record into the stream: SDES resolves the
// CNAME; SR/RR are retained for history only.
func (s *RtpStream) AddRtcpPacket(id uint64, t time.Duration, p rtcp.Packet) {
	switch p.Kind {
	case rtcp.KindSourceDescription:
		s.updateSdesItems(p.SourceDescription)
	case rtcp.KindSenderReport:
		// TODO: estimate the NTP<->RTP clock-rate mapping from successive
		// sender reports (ntp_to_f64 diff / rtp timestamp diff), as the
		// reference implementation also leaves unresolved — timestamps
		// derived from it were unreliable enough in practice to ship.
	}
	s.RtcpPackets = append(s.RtcpPackets, RtcpInfo{Packet: p, ID: id, Time: t})
}

func (s *RtpStream) recalculate() {
	packets := s.RtpPackets
	s.RtpPackets = nil
	if len(packets) == 0 {
		return
	}

	first := packets[0]
	s.bytes = first.Bytes
	s.rtpBytes = first.Packet.PayloadLength
	s.MaxJitter = 0
	s.sumJitter = 0
	s.jitterCount = 0
	s.firstSequenceNumber = first.Packet.SequenceNumber
	s.lastSequenceNumber = first.Packet.SequenceNumber
	s.firstTime = first.Time
	s.lastTime = first.Time
	s.RtpPackets = []RtpInfo{first}

	for _, info := range packets[1:] {
		s.updateRtpParameters(info)
	}
}

func (s *RtpStream) updateRtpParameters(info RtpInfo) {
	last := s.RtpPackets[len(s.RtpPackets)-1]
	if info.Time > last.Time {
		info.TimeDelta = info.Time - last.Time
	}

	s.estimateNtpTime(&info)
	s.updateJitter(&info)
	s.updateRates(&info)

	s.bytes += info.Bytes
	s.rtpBytes += info.Packet.PayloadLength

	if info.Time < s.firstTime {
		s.firstTime = info.Time
	}
	if info.Time > s.lastTime {
		s.lastTime = info.Time
	}
	if info.Packet.SequenceNumber < s.firstSequenceNumber {
		s.firstSequenceNumber = info.Packet.SequenceNumber
	}
	if info.Packet.SequenceNumber > s.lastSequenceNumber {
		s.lastSequenceNumber = info.Packet.SequenceNumber
	}

	s.updatePrevLost(&info)
	s.RtpPackets = append(s.RtpPackets, info)
}

// estimateNtpTime is a deliberate no-op: see AddRtcpPacket's TODO.
func (s *RtpStream) estimateNtpTime(_ *RtpInfo) {}

func (s *RtpStream) packetPayloadType(info *RtpInfo) rtp.PayloadType {
	id := info.Packet.PayloadType.ID
	if n := len(s.PayloadTypes); n == 0 || s.PayloadTypes[n-1].ID != id {
		s.PayloadTypes = append(s.PayloadTypes, info.Packet.PayloadType)
	}

	if s.sdp != nil {
		if pt, ok := s.sdp.PayloadTypes[id]; ok {
			return pt
		}
	}
	return info.Packet.PayloadType
}

// updateJitter implements RFC 3550 §A.8's running jitter estimate.
func (s *RtpStream) updateJitter(info *RtpInfo) {
	payloadType := s.packetPayloadType(info)
	if payloadType.ClockRate == nil {
		return
	}

	prev := s.RtpPackets[len(s.RtpPackets)-1]

	if info.Packet.PayloadType.ID != prev.Packet.PayloadType.ID {
		zero := 0.0
		info.Jitter = &zero
		return
	}

	unit := 1.0 / float64(*payloadType.ClockRate)
	arrivalDiff := (info.Time - prev.Time).Seconds()
	rtpTimestampDiff := float64(int64(info.Packet.Timestamp) - int64(prev.Packet.Timestamp))
	diff := arrivalDiff - rtpTimestampDiff*unit

	prevJitter := 0.0
	if prev.Jitter != nil {
		prevJitter = *prev.Jitter
	}
	jitter := prevJitter + (abs(diff)-prevJitter)/16.0
	info.Jitter = &jitter

	if jitter > s.MaxJitter {
		s.MaxJitter = jitter
	}
	s.sumJitter += jitter
	s.jitterCount++
}

// updateRates implements the trailing-1s rolling bitrate/packet-rate window.
func (s *RtpStream) updateRates(info *RtpInfo) {
	cutoff := info.Time - time.Second
	if cutoff < 0 {
		cutoff = 0
	}

	count := 0
	sumBytes := 0
	for i := len(s.RtpPackets) - 1; i >= 0; i-- {
		if s.RtpPackets[i].Time <= cutoff {
			break
		}
		count++
		sumBytes += s.RtpPackets[i].Bytes
	}

	info.PacketRate = count + 1
	info.Bitrate = (sumBytes + info.Bytes) * 8
}

// updatePrevLost clears prev_lost on info and on any of the last 10 packets
// that turn out to be its immediate sequence-number neighbor.
func (s *RtpStream) updatePrevLost(info *RtpInfo) {
	if info.Packet.SequenceNumber == s.firstSequenceNumber {
		info.PrevLost = false
		return
	}

	lookback := 10
	for i := len(s.RtpPackets) - 1; i >= 0 && lookback > 0; i, lookback = i-1, lookback-1 {
		p := &s.RtpPackets[i]
		if p.Packet.SequenceNumber+1 == info.Packet.SequenceNumber {
			info.PrevLost = false
		}
		if p.Packet.SequenceNumber == info.Packet.SequenceNumber+1 {
			p.PrevLost = false
		}
	}
}

func (s *RtpStream) updateSdesItems(sd *rtcp.SourceDescription) {
	if sd == nil {
		return
	}
	for _, chunk := range sd.Chunks {
		if chunk.Source != s.Key.SSRC {
			continue
		}
		for _, item := range chunk.Items {
			if item.Type == rtcp.SdesCNAME {
				s.CNAME = item.Text
			}
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
