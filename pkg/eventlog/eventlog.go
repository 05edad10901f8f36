package eventlog

import (
	"bufio"
	"context"
	"fmt"
	"net/netip"
	"os"
	"sort"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/netpix/netpix/pkg/logger"
	"github.com/netpix/netpix/pkg/packet"
)

// Field numbers for the rtc_event_log2 EventStream message and the nested
// RtcpPacket/stream-config messages this package consumes. Sub-messages this
// package has no use for are skipped by ConsumeFieldValue without being
// interpreted.
const (
	fieldIncomingRtcp       = protowire.Number(3)
	fieldOutgoingRtcp       = protowire.Number(4)
	fieldVideoRecvConfig    = protowire.Number(8)
	fieldVideoSendConfig    = protowire.Number(9)
	fieldAudioRecvConfig    = protowire.Number(10)
	fieldAudioSendConfig    = protowire.Number(11)

	fieldRtcpRawPacket      = protowire.Number(1)
	fieldRtcpTimestampMs    = protowire.Number(2)
	fieldRtcpNumberOfDeltas = protowire.Number(3)
	fieldRtcpTimestampDelta = protowire.Number(4)
	fieldRtcpRawBlobs       = protowire.Number(5)

	fieldStreamSSRC    = protowire.Number(1)
	fieldStreamRemote  = protowire.Number(2)
	fieldStreamLocal   = protowire.Number(3)
	fieldStreamRtxSSRC = protowire.Number(4)
)

// StreamRole classifies a registered SSRC ahead of any packet for it
// actually arriving, so the aggregator can name the stream meaningfully on
// first sight instead of with a generic alias.
type StreamRole int

const (
	RoleUnknown StreamRole = iota
	RoleAudio
	RoleAudioControl
	RoleVideo
	RoleVideoControl
	RoleRTX
)

// String renders the role the way it should prefix a stream alias.
func (r StreamRole) String() string {
	switch r {
	case RoleAudio:
		return "audio"
	case RoleAudioControl:
		return "audio-rtx"
	case RoleVideo:
		return "video"
	case RoleVideoControl:
		return "video-rtx"
	case RoleRTX:
		return "rtx"
	default:
		return ""
	}
}

// Registry maps SSRC to its pre-declared role, populated from stream-config
// events before any RTCP traffic for that SSRC is seen.
type Registry struct {
	roles map[uint32]StreamRole
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{roles: make(map[uint32]StreamRole)}
}

// Role looks up a previously registered SSRC.
func (r *Registry) Role(ssrc uint32) (StreamRole, bool) {
	role, ok := r.roles[ssrc]
	return role, ok
}

// RoleName looks up a previously registered SSRC's role as display text,
// satisfying stream.RoleResolver without that package importing eventlog's
// StreamRole type directly.
func (r *Registry) RoleName(ssrc uint32) (string, bool) {
	role, ok := r.roles[ssrc]
	if !ok || role == RoleUnknown {
		return "", false
	}
	return role.String(), true
}

func (r *Registry) register(ssrc uint32, present bool, role StreamRole) {
	if !present {
		return
	}
	r.roles[ssrc] = role
}

// synthetic source addresses for the two directions an event-log packet can
// flow: one sentinel pair per direction, marking every such Packet as
// non-wire-captured via Packet.Synthetic.
var (
	incomingAddr = netip.MustParseAddrPort("127.0.0.1:8080")
	outgoingAddr = netip.MustParseAddrPort("127.0.0.2:8080")
)

// rtcpGroup is one decoded RtcpPacket sub-message: a raw_packet plus a
// delta-compressed run of further packets reconstructed from blobs.
type rtcpGroup struct {
	rawPacket        []byte
	timestampMs      uint64
	haveTimestamp    bool
	numberOfDeltas   int
	haveNumberDeltas bool
	timestampDeltas  []byte
	rawBlobs         []byte
}

func decodeRtcpGroup(b []byte) (rtcpGroup, error) {
	var g rtcpGroup
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return g, fmt.Errorf("eventlog: invalid rtcp group tag")
		}
		b = b[n:]
		fn := protowire.ConsumeFieldValue(num, typ, b)
		if fn < 0 {
			return g, fmt.Errorf("eventlog: invalid rtcp group field %d", num)
		}
		field := b[:fn]
		b = b[fn:]

		switch num {
		case fieldRtcpRawPacket:
			v, _ := protowire.ConsumeBytes(field)
			g.rawPacket = append([]byte(nil), v...)
		case fieldRtcpTimestampMs:
			v, _ := protowire.ConsumeVarint(field)
			g.timestampMs, g.haveTimestamp = v, true
		case fieldRtcpNumberOfDeltas:
			v, _ := protowire.ConsumeVarint(field)
			g.numberOfDeltas, g.haveNumberDeltas = int(v), true
		case fieldRtcpTimestampDelta:
			v, _ := protowire.ConsumeBytes(field)
			g.timestampDeltas = append([]byte(nil), v...)
		case fieldRtcpRawBlobs:
			v, _ := protowire.ConsumeBytes(field)
			g.rawBlobs = append([]byte(nil), v...)
		}
	}
	return g, nil
}

// streamConfig is the subset of fields shared by the four
// {Audio,Video}{Send,Recv}StreamConfig messages this package cares about.
type streamConfig struct {
	ssrc       uint32
	haveSSRC   bool
	remoteSSRC uint32
	haveRemote bool
	localSSRC  uint32
	haveLocal  bool
	rtxSSRC    uint32
	haveRTX    bool
}

func decodeStreamConfig(b []byte) (streamConfig, error) {
	var c streamConfig
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return c, fmt.Errorf("eventlog: invalid stream config tag")
		}
		b = b[n:]
		fn := protowire.ConsumeFieldValue(num, typ, b)
		if fn < 0 {
			return c, fmt.Errorf("eventlog: invalid stream config field %d", num)
		}
		field := b[:fn]
		b = b[fn:]

		switch num {
		case fieldStreamSSRC:
			v, _ := protowire.ConsumeVarint(field)
			c.ssrc, c.haveSSRC = uint32(v), true
		case fieldStreamRemote:
			v, _ := protowire.ConsumeVarint(field)
			c.remoteSSRC, c.haveRemote = uint32(v), true
		case fieldStreamLocal:
			v, _ := protowire.ConsumeVarint(field)
			c.localSSRC, c.haveLocal = uint32(v), true
		case fieldStreamRtxSSRC:
			v, _ := protowire.ConsumeVarint(field)
			c.rtxSSRC, c.haveRTX = uint32(v), true
		}
	}
	return c, nil
}

// Decoder parses a buffer holding a complete EventStream (the Tailer
// accumulates the tailed file's bytes), synthesizing Packet records and
// registering stream metadata as it goes.
type Decoder struct {
	Registry *Registry

	nextID uint64
}

// NewDecoder returns a decoder seeded with an empty registry.
func NewDecoder() *Decoder {
	return &Decoder{Registry: NewRegistry()}
}

// Decode parses one complete EventStream message and returns the Packet
// records it synthesizes, sorted by timestamp with sequential ids assigned
// starting from wherever the decoder last left off.
func (d *Decoder) Decode(buf []byte) ([]packet.Packet, error) {
	var packets []packet.Packet

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, fmt.Errorf("eventlog: invalid event stream tag")
		}
		buf = buf[n:]
		fn := protowire.ConsumeFieldValue(num, typ, buf)
		if fn < 0 {
			return nil, fmt.Errorf("eventlog: invalid event stream field %d", num)
		}
		field := buf[:fn]
		buf = buf[fn:]

		switch num {
		case fieldIncomingRtcp:
			v, _ := protowire.ConsumeBytes(field)
			group, err := decodeRtcpGroup(v)
			if err != nil {
				continue
			}
			packets = append(packets, d.synthesizeGroup(group, false)...)
		case fieldOutgoingRtcp:
			v, _ := protowire.ConsumeBytes(field)
			group, err := decodeRtcpGroup(v)
			if err != nil {
				continue
			}
			packets = append(packets, d.synthesizeGroup(group, true)...)
		case fieldVideoSendConfig:
			v, _ := protowire.ConsumeBytes(field)
			c, err := decodeStreamConfig(v)
			if err == nil {
				d.Registry.register(c.ssrc, c.haveSSRC, RoleVideo)
				d.Registry.register(c.rtxSSRC, c.haveRTX, RoleRTX)
			}
		case fieldVideoRecvConfig:
			v, _ := protowire.ConsumeBytes(field)
			c, err := decodeStreamConfig(v)
			if err == nil {
				d.Registry.register(c.remoteSSRC, c.haveRemote, RoleVideo)
				d.Registry.register(c.localSSRC, c.haveLocal, RoleVideoControl)
				d.Registry.register(c.rtxSSRC, c.haveRTX, RoleRTX)
			}
		case fieldAudioSendConfig:
			v, _ := protowire.ConsumeBytes(field)
			c, err := decodeStreamConfig(v)
			if err == nil {
				d.Registry.register(c.ssrc, c.haveSSRC, RoleAudio)
			}
		case fieldAudioRecvConfig:
			v, _ := protowire.ConsumeBytes(field)
			c, err := decodeStreamConfig(v)
			if err == nil {
				d.Registry.register(c.remoteSSRC, c.haveRemote, RoleAudio)
				d.Registry.register(c.localSSRC, c.haveLocal, RoleAudioControl)
			}
		}
	}

	sort.Slice(packets, func(i, j int) bool { return packets[i].Timestamp < packets[j].Timestamp })
	for i := range packets {
		packets[i].ID = d.nextID
		d.nextID++
	}
	return packets, nil
}

// synthesizeGroup reconstructs the group's raw_packet plus each delta-coded
// follow-up blob as its own synthetic Packet.
func (d *Decoder) synthesizeGroup(g rtcpGroup, outgoing bool) []packet.Packet {
	if !g.haveTimestamp || !g.haveNumberDeltas || g.rawPacket == nil {
		return nil
	}

	src, dst := incomingAddr, outgoingAddr
	if outgoing {
		src, dst = outgoingAddr, incomingAddr
	}

	now := time.Now()
	var out []packet.Packet
	out = append(out, packet.Packet{
		Timestamp:       time.Duration(g.timestampMs) * time.Millisecond,
		CreationTime:    now,
		Length:          uint32(len(g.rawPacket)),
		SourceAddr:      src,
		DestinationAddr: dst,
		Transport:       packet.UDP,
		Session:         packet.RTCP,
		Payload:         g.rawPacket,
		Synthetic:       true,
	})

	timestampDecoder, err := NewFixedLengthDeltaDecoder(g.timestampDeltas, g.timestampMs, g.numberOfDeltas)
	if err != nil {
		return out
	}
	timestamps, err := timestampDecoder.Decode()
	if err != nil {
		return out
	}

	blobDecoder := NewBlobDecoder(g.rawBlobs, g.numberOfDeltas)
	blobs, err := blobDecoder.Decode()
	if err != nil {
		return out
	}

	for i, blob := range blobs {
		if i >= len(timestamps) || timestamps[i] == nil {
			continue
		}
		out = append(out, packet.Packet{
			Timestamp:       time.Duration(*timestamps[i]) * time.Millisecond,
			CreationTime:    now,
			Length:          uint32(len(blob)),
			SourceAddr:      src,
			DestinationAddr: dst,
			Transport:       packet.UDP,
			Session:         packet.RTCP,
			Payload:         blob,
			Synthetic:       true,
		})
	}
	return out
}

// Tailer polls a log file on a fixed interval, accumulating appended bytes
// until they decode as a complete EventStream.
type Tailer struct {
	path     string
	decoder  *Decoder
	log      *logger.Logger
	interval time.Duration
}

// NewTailer returns a tailer for path, polling every 200ms per the
// rtc_event_log v2 cadence.
func NewTailer(path string) *Tailer {
	return &Tailer{
		path:     path,
		decoder:  NewDecoder(),
		log:      logger.Default().WithComponent("eventlog"),
		interval: 200 * time.Millisecond,
	}
}

// Registry exposes the tailer's stream-role registry for the aggregator to
// consult when naming new streams.
func (t *Tailer) Registry() *Registry { return t.decoder.Registry }

// Run tails the file until ctx is canceled, sending each batch of
// synthesized packets decoded from a newly-complete EventStream to out.
func (t *Tailer) Run(ctx context.Context, out chan<- []packet.Packet) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("eventlog: open %s: %w", t.path, err)
	}
	defer f.Close()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	reader := bufio.NewReader(f)
	var pending []byte

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		chunk := make([]byte, 4096)
		for {
			n, readErr := reader.Read(chunk)
			if n > 0 {
				pending = append(pending, chunk[:n]...)
			}
			if readErr != nil {
				break
			}
		}

		if len(pending) == 0 {
			continue
		}

		packets, err := t.decoder.Decode(pending)
		if err != nil {
			t.log.Debug().Err(err).Msg("event log chunk not yet a complete EventStream")
			continue
		}
		pending = nil

		select {
		case out <- packets:
		case <-ctx.Done():
			return nil
		}
	}
}
