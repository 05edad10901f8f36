package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/netpix/netpix/pkg/logger"
	"github.com/netpix/netpix/pkg/metrics"
	"github.com/netpix/netpix/pkg/packet"
)

// Broadcaster is the seam the session hub plugs into: every classified
// packet and every periodic stats snapshot is pushed through it to
// subscribed clients.
type Broadcaster interface {
	Broadcast(source SourceKey, p packet.Packet)
	BroadcastStats(discharged, overwritten uint64)
}

// Pipeline runs one source to completion, classifying every packet,
// recording it in Ring, and handing it to a Broadcaster.
type Pipeline struct {
	source      Source
	ring        *Ring
	broadcaster Broadcaster
	log         *logger.Logger

	statsInterval time.Duration
	nextID        atomic.Uint64

	metrics *metrics.Registry
}

// NewPipeline wires a source to a ring and broadcaster. statsInterval is the
// minimum time between periodic stats broadcasts; 0 disables periodic stats
// entirely, which keeps tests quiet.
func NewPipeline(source Source, ring *Ring, broadcaster Broadcaster, statsInterval time.Duration) *Pipeline {
	return &Pipeline{
		source:        source,
		ring:          ring,
		broadcaster:   broadcaster,
		log:           logger.Default().WithComponent("capture"),
		statsInterval: statsInterval,
	}
}

// WithMetrics attaches a metrics registry the pipeline updates as it runs.
func (p *Pipeline) WithMetrics(m *metrics.Registry) *Pipeline {
	p.metrics = m
	return p
}

// Run pulls packets until the source reports ErrSourceEnded, at which point
// it returns nil: existing ring contents remain until aged out, matching
// spec's SourceEnded handling. If ctx is canceled first, Run returns
// ctx.Err() (or nil when the cancellation surfaces through NextPacket).
func (p *Pipeline) Run(ctx context.Context) error {
	lastStats := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := p.source.NextPacket(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceEnded) || errors.Is(err, context.Canceled) {
				return nil
			}
			p.log.Warn().Str("source", p.source.Key().String()).Err(err).Msg("source read error")
			continue
		}

		pkt := p.classify(raw)
		p.broadcaster.Broadcast(p.source.Key(), pkt)

		discharged, overwrote := p.ring.Push(pkt)
		if p.metrics != nil {
			label := p.source.Key().String()
			if discharged > 0 {
				p.metrics.PacketsDischarged.WithLabelValues(label).Add(float64(discharged))
			}
			if overwrote {
				p.metrics.PacketsOverwritten.WithLabelValues(label).Inc()
			}
			p.metrics.RingSize.WithLabelValues(label).Set(float64(p.ring.Len()))
		}

		if p.statsInterval > 0 && time.Since(lastStats) >= p.statsInterval {
			d, o := p.ring.Stats()
			p.broadcaster.BroadcastStats(d, o)
			lastStats = time.Now()
		}
	}
}

// classify assigns the next monotonic per-source id and runs packet
// classification, retaining the raw payload for later Reparse requests.
func (p *Pipeline) classify(raw RawPacket) packet.Packet {
	id := p.nextID.Add(1)
	session, contents := packet.Classify(raw.Payload)

	return packet.Packet{
		ID:              id,
		Timestamp:       raw.Timestamp,
		CreationTime:    raw.CreationTime,
		Length:          raw.Length,
		SourceAddr:      raw.SourceAddr,
		DestinationAddr: raw.DestinationAddr,
		Transport:       transportOf(raw.Transport),
		Session:         session,
		Payload:         raw.Payload,
		Contents:        contents,
	}
}

func transportOf(t RawTransport) packet.TransportProtocol {
	if t == RawTCP {
		return packet.TCP
	}
	return packet.UDP
}

// Reparse re-runs a single decoder against p's retained payload, per
// Request::Reparse. The caller is responsible for re-submitting the result
// to the aggregator, which will observe an out-of-order id and recalculate.
func Reparse(p packet.Packet, proto packet.SessionProtocol) (packet.Packet, bool) {
	contents, ok := packet.ParseAs(p.Payload, proto)
	if !ok {
		return packet.Packet{}, false
	}
	p.Session = proto
	p.Contents = contents
	return p, true
}
