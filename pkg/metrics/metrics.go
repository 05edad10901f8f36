// Package metrics exposes ring and hub health as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every counter/gauge netpix exports, registered against
// the default Prometheus registry so promhttp.Handler() picks them up
// without any extra wiring at the call site.
type Registry struct {
	PacketsDischarged *prometheus.CounterVec
	PacketsOverwritten *prometheus.CounterVec
	RingSize           *prometheus.GaugeVec

	QueueDropped prometheus.Counter
	ClientsActive prometheus.Gauge

	SourcesActive prometheus.Gauge
}

// NewRegistry constructs and registers every netpix metric.
func NewRegistry() *Registry {
	return &Registry{
		PacketsDischarged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netpix",
			Subsystem: "ring",
			Name:      "packets_discharged_total",
			Help:      "Packets dropped from a source's ring for aging out.",
		}, []string{"source"}),
		PacketsOverwritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netpix",
			Subsystem: "ring",
			Name:      "packets_overwritten_total",
			Help:      "Packets dropped from a source's ring by capacity overwrite.",
		}, []string{"source"}),
		RingSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "netpix",
			Subsystem: "ring",
			Name:      "size",
			Help:      "Current number of packets retained in a source's ring.",
		}, []string{"source"}),
		QueueDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "netpix",
			Subsystem: "hub",
			Name:      "client_queue_dropped_total",
			Help:      "Messages dropped because a client's outbound queue was full.",
		}),
		ClientsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "netpix",
			Subsystem: "hub",
			Name:      "clients_active",
			Help:      "Currently connected websocket clients.",
		}),
		SourcesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "netpix",
			Subsystem: "capture",
			Name:      "sources_active",
			Help:      "Currently registered capture sources.",
		}),
	}
}
