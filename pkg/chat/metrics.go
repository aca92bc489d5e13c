package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the node's counters on a private registry so several nodes can
// live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	frames      *prometheus.CounterVec
	sends       *prometheus.CounterVec
	peers       prometheus.Gauge
	connections prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lanchat_frames_total",
			Help: "Inbound frames by outcome.",
		}, []string{"result"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lanchat_sends_total",
			Help: "Per-peer broadcast deliveries by outcome.",
		}, []string{"result"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanchat_peers",
			Help: "Peers currently in the registry.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanchat_inbound_connections",
			Help: "Open inbound connections.",
		}),
	}
	m.Registry.MustRegister(m.frames, m.sends, m.peers, m.connections)
	return m
}

func (m *Metrics) frame(result string) {
	m.frames.WithLabelValues(result).Inc()
}

func (m *Metrics) send(result string) {
	m.sends.WithLabelValues(result).Inc()
}
