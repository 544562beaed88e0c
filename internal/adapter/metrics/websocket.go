package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics covers the live connection handler.
type WebSocketMetrics struct {
	ActiveConnections prometheus.Gauge
	FramesWritten     prometheus.Counter
	Rejected          *prometheus.CounterVec
	Closed            *prometheus.CounterVec
}

// NewWebSocketMetrics creates and registers WebSocket metrics on reg.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of authenticated WebSocket connections.",
		}),
		FramesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_written_total",
			Help:      "Total number of event frames written to clients.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "handshakes_rejected_total",
			Help:      "Total number of rejected handshakes, by reason.",
		}, []string{"reason"}),
		Closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_closed_total",
			Help:      "Total number of closed connections, by cause.",
		}, []string{"cause"}),
	}

	reg.MustRegister(m.ActiveConnections, m.FramesWritten, m.Rejected, m.Closed)
	return m
}
