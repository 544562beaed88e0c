package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics covers the connection registry and the mutation notifier.
type BroadcastMetrics struct {
	Groups        prometheus.Gauge
	Members       prometheus.Gauge
	Published     prometheus.Counter
	Delivered     prometheus.Counter
	Dropped       *prometheus.CounterVec
	Evicted       prometheus.Counter
	NotifyErrors  prometheus.Counter
	CommandsDepth prometheus.Gauge
}

// NewBroadcastMetrics creates and registers broadcast metrics on reg.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		Groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "groups",
			Help:      "Number of non-empty broadcast groups.",
		}),
		Members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "members",
			Help:      "Number of members across all groups.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "published_total",
			Help:      "Total number of events accepted for fan-out.",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "delivered_total",
			Help:      "Total number of events handed to member mailboxes.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_total",
			Help:      "Total number of events dropped before fan-out, by reason.",
		}, []string{"reason"}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "evicted_members_total",
			Help:      "Total number of members evicted for a full mailbox.",
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "notify_errors_total",
			Help:      "Total number of mutation notifications that failed to publish.",
		}),
		CommandsDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "command_queue_depth",
			Help:      "Pending commands in the registry queue.",
		}),
	}

	reg.MustRegister(m.Groups, m.Members, m.Published, m.Delivered, m.Dropped, m.Evicted, m.NotifyErrors, m.CommandsDepth)
	return m
}
