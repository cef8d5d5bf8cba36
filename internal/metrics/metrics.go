package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_connections",
		Help: "Live websocket sessions.",
	})

	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Messages accepted into the message log.",
	})

	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcasts_total",
		Help: "Frames fanned out to sessions.",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total",
		Help: "Inbound client events by type.",
	}, []string{"type"})

	HandshakeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_handshake_failures_total",
		Help: "Rejected websocket handshakes by reason.",
	}, []string{"reason"})
)
