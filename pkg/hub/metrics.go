package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chathub_connections",
		Help: "Currently attached websocket connections.",
	})

	boundConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chathub_bound_connections",
		Help: "Connections currently bound to an identity.",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_frames_total",
		Help: "Client frames handled, by operation type.",
	}, []string{"type"})

	droppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chathub_dropped_frames_total",
		Help: "Frames dropped as malformed, unknown or unauthorized.",
	})

	fanoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_fanout_deliveries_total",
		Help: "Events delivered to connections, by event type.",
	}, []string{"type"})

	fanoutDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chathub_fanout_dropped_total",
		Help: "Event deliveries dropped because the connection send buffer was full.",
	})
)
