package realtime

import (
	"github.com/Thejuampi/realtime-client-go/realtime/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by a Transport. A nil
// *Metrics disables collection.
type Metrics struct {
	framesSent       *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	decodeErrors     prometheus.Counter
	reconnects       prometheus.Counter
	queueDepth       prometheus.Gauge
	stateTransitions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registerer when
// it is non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "realtime",
				Subsystem: "transport",
				Name:      "frames_sent_total",
				Help:      "Frames written to the socket.",
			},
			[]string{"event_type"},
		),
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "realtime",
				Subsystem: "transport",
				Name:      "frames_received_total",
				Help:      "Frames decoded from the socket.",
			},
			[]string{"event_type"},
		),
		framesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "realtime",
				Subsystem: "transport",
				Name:      "frames_dropped_total",
				Help:      "Frames that could not be sent and were not queued.",
			},
			[]string{"event_type"},
		),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "realtime",
			Subsystem: "transport",
			Name:      "decode_errors_total",
			Help:      "Inbound frames that failed to decode or dispatch.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "realtime",
			Subsystem: "transport",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnection attempts.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "realtime",
			Subsystem: "transport",
			Name:      "outbound_queue_depth",
			Help:      "Frames waiting for a connection.",
		}),
		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "realtime",
				Subsystem: "transport",
				Name:      "state_transitions_total",
				Help:      "Connection state transitions by target state.",
			},
			[]string{"state"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			metrics.framesSent,
			metrics.framesReceived,
			metrics.framesDropped,
			metrics.decodeErrors,
			metrics.reconnects,
			metrics.queueDepth,
			metrics.stateTransitions,
		)
	}
	return metrics
}

func (metrics *Metrics) frameSent(eventType protocol.EventType) {
	if metrics == nil {
		return
	}
	metrics.framesSent.WithLabelValues(string(eventType)).Inc()
}

func (metrics *Metrics) frameReceived(eventType protocol.EventType) {
	if metrics == nil {
		return
	}
	metrics.framesReceived.WithLabelValues(string(eventType)).Inc()
}

func (metrics *Metrics) frameDropped(eventType protocol.EventType) {
	if metrics == nil {
		return
	}
	metrics.framesDropped.WithLabelValues(string(eventType)).Inc()
}

func (metrics *Metrics) decodeError() {
	if metrics == nil {
		return
	}
	metrics.decodeErrors.Inc()
}

func (metrics *Metrics) reconnectScheduled() {
	if metrics == nil {
		return
	}
	metrics.reconnects.Inc()
}

func (metrics *Metrics) setQueueDepth(depth int) {
	if metrics == nil {
		return
	}
	metrics.queueDepth.Set(float64(depth))
}

func (metrics *Metrics) stateChanged(state ConnectionState) {
	if metrics == nil {
		return
	}
	metrics.stateTransitions.WithLabelValues(state.String()).Inc()
}
