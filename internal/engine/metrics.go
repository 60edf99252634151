package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/1ureka/remoteplay/internal/session"
	"github.com/1ureka/remoteplay/internal/video"
)

const metricsNamespace = "remoteplay"

// metrics holds the Prometheus collectors of one engine.
type metrics struct {
	packetsReceived    *prometheus.CounterVec
	packetsDropped     *prometheus.CounterVec
	bytesReceived      prometheus.Counter
	framesCompleted    *prometheus.CounterVec
	heartbeatsSent     prometheus.Counter
	heartbeatErrors    prometheus.Counter
	inputsSent         prometheus.Counter
	connectionAttempts prometheus.Counter
	sessionState       prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "video_packets_received_total",
			Help:      "Video datagrams applied to a frame, by surface",
		}, []string{"surface"}),

		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "video_packets_dropped_total",
			Help:      "Video datagrams discarded, by reason",
		}, []string{"reason"}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "video_bytes_received_total",
			Help:      "Video payload bytes applied to frames",
		}),

		framesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_completed_total",
			Help:      "Frames fully reassembled, by surface",
		}, []string{"surface"}),

		heartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeat control packets written",
		}),

		heartbeatErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "heartbeat_errors_total",
			Help:      "Heartbeat control packets that failed to send",
		}),

		inputsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "input_packets_sent_total",
			Help:      "Input packets forwarded to the device",
		}),

		connectionAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connection_attempts_total",
			Help:      "Listen and connect retries",
		}),

		sessionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "session_state",
			Help:      "0=connecting 1=waiting 2=streaming 3=bad address",
		}),
	}
}

// observe records the outcome of one ingested datagram.
func (m *metrics) observe(res video.Result) {
	switch res.Outcome {
	case video.Accepted, video.Completed:
		m.packetsReceived.WithLabelValues(res.Surface.String()).Inc()
		m.bytesReceived.Add(float64(res.Bytes))
		if res.Outcome == video.Completed {
			m.framesCompleted.WithLabelValues(res.Surface.String()).Inc()
		}
	default:
		m.packetsDropped.WithLabelValues(res.Outcome.String()).Inc()
	}
}

func (m *metrics) setState(s session.State) {
	m.sessionState.Set(float64(s))
}
