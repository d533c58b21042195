// Package metrics exposes Prometheus metrics for a streaming session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "liveblur"

// Frame error stages.
const (
	StageCapture = "capture"
	StageEncode  = "encode"
	StageSend    = "send"
	StageParse   = "parse"
	StageDecode  = "decode"
)

// Statuses reported by the session_status gauge.
var Statuses = []string{"idle", "connecting", "streaming", "error"}

// Metrics holds the session collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	framesSent         prometheus.Counter
	framesReceived     prometheus.Counter
	frameErrors        *prometheus.CounterVec
	reconnects         prometheus.Counter
	watchdogTimeouts   prometheus.Counter
	connectionAttempts prometheus.Counter
	sessionStatus      *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames sent to the service",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of processed frames rendered",
		}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Total number of frame failures by stage",
		}, []string{"stage"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnections",
		}),
		watchdogTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_timeouts_total",
			Help:      "Total number of connections closed for inactivity",
		}),
		connectionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_attempts_total",
			Help:      "Total number of channels opened",
		}),
		sessionStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_status",
			Help:      "1 for the current session status, 0 otherwise",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{
		m.framesSent,
		m.framesReceived,
		m.frameErrors,
		m.reconnects,
		m.watchdogTimeouts,
		m.connectionAttempts,
		m.sessionStatus,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	m.SetStatus("idle")
	return m, nil
}

// FrameSent records a frame written to the channel.
func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

// FrameReceived records a processed frame rendered.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// FrameError records a failure at stage.
func (m *Metrics) FrameError(stage string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(stage).Inc()
}

// Reconnect records a scheduled reconnection.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// WatchdogTimeout records a liveness timeout.
func (m *Metrics) WatchdogTimeout() {
	if m == nil {
		return
	}
	m.watchdogTimeouts.Inc()
}

// ConnectionAttempt records a new channel.
func (m *Metrics) ConnectionAttempt() {
	if m == nil {
		return
	}
	m.connectionAttempts.Inc()
}

// SetStatus marks status as the current session status.
func (m *Metrics) SetStatus(status string) {
	if m == nil {
		return
	}
	for _, s := range Statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.sessionStatus.WithLabelValues(s).Set(v)
	}
}
