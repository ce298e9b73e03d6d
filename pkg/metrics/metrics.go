// Package metrics exposes trackerd diagnostics: prometheus counters for
// each delivery and sensing failure class, plus /status for the operator
// CLI.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the daemon's instrumentation. Each instance carries its
// own registry so tests can create them freely.
type Metrics struct {
	Registry *prometheus.Registry

	RecordsSent          prometheus.Counter
	RecordsReplayed      prometheus.Counter
	SendFailures         prometheus.Counter
	BufferDrops          prometheus.Counter
	BufferDepth          prometheus.Gauge
	FixTimeouts          prometheus.Counter
	Heartbeats           prometheus.Counter
	ReconnectAttempts    prometheus.Counter
	Failovers            prometheus.Counter
	MovementStateChanges prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.RecordsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_records_sent_total",
		Help: "Telemetry records delivered live.",
	})
	m.RecordsReplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_records_replayed_total",
		Help: "Buffered records delivered after reconnect.",
	})
	m.SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_send_failures_total",
		Help: "Record delivery attempts that failed.",
	})
	m.BufferDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_buffer_drops_total",
		Help: "Records evicted from the full offline buffer.",
	})
	m.BufferDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trackerd_buffer_depth",
		Help: "Records currently pending in the offline buffer.",
	})
	m.FixTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_fix_timeouts_total",
		Help: "Sampling attempts that ended without a GPS fix.",
	})
	m.Heartbeats = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_heartbeats_total",
		Help: "Heartbeat records emitted.",
	})
	m.ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_reconnect_attempts_total",
		Help: "Transport reconnection attempts.",
	})
	m.Failovers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_failovers_total",
		Help: "Bearer failover events.",
	})
	m.MovementStateChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackerd_movement_state_changes_total",
		Help: "Transitions between moving and idle classification.",
	})

	m.Registry.MustRegister(
		m.RecordsSent,
		m.RecordsReplayed,
		m.SendFailures,
		m.BufferDrops,
		m.BufferDepth,
		m.FixTimeouts,
		m.Heartbeats,
		m.ReconnectAttempts,
		m.Failovers,
		m.MovementStateChanges,
	)
	return m
}
