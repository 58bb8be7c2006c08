// Package metrics exposes Prometheus instrumentation for the dispatcher,
// the replay engine and the health prober.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the collectors shared by all subsystems. All methods are
// nil-safe so tests can pass a nil *Metrics and skip instrumentation.
type Metrics struct {
	nodeUp          *prometheus.GaugeVec
	pendingEntries  *prometheus.GaugeVec
	replayAttempts  *prometheus.CounterVec
	replayOutcomes  *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
}

var (
	once   sync.Once
	shared *Metrics
)

// New initializes the collectors and registers them with the default
// Prometheus registry. Subsequent calls return the same instance so tests
// constructing several engines don't trip duplicate registration.
func New(namespace string) *Metrics {
	once.Do(func() {
		shared = newMetrics(namespace)
	})
	return shared
}

func newMetrics(namespace string) *Metrics {
	m := &Metrics{
		nodeUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "relog",
				Name:      "node_up",
				Help:      "Last probed reachability of a node (1 up, 0 down)",
			},
			[]string{"node_id"},
		),
		pendingEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "relog",
				Name:      "pending_entries",
				Help:      "Recovery log entries awaiting replay per target node",
			},
			[]string{"node_id"},
		),
		replayAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relog",
				Name:      "replay_attempts_total",
				Help:      "Replay attempts issued per target node",
			},
			[]string{"node_id"},
		),
		replayOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relog",
				Name:      "replay_outcomes_total",
				Help:      "Replay outcomes per target node and outcome class",
			},
			[]string{"node_id", "outcome"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relog",
				Name:      "dispatches_total",
				Help:      "Direct write dispatches per outcome",
			},
			[]string{"outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "relog",
				Name:      "attempt_duration_seconds",
				Help:      "Duration of statement application attempts",
			},
			[]string{"node_id"},
		),
	}

	// Register the metrics with the default Prometheus registry
	if prometheus.DefaultRegisterer != nil {
		prometheus.DefaultRegisterer.MustRegister(m.nodeUp)
		prometheus.DefaultRegisterer.MustRegister(m.pendingEntries)
		prometheus.DefaultRegisterer.MustRegister(m.replayAttempts)
		prometheus.DefaultRegisterer.MustRegister(m.replayOutcomes)
		prometheus.DefaultRegisterer.MustRegister(m.dispatches)
		prometheus.DefaultRegisterer.MustRegister(m.attemptDuration)
	}
	// Unregister golang default collectors
	_ = prometheus.Unregister(collectors.NewGoCollector())
	_ = prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// SetNodeUp records the probed reachability of a node.
func (m *Metrics) SetNodeUp(nodeID int, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	m.nodeUp.With(prometheus.Labels{"node_id": label(nodeID)}).Set(v)
}

// SetPending records the depth of a target node's pending queue.
func (m *Metrics) SetPending(nodeID, n int) {
	if m == nil {
		return
	}
	m.pendingEntries.With(prometheus.Labels{"node_id": label(nodeID)}).Set(float64(n))
}

// IncAttempt counts one replay attempt against a node.
func (m *Metrics) IncAttempt(nodeID int) {
	if m == nil {
		return
	}
	m.replayAttempts.With(prometheus.Labels{"node_id": label(nodeID)}).Inc()
}

// IncOutcome counts a replay outcome: completed, already_applied,
// failed_attempt, or dead_lettered.
func (m *Metrics) IncOutcome(nodeID int, outcome string) {
	if m == nil {
		return
	}
	m.replayOutcomes.With(prometheus.Labels{"node_id": label(nodeID), "outcome": outcome}).Inc()
}

// IncDispatch counts a dispatcher result: applied, queued, or rejected.
func (m *Metrics) IncDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// ObserveAttempt records the duration of one statement application.
func (m *Metrics) ObserveAttempt(nodeID int, d time.Duration) {
	if m == nil {
		return
	}
	m.attemptDuration.With(prometheus.Labels{"node_id": label(nodeID)}).Observe(d.Seconds())
}

func label(nodeID int) string {
	return strconv.Itoa(nodeID)
}
