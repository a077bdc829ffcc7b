package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spot_sdk"

// Metrics holds the operational counters for one orchestrator. Each
// instance carries its own registry so that multiple orchestrators
// (several instances in one process, or parallel tests) never share
// collector state.
type Metrics struct {
	registry *prometheus.Registry

	TerminationsDetected prometheus.Counter
	TerminationsHandled  prometheus.Counter
	ReplacementAttempts  prometheus.Counter
	ReplacementSuccesses prometheus.Counter
	CheckpointSaves      prometheus.Counter
	CheckpointLoads      prometheus.Counter

	AvgReplacementTime prometheus.Gauge

	// Running-average bookkeeping for AvgReplacementTime
	mu       sync.Mutex
	avgCount int
	avgValue float64
}

// New creates a Metrics instance with a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TerminationsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_detected",
			Help:      "Total number of termination notices detected",
		}),
		TerminationsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_handled",
			Help:      "Total number of terminations handled to recovery",
		}),
		ReplacementAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replacement_attempts",
			Help:      "Total number of replacement attempts",
		}),
		ReplacementSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replacement_successes",
			Help:      "Total number of successful replacements",
		}),
		CheckpointSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves",
			Help:      "Total number of checkpoint saves",
		}),
		CheckpointLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_loads",
			Help:      "Total number of checkpoint loads",
		}),
		AvgReplacementTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "avg_replacement_time_seconds",
			Help:      "Running average of replacement durations in seconds",
		}),
	}

	m.registry.MustRegister(
		m.TerminationsDetected,
		m.TerminationsHandled,
		m.ReplacementAttempts,
		m.ReplacementSuccesses,
		m.CheckpointSaves,
		m.CheckpointLoads,
		m.AvgReplacementTime,
	)
	return m
}

// ObserveReplacementTime folds a new replacement duration (seconds)
// into the running average: (prev_avg * n + new_value) / (n + 1).
func (m *Metrics) ObserveReplacementTime(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.avgValue = (m.avgValue*float64(m.avgCount) + seconds) / float64(m.avgCount+1)
	m.avgCount++
	m.AvgReplacementTime.Set(m.avgValue)
}

// AverageReplacementTime returns the current running average in seconds
func (m *Metrics) AverageReplacementTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.avgValue
}

// Handler returns the Prometheus HTTP handler for this instance
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
