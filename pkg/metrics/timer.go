package metrics

import (
	"time"
)

// Timer measures elapsed wall-clock time for a single operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveReplacement records the elapsed time into the running
// replacement-time average of m.
func (t *Timer) ObserveReplacement(m *Metrics) {
	m.ObserveReplacementTime(t.Elapsed().Seconds())
}
