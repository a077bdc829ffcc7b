/*
Package metrics exposes Prometheus metrics for termination handling.

Each Metrics instance carries its own prometheus.Registry, so two
orchestrators in one process (or in one test binary) never collide.
Counters cover detections, handled terminations, replacement attempts
and successes, and checkpoint saves/loads; a gauge tracks the running
average replacement time across the instance lifetime.

	m := metrics.New()
	http.Handle("/metrics", m.Handler())
*/
package metrics
