// Package metrics exposes run and service metrics of the availability planner
// in the Prometheus data model.
//
// A Recorder owns its own registry. The HTTP service serves it on /metrics
// through Handler; the CLI writes it once per run with WriteFile, in the
// layout expected by the node_exporter textfile collector.
package metrics
