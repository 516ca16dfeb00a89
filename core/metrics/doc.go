// Package metrics defines the observability hooks of the simulation engine.
// Sinks record per-run summaries and optimizer progress; PromSink and
// InfluxSink live in infra/metrics and can be combined with NewMultiSink.
// The factory helpers return a MultiSink automatically when multiple sinks
// are configured.
package metrics
