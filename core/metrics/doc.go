// Package metrics defines the events recorded for dispatch runs and the sink
// interfaces that consume them. Concrete sinks (Prometheus, InfluxDB) live in
// infra/metrics and register themselves with the factory; NewRunRecorder
// returns a MultiSink automatically when several sinks are configured.
package metrics
