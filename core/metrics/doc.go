// Package metrics aggregates simulation events into counters, rates, totals
// and response time statistics, and defines the exporter sinks that receive
// a snapshot after every tick. Sinks like the Prometheus and InfluxDB ones
// live in infra/metrics and register themselves in the factory registry;
// NewSink returns a MultiSink automatically when several are configured.
package metrics
