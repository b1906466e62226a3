// Package infra holds the adapters around the simulation core: metrics
// exporters, the event journal, the MQTT forwarder and logging. They depend
// only on interfaces and event types from the core packages.
package infra
