package metrics

import "github.com/kilianp07/fleetsim/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr serves /metrics when set, for example ":2112".
	PrometheusAddr string `json:"prometheus_addr"`
}
