package metrics

import "github.com/kilianp07/bessim/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// ExpositionPath, when set, receives a Prometheus text dump at exit.
	ExpositionPath string `json:"exposition_path"`
	// ListenAddr, when set, serves /metrics for the lifetime of a command.
	ListenAddr string `json:"listen_addr"`
}
