package metrics

import "github.com/kilianp07/gridopt/core/factory"

// Config lists the metrics sinks to build.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks" koanf:"sinks"`
	// Textfile, when set, receives the Prometheus registry in text format
	// after each command for the node exporter textfile collector.
	Textfile string `json:"textfile" yaml:"textfile" koanf:"textfile" validate:"omitempty,endswith=.prom"`
}
