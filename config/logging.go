package config

import "github.com/kilianp07/gridopt/core/runlog"

// LoggingConfig defines where run records are stored.
type LoggingConfig struct {
	// Backend selects the run store type: "none", "jsonl" or "sqlite".
	Backend string `json:"backend" validate:"oneof=none jsonl sqlite"`
	// Path is the file location of the run store.
	Path string `json:"path" validate:"required_unless=Backend none"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" && c.Backend != "none" {
		c.Path = "runs.log"
		if c.Backend == "sqlite" {
			c.Path = "runs.db"
		}
	}
}

// Store returns the runlog configuration.
func (c LoggingConfig) Store() runlog.Config {
	return runlog.Config{Backend: c.Backend, Path: c.Path}
}
