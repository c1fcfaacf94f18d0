package config

// TelemetryConfig holds the tracing settings.
type TelemetryConfig struct {
	Enabled bool `json:"enabled"`
	// Exporter is "stdout" or "none".
	Exporter    string  `json:"exporter" validate:"omitempty,oneof=stdout none"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate" validate:"gte=0,lte=1"`
}

func (c *TelemetryConfig) SetDefaults() {
	if c.Exporter == "" {
		c.Exporter = "stdout"
	}
	if c.ServiceName == "" {
		c.ServiceName = "gridopt"
	}
	if c.Enabled && c.SampleRate == 0 {
		c.SampleRate = 1
	}
}
