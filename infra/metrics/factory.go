package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridopt/core/factory"
	coremetrics "github.com/kilianp07/gridopt/core/metrics"
)

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// init registers the built-in sinks.
func init() {
	_ = coremetrics.RegisterSink("prometheus", func(map[string]any) (coremetrics.RunRecorder, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterSink("influx", func(conf map[string]any) (coremetrics.RunRecorder, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
