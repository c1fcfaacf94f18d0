package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/formulation"
	"github.com/kilianp07/gridopt/core/index"
	"github.com/kilianp07/gridopt/core/opf"
	"github.com/kilianp07/gridopt/core/routine"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `opf:
  flow_lim: real
  max_outer: 20
  rho: 50
  extra_blocks:
    z: 2
dcopf:
  max_rounds: 40
logging:
  backend: sqlite
  path: /tmp/runs.db
metrics:
  sinks:
    - type: "nop"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  qos: 1
report:
  summary: true
  plot_path: dispatch.png
telemetry:
  enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"flow_lim", cfg.OPF.FlowLim, "real"},
		{"max_outer", cfg.OPF.MaxOuter, 20},
		{"rho", cfg.OPF.Rho, 50.0},
		{"feas_tol default", cfg.OPF.FeasTol, routine.DefaultFeasTol},
		{"max_rounds", cfg.DCOPF.MaxRounds, 40},
		{"gap_tol default", cfg.DCOPF.GapTol, formulation.DefaultGapTol},
		{"backend", cfg.Logging.Backend, "sqlite"},
		{"path", cfg.Logging.Path, "/tmp/runs.db"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"username", cfg.MQTT.Username, "user"},
		{"qos", cfg.MQTT.QoS, byte(1)},
		{"topic default", cfg.MQTT.Topic, "gridopt/runs"},
		{"summary", cfg.Report.Summary, true},
		{"plot_path", cfg.Report.PlotPath, "dispatch.png"},
		{"exporter default", cfg.Telemetry.Exporter, "stdout"},
		{"sample_rate default", cfg.Telemetry.SampleRate, 1.0},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}

	ac, err := cfg.OPF.ACOptions()
	require.NoError(t, err)
	assert.Equal(t, opf.FlowReal, ac.FlowLim)
	assert.Equal(t, 20, ac.MaxOuter)
	assert.Equal(t, []index.Spec{{Name: "z", Len: 2}}, ac.Extra)
	assert.Equal(t, 40, cfg.DCOPF.DCOptions().MaxRounds)
	assert.Equal(t, "sqlite", cfg.Logging.Store().Backend)
}

func TestLoadJSONDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{"opf": {}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "apparent", cfg.OPF.FlowLim)
	assert.Equal(t, formulation.DefaultMaxRounds, cfg.DCOPF.MaxRounds)
	assert.Equal(t, "jsonl", cfg.Logging.Backend)
	assert.Equal(t, "runs.log", cfg.Logging.Path)
	assert.False(t, cfg.MQTT.Enabled())
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", "opf:\n  max_outer: 20\n")
	t.Setenv("G_OPF__MAX_OUTER", "7")
	t.Setenv("G_LOGGING__BACKEND", "none")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.OPF.MaxOuter)
	assert.Equal(t, "none", cfg.Logging.Backend)
	assert.Empty(t, cfg.Logging.Path)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "config.toml", "")
	_, err := Load(path)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"flow limit", func(c *Config) { c.OPF.FlowLim = "voltage" }},
		{"negative tolerance", func(c *Config) { c.OPF.FeasTol = -1 }},
		{"backend", func(c *Config) { c.Logging.Backend = "csv" }},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"broker url", func(c *Config) { c.MQTT.Broker = "not a url" }},
		{"tls files", func(c *Config) { c.MQTT.UseTLS = true }},
		{"exporter", func(c *Config) { c.Telemetry.Exporter = "jaeger" }},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }},
		{"plot format", func(c *Config) { c.Report.PlotPath = "chart.bmp" }},
		{"fractional block", func(c *Config) { c.OPF.ExtraBlocks = map[string]float64{"z": 1.5} }},
		{"negative block", func(c *Config) { c.OPF.ExtraBlocks = map[string]float64{"z": -1} }},
		{"gap tolerance", func(c *Config) { c.DCOPF.GapTol = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
	assert.NoError(t, Default().Validate())
}
