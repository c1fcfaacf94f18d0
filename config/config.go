// Package config loads the gridopt configuration file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/metrics"
	"github.com/kilianp07/gridopt/infra/mqtt"
)

// EnvPrefix marks environment overrides; G_OPF__MAX_OUTER=20 sets opf.max_outer.
const EnvPrefix = "G_"

type Config struct {
	OPF       OPFConfig       `json:"opf"`
	DCOPF     DCOPFConfig     `json:"dcopf"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   metrics.Config  `json:"metrics"`
	MQTT      mqtt.Config     `json:"mqtt"`
	Report    ReportConfig    `json:"report"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, errs.Config(path, "unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.OPF.SetDefaults()
	c.DCOPF.SetDefaults()
	c.Logging.SetDefaults()
	c.MQTT.SetDefaults()
	c.Telemetry.SetDefaults()
}

// Validate checks the struct tags of every section, then the checks the
// tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return errs.Config(f.Namespace(), "failed %q check (value %v)", f.Tag(), f.Value())
		}
		return errs.Config("config", "%v", err)
	}
	if _, err := c.OPF.ACOptions(); err != nil {
		return err
	}
	if c.MQTT.UseTLS && c.MQTT.TLSConfig == nil &&
		(c.MQTT.ClientCert == "" || c.MQTT.ClientKey == "" || c.MQTT.CABundle == "") {
		return errs.Config("mqtt", "use_tls requires client_cert, client_key and ca_bundle")
	}
	return nil
}
