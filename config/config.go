// Package config loads the solver configuration from YAML or JSON files with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/benders/core/benders"
	"github.com/kilianp07/benders/core/benders/logging"
	"github.com/kilianp07/benders/core/metrics"
	"github.com/kilianp07/benders/infra/logger"
	"github.com/kilianp07/benders/infra/mqtt"
)

// EnvPrefix marks environment variables that override file values.
// K_BENDERS__EPSILON=1e-6 sets benders.epsilon.
const EnvPrefix = "K_"

type Config struct {
	Benders benders.Config `json:"benders"`
	// Problem is the path of a YAML problem definition. Empty selects the
	// built-in reference instance.
	Problem      string         `json:"problem"`
	Log          logger.Options `json:"log"`
	IterationLog logging.Config `json:"iteration_log"`
	Metrics      metrics.Config `json:"metrics"`
	MQTT         mqtt.Config    `json:"mqtt"`
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Benders.SetDefaults()
	c.IterationLog.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section and reports all failures at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Benders.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("benders: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if err := c.IterationLog.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("iteration_log: %w", err))
	}
	for i, s := range c.Metrics.Sinks {
		if s.Type == "" {
			errs = append(errs, fmt.Errorf("metrics.sinks[%d]: type is required", i))
		}
	}
	if c.MQTT.Enabled() {
		if err := c.MQTT.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Load reads path, applies K_ environment overrides, then defaults, and
// validates the result. An empty path loads only the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
