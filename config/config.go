// Package config loads the engine configuration from a YAML or JSON file
// with K_ prefixed environment overrides.
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

	"github.com/kilianp07/bessim/core/metrics"
	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/validation"
	"github.com/kilianp07/bessim/infra/logger"
)

type Config struct {
	Battery    model.Configuration `json:"battery"`
	Catalog    CatalogConfig       `json:"catalog"`
	Simulation SimulationConfig    `json:"simulation"`
	Validation validation.Limits   `json:"validation"`
	Optimizer  OptimizerConfig     `json:"optimizer"`
	Input      InputConfig         `json:"input"`
	Output     OutputConfig        `json:"output"`
	Metrics    metrics.Config      `json:"metrics"`
	Logging    logger.Config       `json:"logging"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		Battery: model.Configuration{
			Technology: model.TechModernLFP,
			Topology:   model.TopologyParallelAC,
		},
		Simulation: DefaultSimulation(),
		Validation: validation.DefaultLimits(),
		Optimizer:  DefaultOptimizer(),
		Output:     OutputConfig{Format: FormatJSON},
	}
}

// Load reads path, applies environment overrides such as
// K_BATTERY__POWER_MW=4 and validates every section.
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
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset fields of every section.
func (c *Config) SetDefaults() {
	c.Simulation.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Output.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section. The battery itself is checked by the
// validator at run time so that warnings can be reported.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Catalog.Build(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Simulation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Validation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Optimizer.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Output.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
