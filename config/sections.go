package config

import (
	"fmt"

	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/optimizer"
	"github.com/kilianp07/bessim/core/simulation"
	"github.com/kilianp07/bessim/core/strategy"
)

// CatalogConfig adds entries to, or replaces entries of, the built-in
// catalog by identifier.
type CatalogConfig struct {
	Technologies []model.TechnologyProfile `json:"technologies"`
	Topologies   []model.TopologyProfile   `json:"topologies"`
}

// Build returns the default catalog with the configured overrides applied.
func (c CatalogConfig) Build() (model.Catalog, error) {
	cat := model.DefaultCatalog()
	for _, t := range c.Technologies {
		if t.ID == "" {
			return model.Catalog{}, model.Configf("catalog.technologies", "entry without id")
		}
		cat.Technologies[t.ID] = t
	}
	for _, t := range c.Topologies {
		if t.ID == "" {
			return model.Catalog{}, model.Configf("catalog.topologies", "entry without id")
		}
		cat.Topologies[t.ID] = t
	}
	if err := cat.Validate(); err != nil {
		return model.Catalog{}, err
	}
	return cat, nil
}

// SimulationConfig selects the dispatch strategy and run options.
type SimulationConfig struct {
	Strategy string             `json:"strategy"`
	Params   strategy.Params    `json:"params"`
	Options  simulation.Options `json:"options"`
	// CacheSize bounds the result cache. Zero disables caching.
	CacheSize int `json:"cache_size"`
}

// DefaultSimulation returns the simulation section defaults.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		Strategy: strategy.TimeShiftAggressive.String(),
		Params:   strategy.DefaultParams(),
		Options:  simulation.DefaultOptions(),
	}
}

// SetDefaults applies sane defaults.
func (c *SimulationConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = strategy.TimeShiftAggressive.String()
	}
}

// Validate checks the strategy name and cache size.
func (c SimulationConfig) Validate() error {
	if _, err := strategy.ParseKind(c.Strategy); err != nil {
		return fmt.Errorf("simulation.strategy: %w", err)
	}
	if c.CacheSize < 0 {
		return model.Configf("simulation.cache_size", "must not be negative, got %d", c.CacheSize)
	}
	return nil
}

// StrategySpec returns the configured strategy.
func (c SimulationConfig) StrategySpec() (strategy.Strategy, error) {
	k, err := strategy.ParseKind(c.Strategy)
	if err != nil {
		return strategy.Strategy{}, err
	}
	return strategy.Strategy{Kind: k, Params: c.Params}, nil
}

// OptimizerConfig describes the sizing grid search. Technology, topology and
// export limit come from the battery section.
type OptimizerConfig struct {
	// Workers bounds concurrent candidates. Zero selects the CPU count.
	Workers   int             `json:"workers"`
	Objective string          `json:"objective"`
	Power     optimizer.Range `json:"power_mw"`
	Duration  optimizer.Range `json:"duration_hours"`
}

// DefaultOptimizer returns the optimizer section defaults.
func DefaultOptimizer() OptimizerConfig {
	return OptimizerConfig{
		Objective: string(optimizer.EnergyEfficiency),
		Power:     optimizer.Range{Min: 1, Max: 10, Step: 1},
		Duration:  optimizer.Range{Min: 1, Max: 8, Step: 1},
	}
}

// SetDefaults applies sane defaults.
func (c *OptimizerConfig) SetDefaults() {
	if c.Objective == "" {
		c.Objective = string(optimizer.EnergyEfficiency)
	}
}

// Validate checks the grid and objective.
func (c OptimizerConfig) Validate() error {
	if err := c.Pool().Validate(); err != nil {
		return err
	}
	_, err := c.Search(model.Configuration{}, simulation.Options{}).Grid()
	return err
}

// Pool returns the worker pool settings.
func (c OptimizerConfig) Pool() optimizer.Config {
	return optimizer.Config{Workers: c.Workers}
}

// Search builds the optimizer search around battery.
func (c OptimizerConfig) Search(battery model.Configuration, opts simulation.Options) optimizer.Search {
	return optimizer.Search{
		Power:         c.Power,
		Duration:      c.Duration,
		Technology:    battery.Technology,
		Topology:      battery.Topology,
		ExportLimitMW: battery.ExportLimitMW,
		Objective:     optimizer.Objective(c.Objective),
		Options:       opts,
	}
}

// InputConfig locates the CSV time series.
type InputConfig struct {
	Path string `json:"path"`
}

// Output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// OutputConfig selects where and how results are written. An empty Path
// writes to stdout.
type OutputConfig struct {
	Path   string `json:"path"`
	Format string `json:"format"`
}

// SetDefaults applies sane defaults.
func (c *OutputConfig) SetDefaults() {
	if c.Format == "" {
		c.Format = FormatJSON
	}
}

// Validate checks the format name.
func (c OutputConfig) Validate() error {
	if c.Format != FormatCSV && c.Format != FormatJSON {
		return model.Configf("output.format", "unknown format %q", c.Format)
	}
	return nil
}
