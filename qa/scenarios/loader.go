// Package scenarios runs declarative YAML simulation scenarios and checks
// their outcome against expected metric bounds.
package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/simulation"
	"github.com/kilianp07/bessim/core/strategy"
)

type BatteryDef struct {
	PowerMW       float64 `yaml:"power_mw"`
	DurationHours float64 `yaml:"duration_hours"`
	Technology    string  `yaml:"technology"`
	Topology      string  `yaml:"topology"`
	ExportLimitMW float64 `yaml:"export_limit_mw"`
}

func (b BatteryDef) ToModel() model.Configuration {
	return model.Configuration{
		PowerMW:       b.PowerMW,
		DurationHours: b.DurationHours,
		Technology:    b.Technology,
		Topology:      b.Topology,
		ExportLimitMW: b.ExportLimitMW,
	}
}

// Block repeats Value for Steps timesteps.
type Block struct {
	Value float64 `yaml:"value"`
	Steps int     `yaml:"steps"`
}

// SeriesDef is either an explicit list of values or a list of blocks.
type SeriesDef struct {
	Values []float64 `yaml:"values"`
	Blocks []Block   `yaml:"blocks"`
}

// Expand returns the series, or nil when nothing is defined.
func (s *SeriesDef) Expand() []float64 {
	if s == nil {
		return nil
	}
	if len(s.Blocks) == 0 {
		return s.Values
	}
	var out []float64
	for _, b := range s.Blocks {
		for i := 0; i < b.Steps; i++ {
			out = append(out, b.Value)
		}
	}
	return out
}

// Bounds is an inclusive interval. Unset ends are open.
type Bounds struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// Contains reports whether v lies within the bounds.
func (b Bounds) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

func (b Bounds) String() string {
	lo, hi := "-inf", "+inf"
	if b.Min != nil {
		lo = fmt.Sprint(*b.Min)
	}
	if b.Max != nil {
		hi = fmt.Sprint(*b.Max)
	}
	return "[" + lo + ", " + hi + "]"
}

// StepRange selects timesteps From (inclusive) to To (exclusive).
type StepRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

type Expected struct {
	Metrics  map[string]Bounds `yaml:"metrics"`
	FinalSOC *Bounds           `yaml:"final_soc,omitempty"`
	// Charging lists steps over which SOC must not decrease.
	Charging *StepRange `yaml:"charging,omitempty"`
	// Discharging lists steps whose battery power must be positive.
	Discharging *StepRange `yaml:"discharging,omitempty"`
}

type Scenario struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Battery     BatteryDef         `yaml:"battery"`
	Strategy    string             `yaml:"strategy"`
	Params      strategy.Params    `yaml:"params"`
	Options     simulation.Options `yaml:"options"`
	Solar       *SeriesDef         `yaml:"solar"`
	Price       *SeriesDef         `yaml:"price,omitempty"`
	Frequency   *SeriesDef         `yaml:"frequency,omitempty"`
	Expected    Expected           `yaml:"expected"`
}

// Inputs expands the scenario series.
func (sc *Scenario) Inputs() model.Inputs {
	return model.Inputs{Solar: sc.Solar.Expand(), Price: sc.Price.Expand(), Frequency: sc.Frequency.Expand()}
}

// StrategySpec resolves the strategy name.
func (sc *Scenario) StrategySpec() (strategy.Strategy, error) {
	k, err := strategy.ParseKind(sc.Strategy)
	if err != nil {
		return strategy.Strategy{}, err
	}
	return strategy.Strategy{Kind: k, Params: sc.Params}, nil
}

// Load reads a scenario file. Strategy parameters not set in the file keep
// their defaults.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := Scenario{Params: strategy.DefaultParams()}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
