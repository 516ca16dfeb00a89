// Package strategy holds the dispatch control laws. A Strategy is a closed
// tagged variant: the Kind selects the law and Params carries its tuning.
package strategy

import (
	"fmt"
	"strings"

	"github.com/kilianp07/bessim/core/model"
)

// Kind identifies a dispatch control law.
type Kind int

const (
	TimeShiftAggressive Kind = iota
	SolarSmoothing
	CyclingDemo
	FrequencyRegulation
	ArbitrageAggressive
	kindCount
)

var kindNames = [...]string{
	TimeShiftAggressive: "time_shift_aggressive",
	SolarSmoothing:      "solar_smoothing",
	CyclingDemo:         "cycling_demo",
	FrequencyRegulation: "frequency_regulation",
	ArbitrageAggressive: "arbitrage_aggressive",
}

// String returns the identifier used in configuration files.
func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// IsValid reports whether k names a known strategy.
func (k Kind) IsValid() bool { return k >= 0 && k < kindCount }

// Kinds returns every known strategy.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind converts an identifier into a Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, model.Configf("strategy", "unknown strategy %q, known: %v", s, kindNames)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("unknown strategy %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Params tunes the control laws. Each law reads only its own fields.
type Params struct {
	// time_shift_aggressive windows, in hours of day [0,24).
	DayStartHour   float64 `json:"day_start_hour" yaml:"day_start_hour"`
	DayEndHour     float64 `json:"day_end_hour" yaml:"day_end_hour"`
	NightStartHour float64 `json:"night_start_hour" yaml:"night_start_hour"`
	NightEndHour   float64 `json:"night_end_hour" yaml:"night_end_hour"`

	// Alpha is the solar_smoothing gain. Zero selects the largest gain that
	// keeps the steepest ramp within the power rating.
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// SubWindowSteps is the length of each cycling_demo half cycle.
	SubWindowSteps int `json:"sub_window_steps" yaml:"sub_window_steps"`

	// DroopMWPerHz is the frequency_regulation gain k. Zero derives it from
	// MaxShare so that full activation happens at 200 mHz.
	DroopMWPerHz float64 `json:"droop_mw_per_hz" yaml:"droop_mw_per_hz"`
	// MaxShare bounds frequency corrections to a fraction of the rating.
	MaxShare float64 `json:"max_share" yaml:"max_share"`

	// LowPrice and HighPrice are the arbitrage thresholds. When both are
	// zero the 25th and 75th percentiles of the price series are used.
	LowPrice  float64 `json:"low_price" yaml:"low_price"`
	HighPrice float64 `json:"high_price" yaml:"high_price"`
}

// DefaultParams returns the tuning used when nothing is configured.
func DefaultParams() Params {
	return Params{
		DayStartHour:   6,
		DayEndHour:     18,
		NightStartHour: 18,
		NightEndHour:   6,
		SubWindowSteps: 2,
		MaxShare:       0.25,
	}
}

// Strategy selects a control law and its tuning.
type Strategy struct {
	Kind   Kind   `json:"name" yaml:"name"`
	Params Params `json:"params" yaml:"params"`
}

// New returns the strategy of the given kind with default tuning.
func New(k Kind) Strategy {
	return Strategy{Kind: k, Params: DefaultParams()}
}

// String returns the strategy identifier.
func (s Strategy) String() string { return s.Kind.String() }
