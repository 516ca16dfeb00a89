package simulation

import (
	"math"

	"github.com/kilianp07/bessim/core/model"
)

// Default run parameters.
const (
	DefaultInitialSOC = 0.5
	DefaultDtHours    = 1.0
)

// Options controls a single run. Nil pointers and a zero DtHours select
// the defaults; an explicit zero InitialSOC is kept.
type Options struct {
	// InitialSOC is the state of charge before the first step.
	InitialSOC *float64 `json:"initial_soc,omitempty" yaml:"initial_soc,omitempty"`
	// DtHours is the timestep length.
	DtHours float64 `json:"dt_hours" yaml:"dt_hours"`
	// StartHour is the hour of day of the first timestep. When unset the
	// first step opens the strategy's day window.
	StartHour *float64 `json:"start_hour,omitempty" yaml:"start_hour,omitempty"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{InitialSOC: Float(DefaultInitialSOC), DtHours: DefaultDtHours}
}

// Float returns a pointer to v, for filling optional Options fields.
func Float(v float64) *float64 { return &v }

// SOC returns the initial state of charge, or the default when unset.
func (o Options) SOC() float64 {
	if o.InitialSOC == nil {
		return DefaultInitialSOC
	}
	return *o.InitialSOC
}

func (o Options) withDefaults() Options {
	o.InitialSOC = Float(o.SOC())
	if o.DtHours == 0 {
		o.DtHours = DefaultDtHours
	}
	if o.StartHour != nil {
		o.StartHour = Float(*o.StartHour)
	}
	return o
}

func (o Options) validate(b model.Battery) error {
	if !(o.DtHours > 0) || math.IsInf(o.DtHours, 0) {
		return model.Configf("dt_hours", "must be positive and finite, got %v", o.DtHours)
	}
	if o.StartHour != nil && (math.IsNaN(*o.StartHour) || math.IsInf(*o.StartHour, 0)) {
		return model.Configf("start_hour", "must be finite, got %v", *o.StartHour)
	}
	if soc := o.SOC(); !(soc >= b.SOCMin() && soc <= b.SOCMax()) {
		return model.Configf("initial_soc", "%v outside the %s window [%v,%v]",
			soc, b.Technology.ID, b.SOCMin(), b.SOCMax())
	}
	return nil
}
