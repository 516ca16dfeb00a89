package strategy

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/bessim/core/model"
)

// fullActivationHz is the deviation at which the default droop saturates.
const fullActivationHz = 0.2

// Env describes the time axis of a run.
type Env struct {
	DtHours float64
	// StartHour is the hour of day of the first timestep. Nil anchors the
	// first step to the start of the day window.
	StartHour *float64
}

// Policy is a strategy bound to the inputs and battery of one run. Its
// Request method is pure: it depends only on its arguments and the
// immutable data captured by Bind.
type Policy struct {
	kind    Kind
	params  Params
	in      model.Inputs
	battery model.Battery
	dt      float64
	start   float64
}

// Bind resolves defaults that depend on the inputs and checks that the
// signals required by the strategy are present.
func Bind(s Strategy, in model.Inputs, b model.Battery, env Env) (Policy, error) {
	if !s.Kind.IsValid() {
		return Policy{}, model.Configf("strategy", "unknown strategy %d", int(s.Kind))
	}
	if !(env.DtHours > 0) {
		return Policy{}, model.Configf("dt_hours", "must be positive, got %v", env.DtHours)
	}
	p := s.Params
	switch s.Kind {
	case TimeShiftAggressive:
		hours := []struct {
			name string
			v    float64
		}{
			{"day_start_hour", p.DayStartHour}, {"day_end_hour", p.DayEndHour},
			{"night_start_hour", p.NightStartHour}, {"night_end_hour", p.NightEndHour},
		}
		for _, h := range hours {
			if !(h.v >= 0 && h.v <= 24) {
				return Policy{}, model.Configf("strategy.params."+h.name, "hour %v outside [0,24]", h.v)
			}
		}
	case SolarSmoothing:
		if p.Alpha < 0 || math.IsNaN(p.Alpha) {
			return Policy{}, model.Configf("strategy.params.alpha", "must not be negative, got %v", p.Alpha)
		}
		if p.Alpha == 0 {
			p.Alpha = smoothingGain(in.Solar, b.PowerMW())
		}
	case CyclingDemo:
		if p.SubWindowSteps < 1 {
			return Policy{}, model.Configf("strategy.params.sub_window_steps", "must be at least 1, got %d", p.SubWindowSteps)
		}
	case FrequencyRegulation:
		if in.Frequency == nil {
			return Policy{}, model.Configf("frequency_deviation_hz", "required by %s", s.Kind)
		}
		if !(p.MaxShare > 0 && p.MaxShare <= 1) {
			return Policy{}, model.Configf("strategy.params.max_share", "must be in (0,1], got %v", p.MaxShare)
		}
		if p.DroopMWPerHz < 0 || math.IsNaN(p.DroopMWPerHz) {
			return Policy{}, model.Configf("strategy.params.droop_mw_per_hz", "must not be negative, got %v", p.DroopMWPerHz)
		}
		if p.DroopMWPerHz == 0 {
			p.DroopMWPerHz = p.MaxShare * b.PowerMW() / fullActivationHz
		}
	case ArbitrageAggressive:
		if in.Price == nil {
			return Policy{}, model.Configf("price", "required by %s", s.Kind)
		}
		if p.LowPrice == 0 && p.HighPrice == 0 {
			p.LowPrice, p.HighPrice = priceBands(in.Price)
		}
		if p.LowPrice > p.HighPrice {
			return Policy{}, model.Configf("strategy.params.low_price", "low price %v above high price %v", p.LowPrice, p.HighPrice)
		}
	}
	if err := in.Validate(); err != nil {
		return Policy{}, err
	}
	start := p.DayStartHour
	if env.StartHour != nil {
		start = *env.StartHour
		if math.IsNaN(start) || math.IsInf(start, 0) {
			return Policy{}, model.Configf("start_hour", "must be finite, got %v", start)
		}
	}
	return Policy{kind: s.Kind, params: p, in: in, battery: b, dt: env.DtHours, start: start}, nil
}

// Kind returns the bound strategy kind.
func (p Policy) Kind() Kind { return p.kind }

// StartHour returns the resolved hour of day of the first timestep.
func (p Policy) StartHour() float64 { return p.start }

// Params returns the tuning after defaults were resolved.
func (p Policy) Params() Params { return p.params }

// Request returns the power command for step i given the current SOC.
// Positive values discharge, negative values charge. Requests are not
// clipped; the physical model enforces the limits.
func (p Policy) Request(i int, soc float64) float64 {
	switch p.kind {
	case TimeShiftAggressive:
		return p.timeShift(i, soc)
	case SolarSmoothing:
		return p.smoothing(i)
	case CyclingDemo:
		return p.cycling(i)
	case FrequencyRegulation:
		return p.frequency(i)
	case ArbitrageAggressive:
		return p.arbitrage(i)
	}
	return 0
}

func (p Policy) hourOfDay(i int) float64 {
	h := math.Mod(p.start+float64(i)*p.dt, 24)
	if h < 0 {
		h += 24
	}
	return h
}

func (p Policy) timeShift(i int, soc float64) float64 {
	h := p.hourOfDay(i)
	pMax := p.battery.PowerMW()
	switch {
	case inWindow(h, p.params.DayStartHour, p.params.DayEndHour):
		return -math.Min(p.in.Solar[i], pMax)
	case inWindow(h, p.params.NightStartHour, p.params.NightEndHour):
		remaining := math.Mod(p.params.NightEndHour-h+24, 24)
		remaining = math.Max(remaining, p.dt)
		deliverable := math.Max(0, soc-p.battery.SOCMin()) * p.battery.EnergyMWh() * p.battery.LegEfficiency()
		return math.Min(pMax, deliverable/remaining)
	}
	return 0
}

func (p Policy) smoothing(i int) float64 {
	if i == 0 {
		return 0
	}
	return -p.params.Alpha * (p.in.Solar[i] - p.in.Solar[i-1])
}

func (p Policy) cycling(i int) float64 {
	if (i/p.params.SubWindowSteps)%2 == 0 {
		return -p.battery.PowerMW()
	}
	return p.battery.PowerMW()
}

func (p Policy) frequency(i int) float64 {
	bound := p.params.MaxShare * p.battery.PowerMW()
	dp := -p.params.DroopMWPerHz * p.in.Frequency[i]
	return math.Max(-bound, math.Min(bound, dp))
}

func (p Policy) arbitrage(i int) float64 {
	price := p.in.Price[i]
	switch {
	case price < p.params.LowPrice:
		return -p.battery.PowerMW()
	case price > p.params.HighPrice:
		return p.battery.PowerMW()
	}
	return 0
}

// inWindow reports whether h lies in [start,end), wrapping past midnight
// when start > end. An empty window never matches.
func inWindow(h, start, end float64) bool {
	switch {
	case start < end:
		return h >= start && h < end
	case start > end:
		return h >= start || h < end
	}
	return false
}

// smoothingGain returns the largest gain in (0,1] keeping the steepest ramp
// of solar within pMax.
func smoothingGain(solar []float64, pMax float64) float64 {
	var maxRamp float64
	for i := 1; i < len(solar); i++ {
		maxRamp = math.Max(maxRamp, math.Abs(solar[i]-solar[i-1]))
	}
	if maxRamp <= pMax {
		return 1
	}
	return pMax / maxRamp
}

// priceBands returns the 25th and 75th percentiles of prices.
func priceBands(prices []float64) (low, high float64) {
	if len(prices) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	return stat.Quantile(0.25, stat.Empirical, sorted, nil),
		stat.Quantile(0.75, stat.Empirical, sorted, nil)
}
