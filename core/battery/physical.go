// Package battery converts power requests into deliverable power and the
// resulting state of charge transition.
package battery

import (
	"fmt"
	"math"

	"github.com/kilianp07/bessim/core/model"
)

// Tolerance bounds float drift accepted by the invariant checks.
const Tolerance = 1e-9

// socSnap absorbs rounding when a transition lands exactly on a bound.
const socSnap = 1e-12

// Transition is the fully-populated outcome of applying a request for one
// timestep.
type Transition struct {
	// BatteryMW is the realized terminal power, positive when discharging.
	BatteryMW float64
	// LossMW is the conversion loss averaged over the timestep.
	LossMW float64
	// SOC is the state of charge after the step.
	SOC float64
	// StoredMWh is the energy added to storage (charge leg).
	StoredMWh float64
	// RemovedMWh is the energy taken from storage (discharge leg).
	RemovedMWh float64
}

// Apply clips requestMW to the power rating and to the energy available in
// the SOC window, applies the leg efficiency and returns the transition.
// Positive requests discharge, negative requests charge.
func Apply(requestMW float64, soc float64, b model.Battery, dtHours float64) (Transition, error) {
	if !(dtHours > 0) {
		return Transition{}, model.Configf("dt_hours", "must be positive, got %v", dtHours)
	}
	if math.IsNaN(requestMW) || math.IsInf(requestMW, 0) {
		return Transition{}, &model.InconsistencyError{Reason: fmt.Sprintf("request %v is not finite", requestMW)}
	}

	pMax := b.PowerMW()
	eCap := b.EnergyMWh()
	leg := b.LegEfficiency()
	p := math.Max(-pMax, math.Min(pMax, requestMW))

	var tr Transition
	switch {
	case p > 0:
		tr = discharge(p, soc, b, eCap, leg, dtHours)
	case p < 0:
		tr = charge(-p, soc, b, eCap, leg, dtHours)
	default:
		tr = Transition{SOC: soc}
	}
	tr.SOC = snap(tr.SOC, b.SOCMin(), b.SOCMax())
	if err := check(tr, b, leg, dtHours); err != nil {
		return Transition{}, err
	}
	return tr, nil
}

func discharge(p, soc float64, b model.Battery, eCap, leg, dt float64) Transition {
	delivered := p * dt
	removed := delivered / leg
	avail := math.Max(0, (soc-b.SOCMin())*eCap)
	if removed > avail {
		removed = avail
		delivered = removed * leg
	}
	return Transition{
		BatteryMW:  delivered / dt,
		LossMW:     (removed - delivered) / dt,
		SOC:        soc - removed/eCap,
		RemovedMWh: removed,
	}
}

func charge(p, soc float64, b model.Battery, eCap, leg, dt float64) Transition {
	drawn := p * dt
	stored := drawn * leg
	room := math.Max(0, (b.SOCMax()-soc)*eCap)
	if stored > room {
		stored = room
		drawn = stored / leg
	}
	return Transition{
		BatteryMW: -drawn / dt,
		LossMW:    (drawn - stored) / dt,
		SOC:       soc + stored/eCap,
		StoredMWh: stored,
	}
}

func snap(soc, lo, hi float64) float64 {
	if math.Abs(soc-lo) <= socSnap {
		return lo
	}
	if math.Abs(soc-hi) <= socSnap {
		return hi
	}
	return soc
}

func check(tr Transition, b model.Battery, leg, dt float64) error {
	for _, v := range []float64{tr.BatteryMW, tr.LossMW, tr.SOC, tr.StoredMWh, tr.RemovedMWh} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &model.InconsistencyError{Reason: fmt.Sprintf("non-finite transition %+v", tr)}
		}
	}
	if tr.SOC < b.SOCMin() || tr.SOC > b.SOCMax() {
		return &model.InconsistencyError{Reason: fmt.Sprintf("soc %v outside [%v,%v]", tr.SOC, b.SOCMin(), b.SOCMax())}
	}
	if math.Abs(tr.BatteryMW) > b.PowerMW()*(1+Tolerance) {
		return &model.InconsistencyError{Reason: fmt.Sprintf("power %v exceeds rating %v", tr.BatteryMW, b.PowerMW())}
	}
	if tr.LossMW < -Tolerance {
		return &model.InconsistencyError{Reason: fmt.Sprintf("negative loss %v", tr.LossMW)}
	}
	if eff, ok := tr.Efficiency(dt); ok && eff > leg*(1+Tolerance) {
		return &model.InconsistencyError{Reason: fmt.Sprintf("realized efficiency %v exceeds %v", eff, leg)}
	}
	return nil
}

// Efficiency returns the realized one-way efficiency of the transition. ok is
// false for idle steps.
func (tr Transition) Efficiency(dtHours float64) (eff float64, ok bool) {
	switch {
	case tr.RemovedMWh > 0:
		return tr.BatteryMW * dtHours / tr.RemovedMWh, true
	case tr.StoredMWh > 0:
		return tr.StoredMWh / (-tr.BatteryMW * dtHours), true
	}
	return 0, false
}
