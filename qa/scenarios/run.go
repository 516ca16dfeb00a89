package scenarios

import (
	"context"
	"fmt"
	"math"

	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/simulation"
)

const balanceTolerance = 1e-9

// Run simulates sc and returns every violated expectation.
func Run(ctx context.Context, sim *simulation.Simulator, sc *Scenario) (*model.Result, []string, error) {
	st, err := sc.StrategySpec()
	if err != nil {
		return nil, nil, err
	}
	res, err := sim.Run(ctx, sc.Inputs(), st, sc.Battery.ToModel(), sc.Options)
	if err != nil {
		return nil, nil, err
	}
	b, err := sim.Catalog().Resolve(sc.Battery.ToModel())
	if err != nil {
		return nil, nil, err
	}

	var failures []string
	fail := func(format string, args ...any) { failures = append(failures, fmt.Sprintf(format, args...)) }

	for i, s := range res.Steps {
		if d := s.SolarMW + s.BatteryMW - s.GridMW - s.CurtailedMW; math.Abs(d) > balanceTolerance {
			fail("step %d: power balance off by %g", i, d)
		}
		if s.SOC < b.SOCMin() || s.SOC > b.SOCMax() {
			fail("step %d: soc %v outside [%v,%v]", i, s.SOC, b.SOCMin(), b.SOCMax())
		}
	}
	if ceiling := b.RoundTripEfficiency(); res.Metrics.RoundTripEfficiency > ceiling*(1+balanceTolerance) {
		fail("round trip efficiency %v above %v", res.Metrics.RoundTripEfficiency, ceiling)
	}

	exp := sc.Expected
	for name, bounds := range exp.Metrics {
		v, ok := metricValue(res.Metrics, name)
		if !ok {
			fail("unknown metric %q", name)
			continue
		}
		if !bounds.Contains(v) {
			fail("%s = %v outside %s", name, v, bounds)
		}
	}
	if exp.FinalSOC != nil && !exp.FinalSOC.Contains(res.FinalSOC()) {
		fail("final soc %v outside %s", res.FinalSOC(), exp.FinalSOC)
	}
	if r := exp.Charging; r != nil {
		for i := r.From; i < r.To && i < len(res.Steps); i++ {
			if res.SOC[i+1] < res.SOC[i] {
				fail("step %d: soc fell while charging", i)
			}
		}
		if r.To <= len(res.Steps) && !(res.SOC[r.To] > res.SOC[r.From]) {
			fail("soc did not rise over steps [%d,%d)", r.From, r.To)
		}
	}
	if r := exp.Discharging; r != nil {
		for i := r.From; i < r.To && i < len(res.Steps); i++ {
			if !(res.Steps[i].BatteryMW > 0) {
				fail("step %d: battery not discharging (%v MW)", i, res.Steps[i].BatteryMW)
			}
		}
	}
	return res, failures, nil
}

func metricValue(m model.Metrics, name string) (float64, bool) {
	switch name {
	case "energy_efficiency":
		return m.EnergyEfficiency, true
	case "round_trip_efficiency":
		return m.RoundTripEfficiency, true
	case "total_losses_mwh":
		return m.TotalLossesMWh, true
	case "curtailment_ratio":
		return m.CurtailmentRatio, true
	case "total_cycles":
		return m.TotalCycles, true
	case "exported_mwh":
		return m.ExportedMWh, true
	case "imported_mwh":
		return m.ImportedMWh, true
	case "curtailed_mwh":
		return m.CurtailedMWh, true
	case "mean_soc":
		return m.MeanSOC, true
	}
	return 0, false
}
