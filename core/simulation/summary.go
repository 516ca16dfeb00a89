package simulation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/bessim/core/battery"
	"github.com/kilianp07/bessim/core/model"
)

func summarize(steps []model.Step, soc []float64, st model.State, stored, removed, dt float64) model.Metrics {
	solar := make([]float64, len(steps))
	var exported, imported, curtailed float64
	for i, s := range steps {
		solar[i] = s.SolarMW
		if s.GridMW > 0 {
			exported += s.GridMW * dt
		} else {
			imported -= s.GridMW * dt
		}
		curtailed += s.CurtailedMW * dt
	}
	solarMWh := floats.Sum(solar) * dt

	m := model.Metrics{
		TotalLossesMWh: st.LossMWh,
		TotalCycles:    st.Cycles,
		SolarMWh:       solarMWh,
		ExportedMWh:    exported,
		ImportedMWh:    imported,
		CurtailedMWh:   curtailed,
		ChargedMWh:     st.ChargedMWh,
		DischargedMWh:  st.DischargedMWh,
		InitialSOC:     soc[0],
		FinalSOC:       soc[len(soc)-1],
		MeanSOC:        soc[0],
	}
	if len(steps) > 0 {
		m.MeanSOC = stat.Mean(soc[1:], nil)
	}
	if solarMWh > 0 {
		m.EnergyEfficiency = exported / solarMWh
		m.CurtailmentRatio = curtailed / solarMWh
	}
	m.RoundTripEfficiency = roundTrip(st.ChargedMWh, stored, removed, st.DischargedMWh)
	return m
}

// roundTrip returns the product of the realized charge and discharge leg
// efficiencies. Measuring each leg separately keeps energy already stored
// at the start of the run out of the figure. It is zero unless both legs
// carried energy.
func roundTrip(charged, stored, removed, discharged float64) float64 {
	if charged <= 0 || removed <= 0 {
		return 0
	}
	return (stored / charged) * (discharged / removed)
}

// checkResult asserts the run-level invariants.
func checkResult(res *model.Result, b model.Battery) error {
	m := res.Metrics
	for name, v := range map[string]float64{
		"energy_efficiency":     m.EnergyEfficiency,
		"round_trip_efficiency": m.RoundTripEfficiency,
		"total_losses_mwh":      m.TotalLossesMWh,
		"curtailment_ratio":     m.CurtailmentRatio,
		"total_cycles":          m.TotalCycles,
		"mean_soc":              m.MeanSOC,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &model.InconsistencyError{Step: len(res.Steps), Reason: fmt.Sprintf("%s is not finite", name)}
		}
	}
	if ceiling := b.RoundTripEfficiency(); m.RoundTripEfficiency > ceiling*(1+battery.Tolerance) {
		return &model.InconsistencyError{
			Step:   len(res.Steps),
			Reason: fmt.Sprintf("round trip efficiency %v exceeds theoretical %v", m.RoundTripEfficiency, ceiling),
		}
	}
	return nil
}
