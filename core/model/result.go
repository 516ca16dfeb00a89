package model

// State is the mutable state of a single simulation run.
type State struct {
	SOC           float64
	ChargedMWh    float64 // grid-side energy drawn while charging
	DischargedMWh float64 // grid-side energy delivered while discharging
	LossMWh       float64
	Cycles        float64
}

// Step is the outcome of one timestep. Values are built in a single
// composite literal so no field can be left unset.
type Step struct {
	SolarMW     float64 `json:"solar_mw"`
	RequestedMW float64 `json:"requested_mw"`
	// BatteryMW is the power at the battery terminals, positive when
	// discharging towards the grid.
	BatteryMW float64 `json:"battery_mw"`
	// GridMW is the net power exported at the point of interconnection.
	GridMW      float64 `json:"grid_mw"`
	LossMW      float64 `json:"loss_mw"`
	CurtailedMW float64 `json:"curtailed_mw"`
	// SOC is the state of charge at the end of the step.
	SOC float64 `json:"soc"`
}

// Metrics aggregates a run.
type Metrics struct {
	EnergyEfficiency    float64 `json:"energy_efficiency"`
	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
	TotalLossesMWh      float64 `json:"total_losses_mwh"`
	CurtailmentRatio    float64 `json:"curtailment_ratio"`
	TotalCycles         float64 `json:"total_cycles"`
	SolarMWh            float64 `json:"solar_mwh"`
	ExportedMWh         float64 `json:"exported_mwh"`
	ImportedMWh         float64 `json:"imported_mwh"`
	CurtailedMWh        float64 `json:"curtailed_mwh"`
	ChargedMWh          float64 `json:"charged_mwh"`
	DischargedMWh       float64 `json:"discharged_mwh"`
	InitialSOC          float64 `json:"initial_soc"`
	FinalSOC            float64 `json:"final_soc"`
	MeanSOC             float64 `json:"mean_soc"`
}

// Result is produced once per run and must not be modified afterwards.
type Result struct {
	Strategy string  `json:"strategy"`
	DtHours  float64 `json:"dt_hours"`
	Steps    []Step  `json:"steps"`
	// SOC is the trajectory including the initial value, len(Steps)+1 long.
	SOC     []float64 `json:"soc"`
	Metrics Metrics   `json:"metrics"`
}

// FinalSOC returns the SOC to pass forward when chaining runs.
func (r *Result) FinalSOC() float64 {
	if len(r.SOC) == 0 {
		return 0
	}
	return r.SOC[len(r.SOC)-1]
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	cp := *r
	cp.Steps = append([]Step(nil), r.Steps...)
	cp.SOC = append([]float64(nil), r.SOC...)
	return &cp
}
