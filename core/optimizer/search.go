package optimizer

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/simulation"
)

// maxPoints bounds the number of values a single Range may expand to.
const maxPoints = 10000

// Range is an inclusive grid Min, Min+Step, ... up to Max.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// Points expands the range. Point k is Min+k*Step so that raising Max only
// appends points. A zero Step is allowed when Min equals Max.
func (r Range) Points(field string) ([]float64, error) {
	if !finite(r.Min) || !finite(r.Max) || !finite(r.Step) {
		return nil, model.Configf(field, "range bounds must be finite")
	}
	if r.Max < r.Min {
		return nil, model.Configf(field, "max %v below min %v", r.Max, r.Min)
	}
	if r.Step == 0 && r.Min == r.Max {
		return []float64{r.Min}, nil
	}
	if !(r.Step > 0) {
		return nil, model.Configf(field, "step must be positive, got %v", r.Step)
	}
	if n := (r.Max - r.Min) / r.Step; n >= maxPoints {
		return nil, model.Configf(field, "range expands to more than %d points", maxPoints)
	}
	// slack absorbs Min+k*Step landing a few ulps past Max
	limit := r.Max + r.Step*1e-9
	var pts []float64
	for k := 0; ; k++ {
		v := r.Min + float64(k)*r.Step
		if v > limit {
			break
		}
		pts = append(pts, v)
	}
	return pts, nil
}

// Objective names the metric a search optimises.
type Objective string

// Supported objectives.
const (
	EnergyEfficiency Objective = "energy_efficiency"
	CurtailmentRatio Objective = "curtailment_ratio"
)

// Objectives lists the supported objectives.
func Objectives() []Objective { return []Objective{EnergyEfficiency, CurtailmentRatio} }

// Validate rejects unknown objectives.
func (o Objective) Validate() error {
	switch o {
	case EnergyEfficiency, CurtailmentRatio:
		return nil
	}
	return model.Configf("objective", "unknown objective %q, known: %v", string(o), Objectives())
}

// Maximize reports whether larger scores are better.
func (o Objective) Maximize() bool { return o == EnergyEfficiency }

// Score extracts the objective from run metrics.
func (o Objective) Score(m model.Metrics) float64 {
	if o == CurtailmentRatio {
		return m.CurtailmentRatio
	}
	return m.EnergyEfficiency
}

// better reports whether a outranks b.
func (o Objective) better(a, b float64) bool {
	if o.Maximize() {
		return a > b
	}
	return a < b
}

// Search describes the grid to explore. Technology, topology and export
// limit are held fixed across candidates.
type Search struct {
	Power         Range              `json:"power_mw"`
	Duration      Range              `json:"duration_hours"`
	Technology    string             `json:"technology"`
	Topology      string             `json:"topology"`
	ExportLimitMW float64            `json:"export_limit_mw"`
	Objective     Objective          `json:"objective"`
	Options       simulation.Options `json:"options"`
}

// Grid expands the search into candidate configurations, power-major.
func (s Search) Grid() ([]model.Configuration, error) {
	if err := s.Objective.Validate(); err != nil {
		return nil, err
	}
	powers, err := s.Power.Points("search.power_mw")
	if err != nil {
		return nil, err
	}
	durations, err := s.Duration.Points("search.duration_hours")
	if err != nil {
		return nil, err
	}
	grid := make([]model.Configuration, 0, len(powers)*len(durations))
	for _, p := range powers {
		for _, d := range durations {
			grid = append(grid, model.Configuration{
				PowerMW:       p,
				DurationHours: d,
				Technology:    s.Technology,
				Topology:      s.Topology,
				ExportLimitMW: s.ExportLimitMW,
			})
		}
	}
	return grid, nil
}

// Status is the outcome of a search.
type Status string

const (
	// StatusOK means at least one candidate was valid.
	StatusOK Status = "ok"
	// StatusExhausted means no candidate satisfied the validator.
	StatusExhausted Status = "exhausted"
)

// Candidate is one evaluated point of the grid.
type Candidate struct {
	Config   model.Configuration `json:"config"`
	Valid    bool                `json:"valid"`
	Score    float64             `json:"score"`
	Metrics  model.Metrics       `json:"metrics"`
	Warnings []string            `json:"warnings,omitempty"`
	// Reason explains why an invalid candidate was rejected.
	Reason string `json:"reason,omitempty"`
}

// Result is the outcome of Optimize. Best is nil when Status is
// StatusExhausted.
type Result struct {
	SearchID       uuid.UUID     `json:"search_id"`
	Strategy       string        `json:"strategy"`
	Objective      Objective     `json:"objective"`
	Status         Status        `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	Best           *Candidate    `json:"best,omitempty"`
	ObjectiveValue float64       `json:"objective_value"`
	Candidates     []Candidate   `json:"candidates"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Rejected counts invalid candidates.
func (r *Result) Rejected() int {
	n := 0
	for _, c := range r.Candidates {
		if !c.Valid {
			n++
		}
	}
	return n
}

// Progress is published after each candidate evaluation.
type Progress struct {
	SearchID  uuid.UUID
	Done      int
	Total     int
	Candidate Candidate
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
