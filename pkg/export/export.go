// Package export writes simulation and optimization results as CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/optimizer"
	"github.com/kilianp07/bessim/core/validation"
)

// WriteJSON writes v to w as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteResultCSV writes one row per timestep.
func WriteResultCSV(w io.Writer, res *model.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"step", "solar_mw", "requested_mw", "battery_mw", "grid_mw", "loss_mw", "curtailed_mw", "soc"}); err != nil {
		return err
	}
	for i, s := range res.Steps {
		rec := []string{
			strconv.Itoa(i),
			ff(s.SolarMW),
			ff(s.RequestedMW),
			ff(s.BatteryMW),
			ff(s.GridMW),
			ff(s.LossMW),
			ff(s.CurtailedMW),
			ff(s.SOC),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOptimizationCSV writes one row per candidate in grid order.
func WriteOptimizationCSV(w io.Writer, res *optimizer.Result) error {
	cw := csv.NewWriter(w)
	header := []string{"power_mw", "duration_hours", "energy_mwh", "valid", "score", "energy_efficiency", "curtailment_ratio", "round_trip_efficiency", "total_cycles", "best", "reason"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, c := range res.Candidates {
		best := res.Best != nil && res.Best.Config == c.Config
		rec := []string{
			ff(c.Config.PowerMW),
			ff(c.Config.DurationHours),
			ff(c.Config.EnergyMWh()),
			strconv.FormatBool(c.Valid),
			ff(c.Score),
			ff(c.Metrics.EnergyEfficiency),
			ff(c.Metrics.CurtailmentRatio),
			ff(c.Metrics.RoundTripEfficiency),
			ff(c.Metrics.TotalCycles),
			strconv.FormatBool(best),
			c.Reason,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Report is the JSON shape of a validation report.
type Report struct {
	Config   model.Configuration `json:"config"`
	Valid    bool                `json:"valid"`
	Warnings []string            `json:"warnings"`
	Errors   []string            `json:"errors"`
}

// NewReport flattens a validation report for output.
func NewReport(cfg model.Configuration, r validation.Report) Report {
	out := Report{Config: cfg, Valid: r.Valid, Warnings: r.Warnings, Errors: []string{}}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	if r.Err != nil {
		if joined, ok := r.Err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				out.Errors = append(out.Errors, e.Error())
			}
		} else {
			out.Errors = append(out.Errors, r.Err.Error())
		}
	}
	return out
}

// WriteReportCSV writes one row per finding.
func WriteReportCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"severity", "message"}); err != nil {
		return err
	}
	for _, e := range r.Errors {
		if err := cw.Write([]string{"error", e}); err != nil {
			return err
		}
	}
	for _, m := range r.Warnings {
		if err := cw.Write([]string{"warning", m}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format ("csv" or "json").
func Write(w io.Writer, format string, v any) error {
	if format == "json" {
		return WriteJSON(w, v)
	}
	if format != "csv" {
		return fmt.Errorf("unsupported output format %q", format)
	}
	switch x := v.(type) {
	case *model.Result:
		return WriteResultCSV(w, x)
	case *optimizer.Result:
		return WriteOptimizationCSV(w, x)
	case Report:
		return WriteReportCSV(w, x)
	}
	return fmt.Errorf("no csv encoding for %T", v)
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
