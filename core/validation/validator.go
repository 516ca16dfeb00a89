// Package validation checks battery configurations against the catalog and
// engineering limits before any simulation is run.
package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/bessim/core/model"
)

// Default engineering limits.
const (
	DefaultCRateCeiling     = 1.0
	DefaultMinDurationHours = 0.25
	DefaultMaxDurationHours = 12.0
)

// Limits are the soft thresholds that produce warnings.
type Limits struct {
	CRateCeiling     float64 `json:"c_rate_ceiling"`
	MinDurationHours float64 `json:"min_duration_hours"`
	MaxDurationHours float64 `json:"max_duration_hours"`
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		CRateCeiling:     DefaultCRateCeiling,
		MinDurationHours: DefaultMinDurationHours,
		MaxDurationHours: DefaultMaxDurationHours,
	}
}

// Validate checks the limits themselves.
func (l Limits) Validate() error {
	if !(l.CRateCeiling > 0) {
		return model.Configf("validation.c_rate_ceiling", "must be positive, got %v", l.CRateCeiling)
	}
	if !(l.MinDurationHours >= 0) {
		return model.Configf("validation.min_duration_hours", "must not be negative, got %v", l.MinDurationHours)
	}
	if !(l.MaxDurationHours > l.MinDurationHours) {
		return model.Configf("validation.max_duration_hours", "%v must exceed min_duration_hours %v", l.MaxDurationHours, l.MinDurationHours)
	}
	return nil
}

// Report is the outcome of validating one configuration. Err joins every
// hard failure and is nil when Valid is true. Warnings never invalidate.
type Report struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings,omitempty"`
	Err      error    `json:"-"`
}

// Validator is stateless once built and safe for concurrent use.
type Validator struct {
	Catalog model.Catalog
	Limits  Limits
}

// New returns a Validator with the default limits.
func New(catalog model.Catalog) Validator {
	return Validator{Catalog: catalog, Limits: DefaultLimits()}
}

// Validate reports every hard failure of cfg rather than stopping at the
// first one.
func (v Validator) Validate(cfg model.Configuration) Report {
	var errs []error
	var warnings []string

	powerOK := positive(cfg.PowerMW)
	durationOK := positive(cfg.DurationHours)
	if !powerOK {
		errs = append(errs, model.Configf("power_mw", "must be positive and finite, got %v", cfg.PowerMW))
	}
	if !durationOK {
		errs = append(errs, model.Configf("duration_hours", "must be positive and finite, got %v", cfg.DurationHours))
	}
	if cfg.ExportLimitMW < 0 || math.IsNaN(cfg.ExportLimitMW) || math.IsInf(cfg.ExportLimitMW, 0) {
		errs = append(errs, model.Configf("export_limit_mw", "must be finite and not negative, got %v", cfg.ExportLimitMW))
	}
	if _, ok := v.Catalog.Technology(cfg.Technology); !ok {
		errs = append(errs, model.Configf("technology", "unknown technology %q, known: %v", cfg.Technology, v.Catalog.TechnologyIDs()))
	}
	if _, ok := v.Catalog.Topology(cfg.Topology); !ok {
		errs = append(errs, model.Configf("topology", "unknown topology %q, known: %v", cfg.Topology, v.Catalog.TopologyIDs()))
	}

	if durationOK {
		if c := cfg.CRate(); c > v.Limits.CRateCeiling {
			warnings = append(warnings, fmt.Sprintf("c-rate %.3g exceeds ceiling %.3g", c, v.Limits.CRateCeiling))
		}
		if cfg.DurationHours < v.Limits.MinDurationHours {
			warnings = append(warnings, fmt.Sprintf("duration %.3gh is below %.3gh", cfg.DurationHours, v.Limits.MinDurationHours))
		}
		if cfg.DurationHours > v.Limits.MaxDurationHours {
			warnings = append(warnings, fmt.Sprintf("duration %.3gh is above %.3gh", cfg.DurationHours, v.Limits.MaxDurationHours))
		}
	}

	err := errors.Join(errs...)
	return Report{Valid: err == nil, Warnings: warnings, Err: err}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
