package model

import "math"

// Configuration is a candidate battery sizing co-located with a PV plant.
type Configuration struct {
	PowerMW       float64 `json:"power_mw"`
	DurationHours float64 `json:"duration_hours"`
	Technology    string  `json:"technology"`
	Topology      string  `json:"topology"`
	// ExportLimitMW caps the power injected at the point of interconnection.
	// Zero means unconstrained.
	ExportLimitMW float64 `json:"export_limit_mw"`
}

// EnergyMWh returns the usable energy capacity.
func (c Configuration) EnergyMWh() float64 { return c.PowerMW * c.DurationHours }

// CRate returns the power to energy ratio, i.e. 1/duration.
func (c Configuration) CRate() float64 {
	if c.DurationHours == 0 {
		return math.Inf(1)
	}
	return 1 / c.DurationHours
}

// Battery is a configuration resolved against a catalog.
type Battery struct {
	Config     Configuration
	Technology TechnologyProfile
	Topology   TopologyProfile
}

// Resolve looks up the technology and topology of cfg. It performs the
// field checks that make a Battery usable by the physical model.
func (c Catalog) Resolve(cfg Configuration) (Battery, error) {
	if !(cfg.PowerMW > 0) || math.IsInf(cfg.PowerMW, 0) {
		return Battery{}, Configf("power_mw", "must be positive and finite, got %v", cfg.PowerMW)
	}
	if !(cfg.DurationHours > 0) || math.IsInf(cfg.DurationHours, 0) {
		return Battery{}, Configf("duration_hours", "must be positive and finite, got %v", cfg.DurationHours)
	}
	if cfg.ExportLimitMW < 0 || math.IsNaN(cfg.ExportLimitMW) || math.IsInf(cfg.ExportLimitMW, 0) {
		return Battery{}, Configf("export_limit_mw", "must be finite and not negative, got %v", cfg.ExportLimitMW)
	}
	tech, ok := c.Technology(cfg.Technology)
	if !ok {
		return Battery{}, Configf("technology", "unknown technology %q", cfg.Technology)
	}
	topo, ok := c.Topology(cfg.Topology)
	if !ok {
		return Battery{}, Configf("topology", "unknown topology %q", cfg.Topology)
	}
	return Battery{Config: cfg, Technology: tech, Topology: topo}, nil
}

// EnergyMWh returns the usable energy capacity.
func (b Battery) EnergyMWh() float64 { return b.Config.EnergyMWh() }

// PowerMW returns the power rating.
func (b Battery) PowerMW() float64 { return b.Config.PowerMW }

// LegEfficiency is the one-way efficiency applied on both the charge and the
// discharge leg. The round-trip efficiency and the topology penalty are split
// evenly between the two legs.
func (b Battery) LegEfficiency() float64 {
	return math.Sqrt(b.Technology.RoundTripEfficiency) * math.Sqrt(1-b.Topology.ConversionPenalty)
}

// RoundTripEfficiency is the theoretical charge-then-discharge efficiency.
func (b Battery) RoundTripEfficiency() float64 {
	return b.Technology.RoundTripEfficiency * (1 - b.Topology.ConversionPenalty)
}

// SOCMin returns the lower operating bound.
func (b Battery) SOCMin() float64 { return b.Technology.SOCMin }

// SOCMax returns the upper operating bound.
func (b Battery) SOCMax() float64 { return b.Technology.SOCMax }
