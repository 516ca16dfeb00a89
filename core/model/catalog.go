package model

import (
	"math"
	"sort"
)

// Technology identifiers available in the default catalog.
const (
	TechStandard  = "standard"
	TechModernLFP = "modern_lfp"
	TechPremium   = "premium"
)

// Topology identifiers available in the default catalog.
const (
	TopologyParallelAC = "parallel_ac"
	TopologySeriesDC   = "series_dc"
	TopologyHybrid     = "hybrid"
)

// TechnologyProfile describes the cell technology of a battery.
type TechnologyProfile struct {
	ID                  string  `json:"id"`
	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
	SOCMin              float64 `json:"soc_min"`
	SOCMax              float64 `json:"soc_max"`
}

// TopologyProfile describes how the battery is coupled to the PV plant.
type TopologyProfile struct {
	ID string `json:"id"`
	// ConversionPenalty is an extra round-trip loss fraction in [0,1).
	ConversionPenalty float64 `json:"conversion_penalty"`
}

// Catalog is a read-only lookup table of technologies and topologies.
type Catalog struct {
	Technologies map[string]TechnologyProfile `json:"technologies"`
	Topologies   map[string]TopologyProfile   `json:"topologies"`
}

// DefaultCatalog returns a fresh copy of the built-in catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Technologies: map[string]TechnologyProfile{
			TechStandard:  {ID: TechStandard, RoundTripEfficiency: 0.85, SOCMin: 0.20, SOCMax: 0.80},
			TechModernLFP: {ID: TechModernLFP, RoundTripEfficiency: 0.90, SOCMin: 0.10, SOCMax: 0.90},
			TechPremium:   {ID: TechPremium, RoundTripEfficiency: 0.95, SOCMin: 0.05, SOCMax: 0.95},
		},
		Topologies: map[string]TopologyProfile{
			TopologyParallelAC: {ID: TopologyParallelAC, ConversionPenalty: 0},
			TopologySeriesDC:   {ID: TopologySeriesDC, ConversionPenalty: 0.02},
			TopologyHybrid:     {ID: TopologyHybrid, ConversionPenalty: 0.01},
		},
	}
}

// Technology looks up a technology profile.
func (c Catalog) Technology(id string) (TechnologyProfile, bool) {
	t, ok := c.Technologies[id]
	return t, ok
}

// Topology looks up a topology profile.
func (c Catalog) Topology(id string) (TopologyProfile, bool) {
	t, ok := c.Topologies[id]
	return t, ok
}

// TechnologyIDs returns the known technology identifiers in sorted order.
func (c Catalog) TechnologyIDs() []string {
	ids := make([]string, 0, len(c.Technologies))
	for id := range c.Technologies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TopologyIDs returns the known topology identifiers in sorted order.
func (c Catalog) TopologyIDs() []string {
	ids := make([]string, 0, len(c.Topologies))
	for id := range c.Topologies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that every catalog entry is physically meaningful.
func (c Catalog) Validate() error {
	for _, id := range c.TechnologyIDs() {
		t := c.Technologies[id]
		if !(t.RoundTripEfficiency > 0 && t.RoundTripEfficiency <= 1) {
			return Configf("catalog.technologies."+id, "round trip efficiency %v outside (0,1]", t.RoundTripEfficiency)
		}
		if !(t.SOCMin >= 0 && t.SOCMin < t.SOCMax && t.SOCMax <= 1) {
			return Configf("catalog.technologies."+id, "soc window [%v,%v] invalid", t.SOCMin, t.SOCMax)
		}
	}
	for _, id := range c.TopologyIDs() {
		t := c.Topologies[id]
		if !(t.ConversionPenalty >= 0 && t.ConversionPenalty < 1) || math.IsNaN(t.ConversionPenalty) {
			return Configf("catalog.topologies."+id, "conversion penalty %v outside [0,1)", t.ConversionPenalty)
		}
	}
	return nil
}
