package model

import "math"

// Inputs holds the time series driving a simulation. Price and Frequency are
// optional; when set they must be as long as Solar.
type Inputs struct {
	// Solar is the PV generation in MW, one value per timestep.
	Solar []float64 `json:"solar_mw"`
	// Price is the market price in currency/MWh.
	Price []float64 `json:"price,omitempty"`
	// Frequency is the grid frequency deviation from nominal in Hz.
	Frequency []float64 `json:"frequency_deviation_hz,omitempty"`
}

// Len returns the number of timesteps.
func (in Inputs) Len() int { return len(in.Solar) }

// Validate checks that the series are usable.
func (in Inputs) Validate() error {
	for i, v := range in.Solar {
		if !(v >= 0) || math.IsInf(v, 0) {
			return Configf("solar_mw", "value %v at index %d must be finite and non-negative", v, i)
		}
	}
	if in.Price != nil && len(in.Price) != len(in.Solar) {
		return Configf("price", "length %d does not match solar length %d", len(in.Price), len(in.Solar))
	}
	if in.Frequency != nil && len(in.Frequency) != len(in.Solar) {
		return Configf("frequency_deviation_hz", "length %d does not match solar length %d", len(in.Frequency), len(in.Solar))
	}
	for i, v := range in.Price {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Configf("price", "value at index %d is not finite", i)
		}
	}
	for i, v := range in.Frequency {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Configf("frequency_deviation_hz", "value at index %d is not finite", i)
		}
	}
	return nil
}
