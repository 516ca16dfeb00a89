package simulation

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bessim/core/metrics"
	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/strategy"
)

const tol = 1e-9

// diurnal returns days*24 hourly samples of a noisy PV profile peaking at
// peak MW, zero outside 07:00-17:00.
func diurnal(days int, peak float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, days*24)
	for i := range out {
		h := i % 24
		if h < 7 || h > 17 {
			continue
		}
		v := peak * math.Sin(math.Pi*float64(h-6)/12) * (0.7 + 0.3*rng.Float64())
		out[i] = v
	}
	return out
}

func signals(n int, seed int64) (price, freq []float64) {
	rng := rand.New(rand.NewSource(seed))
	price = make([]float64, n)
	freq = make([]float64, n)
	for i := range price {
		price[i] = 40 + 30*math.Sin(2*math.Pi*float64(i)/24) + 10*rng.NormFloat64()
		freq[i] = 0.08 * rng.NormFloat64()
	}
	return price, freq
}

func newSim() *Simulator { return New(model.DefaultCatalog(), nil) }

func TestRun_PhysicalInvariants(t *testing.T) {
	solar := diurnal(3, 3, 1)
	price, freq := signals(len(solar), 2)
	in := model.Inputs{Solar: solar, Price: price, Frequency: freq}
	sim := newSim()
	catalog := model.DefaultCatalog()

	for _, kind := range strategy.Kinds() {
		for tech := range catalog.Technologies {
			for topo := range catalog.Topologies {
				for _, limit := range []float64{0, 1.5} {
					cfg := model.Configuration{PowerMW: 2, DurationHours: 2, Technology: tech, Topology: topo, ExportLimitMW: limit}
					res, err := sim.Run(context.Background(), in, strategy.New(kind), cfg, Options{DtHours: 0.5})
					require.NoError(t, err, "%s %s %s", kind, tech, topo)
					assertInvariants(t, res, cfg, catalog, kind.String())
				}
			}
		}
	}
}

func assertInvariants(t *testing.T, res *model.Result, cfg model.Configuration, catalog model.Catalog, label string) {
	t.Helper()
	b, err := catalog.Resolve(cfg)
	require.NoError(t, err)
	require.Len(t, res.Steps, len(res.SOC)-1)
	for i, s := range res.Steps {
		// power balance at the point of interconnection
		assert.InDelta(t, s.SolarMW+s.BatteryMW, s.GridMW+s.CurtailedMW, tol, "%s step %d", label, i)
		// storage outflow covers terminal power and losses
		outflow := -(res.SOC[i+1] - res.SOC[i]) * b.EnergyMWh() / res.DtHours
		assert.InDelta(t, s.BatteryMW+s.LossMW, outflow, tol, "%s step %d", label, i)
		assert.GreaterOrEqual(t, s.SOC, b.SOCMin(), "%s step %d", label, i)
		assert.LessOrEqual(t, s.SOC, b.SOCMax(), "%s step %d", label, i)
		assert.LessOrEqual(t, math.Abs(s.BatteryMW), b.PowerMW()*(1+tol))
		assert.GreaterOrEqual(t, s.LossMW, 0.0)
		assert.GreaterOrEqual(t, s.CurtailedMW, 0.0)
		if cfg.ExportLimitMW > 0 {
			assert.LessOrEqual(t, s.GridMW, cfg.ExportLimitMW)
		}
	}
	assert.LessOrEqual(t, res.Metrics.RoundTripEfficiency, b.RoundTripEfficiency()*(1+tol), label)
}

func TestRun_EfficiencyCeilingForStorageRoutedEnergy(t *testing.T) {
	solar := diurnal(2, 1, 3)
	sim := newSim()
	for _, topo := range []string{model.TopologyParallelAC, model.TopologySeriesDC, model.TopologyHybrid} {
		cfg := model.Configuration{PowerMW: 2, DurationHours: 10, Technology: model.TechModernLFP, Topology: topo}
		res, err := sim.Run(context.Background(), model.Inputs{Solar: solar}, strategy.New(strategy.TimeShiftAggressive), cfg, Options{InitialSOC: Float(0.1), StartHour: Float(0)})
		require.NoError(t, err)
		b, err := model.DefaultCatalog().Resolve(cfg)
		require.NoError(t, err)
		assert.Greater(t, res.Metrics.EnergyEfficiency, 0.0)
		assert.LessOrEqual(t, res.Metrics.EnergyEfficiency, b.RoundTripEfficiency()*(1+tol), topo)
		assert.InDelta(t, b.RoundTripEfficiency(), res.Metrics.RoundTripEfficiency, 1e-12, topo)
	}
}

func TestRun_Deterministic(t *testing.T) {
	solar := diurnal(2, 2, 4)
	price, freq := signals(len(solar), 5)
	in := model.Inputs{Solar: solar, Price: price, Frequency: freq}
	cfg := model.Configuration{PowerMW: 1, DurationHours: 3, Technology: model.TechStandard, Topology: model.TopologyHybrid}
	for _, kind := range strategy.Kinds() {
		a, err := newSim().Run(context.Background(), in, strategy.New(kind), cfg, Options{InitialSOC: Float(0.4)})
		require.NoError(t, err)
		b, err := newSim().Run(context.Background(), in, strategy.New(kind), cfg, Options{InitialSOC: Float(0.4)})
		require.NoError(t, err)
		assert.Equal(t, a, b, kind.String())
	}
}

func TestRun_FlatChargeDischarge(t *testing.T) {
	solar := make([]float64, 24)
	for i := 0; i < 12; i++ {
		solar[i] = 1
	}
	cfg := model.Configuration{PowerMW: 1, DurationHours: 4, Technology: model.TechModernLFP, Topology: model.TopologyParallelAC}
	res, err := newSim().Run(context.Background(), model.Inputs{Solar: solar}, strategy.New(strategy.TimeShiftAggressive), cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultInitialSOC, res.SOC[0])

	for i := 0; i < 12; i++ {
		assert.GreaterOrEqual(t, res.SOC[i+1], res.SOC[i], "soc fell at step %d", i)
	}
	assert.Greater(t, res.SOC[12], res.SOC[0])
	for i := 12; i < 24; i++ {
		assert.Greater(t, res.Steps[i].BatteryMW, 0.0, "no discharge at step %d", i)
	}
	assert.InDelta(t, 0, res.Metrics.CurtailmentRatio, 1e-12)
	// the night window drains the battery down to its floor
	assert.InDelta(t, 0.1, res.FinalSOC(), 1e-9)
}

func TestRun_OversizedBatteryNeverCurtails(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	solar := make([]float64, 72)
	for i := range solar {
		if h := i % 24; h >= 6 && h < 18 {
			solar[i] = 2 * rng.Float64()
		}
	}
	cfg := model.Configuration{PowerMW: 1, DurationHours: 100, Technology: model.TechModernLFP, Topology: model.TopologyParallelAC, ExportLimitMW: 1}
	res, err := newSim().Run(context.Background(), model.Inputs{Solar: solar}, strategy.New(strategy.TimeShiftAggressive), cfg, Options{InitialSOC: Float(0.1), StartHour: Float(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Metrics.CurtailmentRatio)
	assert.Equal(t, 0.0, res.Metrics.CurtailedMWh)
}

func TestRun_FullBatteryCurtailsAboveExportLimit(t *testing.T) {
	solar := []float64{2, 2, 2, 2}
	cfg := model.Configuration{PowerMW: 1, DurationHours: 1, Technology: model.TechModernLFP, Topology: model.TopologyParallelAC, ExportLimitMW: 0.5}
	res, err := newSim().Run(context.Background(), model.Inputs{Solar: solar}, strategy.New(strategy.TimeShiftAggressive), cfg, Options{InitialSOC: Float(0.9), StartHour: Float(8)})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, res.Metrics.CurtailmentRatio, 1e-12)
	for _, s := range res.Steps {
		assert.InDelta(t, 0.5, s.GridMW, 1e-12)
		assert.InDelta(t, 1.5, s.CurtailedMW, 1e-12)
	}
}

func TestRun_ExportLimitCapsDischarge(t *testing.T) {
	solar := []float64{0.8, 0.8}
	cfg := model.Configuration{PowerMW: 1, DurationHours: 2, Technology: model.TechPremium, Topology: model.TopologyParallelAC, ExportLimitMW: 1}
	res, err := newSim().RunDynamic(context.Background(), []float64{1, 1}, solar, cfg, Options{})
	require.NoError(t, err)
	for _, s := range res.Steps {
		assert.Equal(t, 1.0, s.RequestedMW)
		assert.InDelta(t, 0.2, s.BatteryMW, 1e-12)
		assert.Zero(t, s.CurtailedMW)
	}
}

func TestRunDynamic_Chaining(t *testing.T) {
	requests := []float64{-1, -1, 0.5, 2, -0.3, 0, 1, 1}
	solar := []float64{1, 2, 1, 0, 0.5, 0.5, 0, 0}
	cfg := model.Configuration{PowerMW: 1, DurationHours: 2, Technology: model.TechStandard, Topology: model.TopologySeriesDC}
	sim := newSim()

	full, err := sim.RunDynamic(context.Background(), requests, solar, cfg, Options{InitialSOC: Float(0.3)})
	require.NoError(t, err)
	first, err := sim.RunDynamic(context.Background(), requests[:4], solar[:4], cfg, Options{InitialSOC: Float(0.3)})
	require.NoError(t, err)
	second, err := sim.RunDynamic(context.Background(), requests[4:], solar[4:], cfg, Options{InitialSOC: Float(first.FinalSOC())})
	require.NoError(t, err)

	assert.Equal(t, DynamicControl, full.Strategy)
	assert.Equal(t, full.Steps, append(append([]model.Step(nil), first.Steps...), second.Steps...))
	assert.Equal(t, full.SOC[4:], second.SOC)
	assertInvariants(t, full, cfg, model.DefaultCatalog(), "dynamic")
}

func TestRunDynamic_ChainingFromEmptyBattery(t *testing.T) {
	catalog := model.DefaultCatalog()
	catalog.Technologies["deep_cycle"] = model.TechnologyProfile{ID: "deep_cycle", RoundTripEfficiency: 0.9, SOCMin: 0, SOCMax: 1}
	require.NoError(t, catalog.Validate())
	sim := New(catalog, nil)
	cfg := model.Configuration{PowerMW: 1, DurationHours: 1, Technology: "deep_cycle", Topology: model.TopologyParallelAC}

	first, err := sim.RunDynamic(context.Background(), []float64{1, 1}, nil, cfg, Options{InitialSOC: Float(0.5)})
	require.NoError(t, err)
	require.Equal(t, 0.0, first.FinalSOC())

	second, err := sim.RunDynamic(context.Background(), []float64{1, 1}, nil, cfg, Options{InitialSOC: Float(first.FinalSOC())})
	require.NoError(t, err)
	assert.Equal(t, 0.0, second.SOC[0])
	for i, s := range second.Steps {
		assert.Zero(t, s.BatteryMW, "step %d", i)
	}
	assert.Zero(t, second.Metrics.DischargedMWh)
}

func TestOptions_Defaults(t *testing.T) {
	assert.Equal(t, DefaultInitialSOC, Options{}.SOC())
	assert.Equal(t, 0.0, Options{InitialSOC: Float(0)}.SOC())

	o := Options{}.withDefaults()
	assert.Equal(t, DefaultDtHours, o.DtHours)
	assert.Nil(t, o.StartHour)

	// the resolved copy does not alias the caller's value
	soc := 0.3
	in := Options{InitialSOC: &soc}
	out := in.withDefaults()
	soc = 0.7
	assert.Equal(t, 0.3, out.SOC())
}

func TestRunDynamic_NilSolar(t *testing.T) {
	cfg := model.Configuration{PowerMW: 1, DurationHours: 1, Technology: model.TechModernLFP, Topology: model.TopologyParallelAC}
	res, err := newSim().RunDynamic(context.Background(), []float64{-1, 1}, nil, cfg, Options{})
	require.NoError(t, err)
	assert.Less(t, res.Steps[0].GridMW, 0.0)
	assert.Zero(t, res.Metrics.EnergyEfficiency)
	assert.Greater(t, res.Metrics.ImportedMWh, 0.0)
}

func TestRun_ConfigurationErrors(t *testing.T) {
	good := model.Configuration{PowerMW: 1, DurationHours: 1, Technology: model.TechModernLFP, Topology: model.TopologyParallelAC}
	in := model.Inputs{Solar: []float64{1, 2}}
	cases := map[string]struct {
		cfg  model.Configuration
		opts Options
		in   model.Inputs
		st   strategy.Strategy
	}{
		"zero duration":    {cfg: model.Configuration{PowerMW: 1, Technology: model.TechModernLFP, Topology: model.TopologyParallelAC}, in: in},
		"negative power":   {cfg: model.Configuration{PowerMW: -1, DurationHours: 1, Technology: model.TechModernLFP, Topology: model.TopologyParallelAC}, in: in},
		"unknown tech":     {cfg: model.Configuration{PowerMW: 1, DurationHours: 1, Technology: "nmc", Topology: model.TopologyParallelAC}, in: in},
		"unknown topology": {cfg: model.Configuration{PowerMW: 1, DurationHours: 1, Technology: model.TechModernLFP, Topology: "ring"}, in: in},
		"soc outside":      {cfg: good, opts: Options{InitialSOC: Float(0.95)}, in: in},
		"negative dt":      {cfg: good, opts: Options{DtHours: -1}, in: in},
		"short price":      {cfg: good, in: model.Inputs{Solar: in.Solar, Price: []float64{1}}, st: strategy.New(strategy.ArbitrageAggressive)},
		"missing freq":     {cfg: good, in: in, st: strategy.New(strategy.FrequencyRegulation)},
		"nan solar":        {cfg: good, in: model.Inputs{Solar: []float64{math.NaN()}}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			st := c.st
			if st.Params == (strategy.Params{}) {
				st = strategy.New(strategy.CyclingDemo)
			}
			_, err := newSim().Run(context.Background(), c.in, st, c.cfg, c.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrConfiguration), "got %v", err)
		})
	}

	_, err := newSim().RunDynamic(context.Background(), []float64{1}, []float64{1, 2}, good, Options{})
	assert.True(t, errors.Is(err, model.ErrConfiguration))
	_, err = newSim().RunDynamic(context.Background(), []float64{math.Inf(1)}, nil, good, Options{})
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := model.Configuration{PowerMW: 1, DurationHours: 1, Technology: model.TechModernLFP, Topology: model.TopologyParallelAC}
	_, err := newSim().Run(ctx, model.Inputs{Solar: []float64{1}}, strategy.New(strategy.CyclingDemo), cfg, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_EmptySeries(t *testing.T) {
	cfg := model.Configuration{PowerMW: 1, DurationHours: 1, Technology: model.TechModernLFP, Topology: model.TopologyParallelAC}
	res, err := newSim().Run(context.Background(), model.Inputs{}, strategy.New(strategy.SolarSmoothing), cfg, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Steps)
	assert.Equal(t, []float64{0.5}, res.SOC)
	assert.Zero(t, res.Metrics.EnergyEfficiency)
}

type countingSink struct {
	runs []metrics.RunSummary
}

func (c *countingSink) RecordRun(r metrics.RunSummary) error {
	c.runs = append(c.runs, r)
	return nil
}

func TestRun_CacheAndSink(t *testing.T) {
	sim := newSim()
	cache := NewCache(0)
	sink := &countingSink{}
	sim.SetCache(cache)
	sim.SetSink(sink)

	in := model.Inputs{Solar: diurnal(1, 2, 7)}
	cfg := model.Configuration{PowerMW: 1, DurationHours: 2, Technology: model.TechModernLFP, Topology: model.TopologyHybrid}
	st := strategy.New(strategy.SolarSmoothing)

	a, err := sim.Run(context.Background(), in, st, cfg, Options{})
	require.NoError(t, err)
	b, err := sim.Run(context.Background(), in, st, cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	hits, misses := cache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	require.Len(t, sink.runs, 2)
	assert.False(t, sink.runs[0].CacheHit)
	assert.True(t, sink.runs[1].CacheHit)

	// mutating a returned result leaves the cache untouched
	b.Steps[0].GridMW = 99
	c, err := sim.Run(context.Background(), in, st, cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, a.Steps[0], c.Steps[0])

	// a different configuration is a different key
	cfg.DurationHours = 3
	_, err = sim.Run(context.Background(), in, st, cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestCache_Bounded(t *testing.T) {
	c := NewCache(2)
	for k := uint64(0); k < 5; k++ {
		c.put(runKey{index: k, check: k}, &model.Result{})
	}
	assert.Equal(t, 2, c.Len())
	var nilCache *Cache
	_, ok := nilCache.get(runKey{index: 1})
	assert.False(t, ok)
	nilCache.put(runKey{index: 1}, &model.Result{})
	assert.Zero(t, nilCache.Len())
}

func TestCache_IndexCollisionMisses(t *testing.T) {
	c := NewCache(0)
	c.put(runKey{index: 7, check: 1}, &model.Result{Strategy: "stored"})

	_, ok := c.get(runKey{index: 7, check: 2})
	assert.False(t, ok)
	res, ok := c.get(runKey{index: 7, check: 1})
	require.True(t, ok)
	assert.Equal(t, "stored", res.Strategy)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestRunKey_DigestsDiffer(t *testing.T) {
	b, err := model.DefaultCatalog().Resolve(model.Configuration{PowerMW: 1, DurationHours: 2, Technology: model.TechModernLFP, Topology: model.TopologyHybrid})
	require.NoError(t, err)
	in := model.Inputs{Solar: []float64{1, 2, 3}}
	k := newRunKey("x", strategy.DefaultParams(), 6, b, DefaultOptions(), in, nil)
	assert.NotEqual(t, k.index, k.check)

	// an explicit zero SOC is a different run from the default
	zero := newRunKey("x", strategy.DefaultParams(), 6, b, Options{InitialSOC: Float(0), DtHours: 1}, in, nil)
	assert.NotEqual(t, k, zero)
	assert.Equal(t, k, newRunKey("x", strategy.DefaultParams(), 6, b, DefaultOptions(), in, nil))
}
