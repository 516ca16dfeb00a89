// Package simulation drives the timestep loop: it asks a dispatch policy for
// a power request, applies it through the battery physical model and folds
// the outcome into a Result.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/bessim/core/battery"
	"github.com/kilianp07/bessim/core/logger"
	"github.com/kilianp07/bessim/core/metrics"
	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/strategy"
)

// DynamicControl names runs driven by explicit request sequences.
const DynamicControl = "dynamic_control"

// cancelCheckEvery is the number of steps between context checks.
const cancelCheckEvery = 4096

// Simulator runs simulations against an explicit catalog. It holds no
// per-run state and may be shared by concurrent callers.
type Simulator struct {
	catalog model.Catalog
	log     logger.Logger
	sink    metrics.MetricsSink
	cache   *Cache
}

// New returns a Simulator using catalog for technology lookups. A nil
// logger disables logging.
func New(catalog model.Catalog, log logger.Logger) *Simulator {
	return &Simulator{catalog: catalog, log: logger.OrNop(log), sink: metrics.NopSink{}}
}

// SetSink attaches a metrics sink. Sink errors are logged, never returned.
func (s *Simulator) SetSink(sink metrics.MetricsSink) {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	s.sink = sink
}

// SetCache attaches a result cache. A nil cache disables caching.
func (s *Simulator) SetCache(c *Cache) { s.cache = c }

// Catalog returns the catalog used by the simulator.
func (s *Simulator) Catalog() model.Catalog { return s.catalog }

// Run simulates in under strategy st for configuration cfg. Configuration
// and input problems are reported before any step is simulated.
func (s *Simulator) Run(ctx context.Context, in model.Inputs, st strategy.Strategy, cfg model.Configuration, opts Options) (*model.Result, error) {
	opts = opts.withDefaults()
	b, err := s.prepare(cfg, opts)
	if err != nil {
		return nil, err
	}
	policy, err := strategy.Bind(st, in, b, strategy.Env{DtHours: opts.DtHours, StartHour: opts.StartHour})
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", st.Kind, err)
	}
	var key runKey
	if s.cache != nil {
		key = newRunKey(st.Kind.String(), policy.Params(), policy.StartHour(), b, opts, in, nil)
	}
	return s.execute(ctx, st.Kind.String(), key, b, in.Solar, opts, policy.Request)
}

// RunDynamic applies an explicit request sequence, bypassing the strategy
// layer. solar may be nil, in which case no generation is assumed. Callers
// chaining calls pass Result.FinalSOC() as the next InitialSOC.
func (s *Simulator) RunDynamic(ctx context.Context, requests, solar []float64, cfg model.Configuration, opts Options) (*model.Result, error) {
	opts = opts.withDefaults()
	b, err := s.prepare(cfg, opts)
	if err != nil {
		return nil, err
	}
	for i, r := range requests {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, model.Configf("requests", "value at index %d is not finite", i)
		}
	}
	if solar == nil {
		solar = make([]float64, len(requests))
	}
	in := model.Inputs{Solar: solar}
	if len(solar) != len(requests) {
		return nil, model.Configf("solar_mw", "length %d does not match requests length %d", len(solar), len(requests))
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var key runKey
	if s.cache != nil {
		key = newRunKey(DynamicControl, strategy.Params{}, 0, b, opts, in, requests)
	}
	return s.execute(ctx, DynamicControl, key, b, solar, opts, func(i int, _ float64) float64 {
		return requests[i]
	})
}

func (s *Simulator) prepare(cfg model.Configuration, opts Options) (model.Battery, error) {
	b, err := s.catalog.Resolve(cfg)
	if err != nil {
		return model.Battery{}, fmt.Errorf("resolve configuration: %w", err)
	}
	if err := opts.validate(b); err != nil {
		return model.Battery{}, err
	}
	return b, nil
}

func (s *Simulator) execute(ctx context.Context, name string, key runKey, b model.Battery, solar []float64, opts Options, request func(int, float64) float64) (*model.Result, error) {
	start := time.Now()
	if res, ok := s.cache.get(key); ok {
		s.record(name, b.Config, res, time.Since(start), true)
		return res, nil
	}
	res, err := simulate(ctx, b, solar, opts, request)
	if err != nil {
		var ie *model.InconsistencyError
		if errors.As(err, &ie) {
			s.log.Errorf("%s: %v", name, err)
		}
		return nil, err
	}
	res.Strategy = name
	s.cache.put(key, res)
	s.record(name, b.Config, res, time.Since(start), false)
	return res, nil
}

func (s *Simulator) record(name string, cfg model.Configuration, res *model.Result, elapsed time.Duration, hit bool) {
	s.log.Debugw("simulation finished", map[string]any{
		"strategy":          name,
		"power_mw":          cfg.PowerMW,
		"duration_hours":    cfg.DurationHours,
		"steps":             len(res.Steps),
		"energy_efficiency": res.Metrics.EnergyEfficiency,
		"curtailment_ratio": res.Metrics.CurtailmentRatio,
		"cache_hit":         hit,
	})
	err := s.sink.RecordRun(metrics.RunSummary{
		Strategy: name,
		Config:   cfg,
		Steps:    len(res.Steps),
		Metrics:  res.Metrics,
		Elapsed:  elapsed,
		CacheHit: hit,
		Time:     time.Now(),
	})
	if err != nil {
		s.log.Warnf("record run: %v", err)
	}
}

// simulate is the sequential fold over time shared by both entry points.
func simulate(ctx context.Context, b model.Battery, solar []float64, opts Options, request func(int, float64) float64) (*model.Result, error) {
	dt := opts.DtHours
	limit := b.Config.ExportLimitMW
	st := model.State{SOC: opts.SOC()}
	steps := make([]model.Step, len(solar))
	soc := make([]float64, len(solar)+1)
	soc[0] = st.SOC
	var stored, removed float64

	for i, pv := range solar {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		req := request(i, st.SOC)
		cmd := req
		if limit > 0 && cmd > 0 {
			cmd = math.Min(cmd, math.Max(0, limit-pv))
		}
		tr, err := battery.Apply(cmd, st.SOC, b, dt)
		if err != nil {
			var ie *model.InconsistencyError
			if errors.As(err, &ie) {
				ie.Step = i
			}
			return nil, err
		}
		grid := pv + tr.BatteryMW
		curtailed := 0.0
		if limit > 0 && grid > limit {
			curtailed = grid - limit
			grid = limit
		}
		steps[i] = model.Step{
			SolarMW:     pv,
			RequestedMW: req,
			BatteryMW:   tr.BatteryMW,
			GridMW:      grid,
			LossMW:      tr.LossMW,
			CurtailedMW: curtailed,
			SOC:         tr.SOC,
		}

		st.SOC = tr.SOC
		st.LossMWh += tr.LossMW * dt
		if tr.BatteryMW > 0 {
			st.DischargedMWh += tr.BatteryMW * dt
		} else {
			st.ChargedMWh -= tr.BatteryMW * dt
		}
		st.Cycles += (tr.StoredMWh + tr.RemovedMWh) / (2 * b.EnergyMWh())
		stored += tr.StoredMWh
		removed += tr.RemovedMWh
		soc[i+1] = st.SOC
	}

	res := &model.Result{DtHours: dt, Steps: steps, SOC: soc}
	res.Metrics = summarize(steps, soc, st, stored, removed, dt)
	if err := checkResult(res, b); err != nil {
		return nil, err
	}
	return res, nil
}
