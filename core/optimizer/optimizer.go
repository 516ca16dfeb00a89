// Package optimizer grid-searches battery sizings by running the simulator
// for every candidate and ranking the results against an objective.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/bessim/core/logger"
	"github.com/kilianp07/bessim/core/metrics"
	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/simulation"
	"github.com/kilianp07/bessim/core/strategy"
	"github.com/kilianp07/bessim/core/validation"
	"github.com/kilianp07/bessim/internal/eventbus"
)

// Config tunes the optimizer.
type Config struct {
	// Workers bounds concurrent candidate evaluations. Zero selects
	// runtime.NumCPU().
	Workers int `json:"workers"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return model.Configf("optimizer.workers", "must not be negative, got %d", c.Workers)
	}
	return nil
}

// Optimizer evaluates candidates with a shared simulator. Candidates share
// no mutable state besides the simulator's optional cache and sinks.
type Optimizer struct {
	sim       *simulation.Simulator
	validator validation.Validator
	log       logger.Logger
	workers   int
	sink      metrics.MetricsSink
	progress  *eventbus.Bus[Progress]
}

// New builds an optimizer. A nil logger disables logging.
func New(sim *simulation.Simulator, v validation.Validator, cfg Config, log logger.Logger) *Optimizer {
	cfg.SetDefaults()
	return &Optimizer{
		sim:       sim,
		validator: v,
		log:       logger.OrNop(log),
		workers:   cfg.Workers,
		sink:      metrics.NopSink{},
	}
}

// SetSink attaches a sink. Candidate and search events are recorded when
// the sink implements metrics.CandidateRecorder or metrics.SearchRecorder.
func (o *Optimizer) SetSink(sink metrics.MetricsSink) {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	o.sink = sink
}

// SetProgress publishes a Progress event per evaluated candidate on bus.
func (o *Optimizer) SetProgress(bus *eventbus.Bus[Progress]) { o.progress = bus }

// Optimize runs st for every candidate of search. A search where no
// candidate is valid returns StatusExhausted and a nil Best without error.
// Errors are limited to malformed searches or inputs, cancellation and
// physical inconsistencies.
func (o *Optimizer) Optimize(ctx context.Context, in model.Inputs, st strategy.Strategy, search Search) (*Result, error) {
	start := time.Now()
	grid, err := search.Grid()
	if err != nil {
		return nil, fmt.Errorf("expand search: %w", err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	res := &Result{
		SearchID:   uuid.New(),
		Strategy:   st.Kind.String(),
		Objective:  search.Objective,
		Candidates: make([]Candidate, len(grid)),
	}
	o.log.Infof("search %s: %d candidates for %s, objective %s", res.SearchID, len(grid), res.Strategy, res.Objective)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, cfg := range grid {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := o.evaluate(gctx, in, st, cfg, search)
			if err != nil {
				return err
			}
			res.Candidates[i] = c
			o.recordCandidate(res, c)
			o.progress.Publish(Progress{SearchID: res.SearchID, Done: int(done.Add(1)), Total: len(grid), Candidate: c})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rank(res)
	res.Elapsed = time.Since(start)
	o.recordSearch(res)
	if res.Status == StatusExhausted {
		o.log.Warnf("search %s exhausted: %s", res.SearchID, res.Reason)
	} else {
		o.log.Infof("search %s: best %.4g MW x %.4g h, %s=%.6g", res.SearchID,
			res.Best.Config.PowerMW, res.Best.Config.DurationHours, res.Objective, res.ObjectiveValue)
	}
	return res, nil
}

func (o *Optimizer) evaluate(ctx context.Context, in model.Inputs, st strategy.Strategy, cfg model.Configuration, search Search) (Candidate, error) {
	c := Candidate{Config: cfg}
	report := o.validator.Validate(cfg)
	c.Warnings = report.Warnings
	if !report.Valid {
		c.Reason = report.Err.Error()
		return c, nil
	}
	run, err := o.sim.Run(ctx, in, st, cfg, search.Options)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrConfiguration):
		c.Reason = err.Error()
		return c, nil
	default:
		return c, fmt.Errorf("candidate %.4g MW x %.4g h: %w", cfg.PowerMW, cfg.DurationHours, err)
	}
	c.Valid = true
	c.Metrics = run.Metrics
	c.Score = search.Objective.Score(run.Metrics)
	return c, nil
}

// rank picks the best valid candidate. Scores are compared exactly, so a
// larger search space never yields a worse best score. Equal scores prefer
// the smaller energy capacity, then the smaller power rating.
func rank(res *Result) {
	var best *Candidate
	for i := range res.Candidates {
		c := &res.Candidates[i]
		if !c.Valid {
			continue
		}
		if best == nil || outranks(res.Objective, c, best) {
			best = c
		}
	}
	if best == nil {
		res.Status = StatusExhausted
		res.Reason = exhaustedReason(res.Candidates)
		return
	}
	cp := *best
	res.Best = &cp
	res.ObjectiveValue = best.Score
	res.Status = StatusOK
}

func outranks(obj Objective, a, b *Candidate) bool {
	if a.Score != b.Score {
		return obj.better(a.Score, b.Score)
	}
	ea, eb := a.Config.EnergyMWh(), b.Config.EnergyMWh()
	if ea != eb {
		return ea < eb
	}
	return a.Config.PowerMW < b.Config.PowerMW
}

func exhaustedReason(cands []Candidate) string {
	if len(cands) == 0 {
		return "search space is empty"
	}
	return fmt.Sprintf("none of %d candidates is valid; first rejection: %s", len(cands), cands[0].Reason)
}

func (o *Optimizer) recordCandidate(res *Result, c Candidate) {
	rec, ok := o.sink.(metrics.CandidateRecorder)
	if !ok {
		return
	}
	err := rec.RecordCandidate(metrics.CandidateEvent{
		SearchID:  res.SearchID.String(),
		Config:    c.Config,
		Objective: string(res.Objective),
		Score:     c.Score,
		Valid:     c.Valid,
		Reason:    c.Reason,
		Time:      time.Now(),
	})
	if err != nil {
		o.log.Warnf("record candidate: %v", err)
	}
}

func (o *Optimizer) recordSearch(res *Result) {
	rec, ok := o.sink.(metrics.SearchRecorder)
	if !ok {
		return
	}
	err := rec.RecordSearch(metrics.SearchEvent{
		SearchID:   res.SearchID.String(),
		Strategy:   res.Strategy,
		Objective:  string(res.Objective),
		Candidates: len(res.Candidates),
		Rejected:   res.Rejected(),
		BestScore:  res.ObjectiveValue,
		Status:     string(res.Status),
		Elapsed:    res.Elapsed,
		Time:       time.Now(),
	})
	if err != nil {
		o.log.Warnf("record search: %v", err)
	}
}
