// Package app wires configuration, sinks and the core engine into the
// operations exposed by the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/bessim/config"
	coremetrics "github.com/kilianp07/bessim/core/metrics"
	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/optimizer"
	"github.com/kilianp07/bessim/core/simulation"
	"github.com/kilianp07/bessim/core/validation"
	"github.com/kilianp07/bessim/infra/logger"
	"github.com/kilianp07/bessim/infra/metrics"
	"github.com/kilianp07/bessim/internal/eventbus"
	"github.com/kilianp07/bessim/pkg/series"
)

// Engine owns the long-lived objects of one CLI invocation.
type Engine struct {
	Config    *config.Config
	Catalog   model.Catalog
	Simulator *simulation.Simulator
	Validator validation.Validator
	Optimizer *optimizer.Optimizer
	Progress  *eventbus.Bus[optimizer.Progress]

	sink     coremetrics.MetricsSink
	gatherer prometheus.Gatherer
	log      logger.Logger
	stop     context.CancelFunc
}

// New builds an Engine from cfg.
func New(cfg *config.Config) (*Engine, error) {
	log := logger.New("engine", cfg.Logging)
	catalog, err := cfg.Catalog.Build()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	sim := simulation.New(catalog, logger.New("simulation", cfg.Logging))
	sim.SetSink(sink)
	if cfg.Simulation.CacheSize > 0 {
		sim.SetCache(simulation.NewCache(cfg.Simulation.CacheSize))
	}
	v := validation.Validator{Catalog: catalog, Limits: cfg.Validation}
	opt := optimizer.New(sim, v, cfg.Optimizer.Pool(), logger.New("optimizer", cfg.Logging))
	opt.SetSink(sink)
	bus := eventbus.New[optimizer.Progress](0)
	opt.SetProgress(bus)

	e := &Engine{
		Config:    cfg,
		Catalog:   catalog,
		Simulator: sim,
		Validator: v,
		Optimizer: opt,
		Progress:  bus,
		sink:      sink,
		gatherer:  prometheus.DefaultGatherer,
		log:       log,
	}
	ctx, stop := context.WithCancel(context.Background())
	e.stop = stop
	if addr := cfg.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, e.gatherer, log); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}
	return e, nil
}

// Validate checks the configured battery.
func (e *Engine) Validate() validation.Report {
	return e.Validator.Validate(e.Config.Battery)
}

// LoadSeries reads path, falling back to the configured input path.
func (e *Engine) LoadSeries(path string) (*series.Series, error) {
	if path == "" {
		path = e.Config.Input.Path
	}
	if path == "" {
		return nil, model.Configf("input.path", "no input series given")
	}
	return series.ReadFile(path)
}

// Simulate validates the battery and runs the configured strategy, or the
// request column of s when dynamic is set.
func (e *Engine) Simulate(ctx context.Context, s *series.Series, dynamic bool) (*model.Result, error) {
	report := e.Validate()
	for _, w := range report.Warnings {
		e.log.Warnf("battery: %s", w)
	}
	if !report.Valid {
		return nil, report.Err
	}
	opts := e.Config.Simulation.Options
	if dynamic {
		if s.Requests == nil {
			return nil, model.Configf(series.ColRequest, "dynamic control needs a %s column", series.ColRequest)
		}
		return e.Simulator.RunDynamic(ctx, s.Requests, s.Inputs.Solar, e.Config.Battery, opts)
	}
	st, err := e.Config.Simulation.StrategySpec()
	if err != nil {
		return nil, err
	}
	return e.Simulator.Run(ctx, s.Inputs, st, e.Config.Battery, opts)
}

// Optimize runs the configured sizing search over s.
func (e *Engine) Optimize(ctx context.Context, s *series.Series) (*optimizer.Result, error) {
	st, err := e.Config.Simulation.StrategySpec()
	if err != nil {
		return nil, err
	}
	search := e.Config.Optimizer.Search(e.Config.Battery, e.Config.Simulation.Options)
	sub := e.Progress.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		logProgress(ctx, sub, e.log)
	}()
	res, err := e.Optimizer.Optimize(ctx, s.Inputs, st, search)
	e.Progress.Unsubscribe(sub)
	<-done
	return res, err
}

// Close stops the metrics server and writes the exposition file if one is
// configured.
func (e *Engine) Close() error {
	e.stop()
	e.Progress.Close()
	var errs []error
	if closer, ok := e.sink.(interface{ Close() }); ok {
		closer.Close()
	}
	if path := e.Config.Metrics.ExpositionPath; path != "" {
		if err := metrics.WriteExpositionFile(path, e.gatherer); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}
