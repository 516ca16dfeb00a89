package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/bessim/core/metrics"
	"github.com/kilianp07/bessim/core/optimizer"
)

// ratioBuckets spans the [0,1] range of efficiency-like metrics.
var ratioBuckets = prometheus.LinearBuckets(0, 0.1, 11)

// PromSink records simulation and optimizer activity in Prometheus metrics.
type PromSink struct {
	runs        *prometheus.CounterVec
	runSeconds  *prometheus.HistogramVec
	efficiency  *prometheus.HistogramVec
	curtailment *prometheus.HistogramVec
	cycles      *prometheus.HistogramVec
	candidates  *prometheus.CounterVec
	searches    *prometheus.CounterVec
	bestScore   *prometheus.GaugeVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bess_simulation_runs_total",
			Help: "Completed simulation runs",
		}, []string{"strategy", "cache_hit"}),
		runSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bess_simulation_duration_seconds",
			Help:    "Wall time of a simulation run",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"strategy"}),
		efficiency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bess_simulation_energy_efficiency",
			Help:    "Exported energy over solar energy per run",
			Buckets: ratioBuckets,
		}, []string{"strategy"}),
		curtailment: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bess_simulation_curtailment_ratio",
			Help:    "Curtailed energy over solar energy per run",
			Buckets: ratioBuckets,
		}, []string{"strategy"}),
		cycles: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bess_simulation_cycles",
			Help:    "Full equivalent cycles per run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"strategy"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bess_optimizer_candidates_total",
			Help: "Evaluated optimizer candidates",
		}, []string{"objective", "valid"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bess_optimizer_searches_total",
			Help: "Finished optimizer searches",
		}, []string{"strategy", "objective", "status"}),
		bestScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bess_optimizer_best_score",
			Help: "Objective value of the last successful search",
		}, []string{"strategy", "objective"}),
	}
	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.runSeconds, err = register(reg, s.runSeconds); err != nil {
		return nil, err
	}
	if s.efficiency, err = register(reg, s.efficiency); err != nil {
		return nil, err
	}
	if s.curtailment, err = register(reg, s.curtailment); err != nil {
		return nil, err
	}
	if s.cycles, err = register(reg, s.cycles); err != nil {
		return nil, err
	}
	if s.candidates, err = register(reg, s.candidates); err != nil {
		return nil, err
	}
	if s.searches, err = register(reg, s.searches); err != nil {
		return nil, err
	}
	if s.bestScore, err = register(reg, s.bestScore); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRun updates the run counters and distributions.
func (s *PromSink) RecordRun(r coremetrics.RunSummary) error {
	s.runs.WithLabelValues(r.Strategy, strconv.FormatBool(r.CacheHit)).Inc()
	if r.CacheHit {
		return nil
	}
	s.runSeconds.WithLabelValues(r.Strategy).Observe(r.Elapsed.Seconds())
	s.efficiency.WithLabelValues(r.Strategy).Observe(r.Metrics.EnergyEfficiency)
	s.curtailment.WithLabelValues(r.Strategy).Observe(r.Metrics.CurtailmentRatio)
	s.cycles.WithLabelValues(r.Strategy).Observe(r.Metrics.TotalCycles)
	return nil
}

// RecordCandidate counts an optimizer candidate.
func (s *PromSink) RecordCandidate(ev coremetrics.CandidateEvent) error {
	s.candidates.WithLabelValues(ev.Objective, strconv.FormatBool(ev.Valid)).Inc()
	return nil
}

// RecordSearch counts a finished search and exposes its best score.
func (s *PromSink) RecordSearch(ev coremetrics.SearchEvent) error {
	s.searches.WithLabelValues(ev.Strategy, ev.Objective, ev.Status).Inc()
	if ev.Status == string(optimizer.StatusOK) {
		s.bestScore.WithLabelValues(ev.Strategy, ev.Objective).Set(ev.BestScore)
	}
	return nil
}
