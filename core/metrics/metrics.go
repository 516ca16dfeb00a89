package metrics

import (
	"time"

	"github.com/kilianp07/bessim/core/model"
)

// RunSummary describes one completed simulation run.
type RunSummary struct {
	Strategy string
	Config   model.Configuration
	Steps    int
	Metrics  model.Metrics
	Elapsed  time.Duration
	CacheHit bool
	Time     time.Time
}

// MetricsSink records simulation runs for observability purposes.
type MetricsSink interface {
	RecordRun(run RunSummary) error
}

// CandidateEvent captures the evaluation of one optimizer candidate.
type CandidateEvent struct {
	SearchID  string
	Config    model.Configuration
	Objective string
	Score     float64
	Valid     bool
	Reason    string
	Time      time.Time
}

// CandidateRecorder records optimizer candidate evaluations.
type CandidateRecorder interface {
	RecordCandidate(ev CandidateEvent) error
}

// SearchEvent summarises a finished optimizer search.
type SearchEvent struct {
	SearchID   string
	Strategy   string
	Objective  string
	Candidates int
	Rejected   int
	BestScore  float64
	Status     string
	Elapsed    time.Duration
	Time       time.Time
}

// SearchRecorder records optimizer search summaries.
type SearchRecorder interface {
	RecordSearch(ev SearchEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunSummary) error           { return nil }
func (NopSink) RecordCandidate(CandidateEvent) error { return nil }
func (NopSink) RecordSearch(SearchEvent) error       { return nil }
