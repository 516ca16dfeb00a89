package metrics

import "github.com/kilianp07/bessim/core/factory"

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink creates a MetricsSink from the provided configuration.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]MetricsSink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}

// MultiSink fans out records to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the summary to all sinks, returning the first error encountered.
func (m *MultiSink) RecordRun(run RunSummary) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(run); err != nil {
			return err
		}
	}
	return nil
}

// RecordCandidate forwards candidate events to sinks supporting them.
func (m *MultiSink) RecordCandidate(ev CandidateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(CandidateRecorder); ok {
			if err := rec.RecordCandidate(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSearch forwards search summaries to sinks supporting them.
func (m *MultiSink) RecordSearch(ev SearchEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SearchRecorder); ok {
			if err := rec.RecordSearch(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
