package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/bessim/core/logger"
	coremetrics "github.com/kilianp07/bessim/core/metrics"
	"github.com/kilianp07/bessim/core/model"
)

// InfluxConfig locates the InfluxDB bucket receiving run telemetry.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes run summaries and optimizer events to InfluxDB using
// the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given endpoint. A nil logger
// disables logging.
func NewInfluxSink(cfg InfluxConfig, log logger.Logger) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.OrNop(log),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig, log logger.Logger) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordRun writes one simulation_run point.
func (s *InfluxSink) RecordRun(r coremetrics.RunSummary) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m := r.Metrics
	p := configTags(write.NewPointWithMeasurement("simulation_run"), r.Config).
		AddTag("strategy", r.Strategy).
		AddTag("cache_hit", strconv.FormatBool(r.CacheHit)).
		AddField("steps", r.Steps).
		AddField("energy_efficiency", round6(m.EnergyEfficiency)).
		AddField("round_trip_efficiency", round6(m.RoundTripEfficiency)).
		AddField("curtailment_ratio", round6(m.CurtailmentRatio)).
		AddField("total_losses_mwh", round6(m.TotalLossesMWh)).
		AddField("total_cycles", round6(m.TotalCycles)).
		AddField("final_soc", round6(m.FinalSOC)).
		AddField("elapsed_ms", round6(r.Elapsed.Seconds()*1000)).
		SetTime(r.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCandidate writes one optimizer_candidate point.
func (s *InfluxSink) RecordCandidate(ev coremetrics.CandidateEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := configTags(write.NewPointWithMeasurement("optimizer_candidate"), ev.Config).
		AddTag("search_id", ev.SearchID).
		AddTag("objective", ev.Objective).
		AddTag("valid", strconv.FormatBool(ev.Valid)).
		AddField("score", round6(ev.Score))
	if ev.Reason != "" {
		p = p.AddField("reason", ev.Reason)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(ev.Time))
}

// RecordSearch writes one optimizer_search point.
func (s *InfluxSink) RecordSearch(ev coremetrics.SearchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("optimizer_search").
		AddTag("search_id", ev.SearchID).
		AddTag("strategy", ev.Strategy).
		AddTag("objective", ev.Objective).
		AddTag("status", ev.Status).
		AddField("candidates", ev.Candidates).
		AddField("rejected", ev.Rejected).
		AddField("best_score", round6(ev.BestScore)).
		AddField("elapsed_ms", round6(ev.Elapsed.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func configTags(p *write.Point, c model.Configuration) *write.Point {
	return p.AddTag("technology", c.Technology).
		AddTag("topology", c.Topology).
		AddField("power_mw", round6(c.PowerMW)).
		AddField("duration_hours", round6(c.DurationHours))
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
