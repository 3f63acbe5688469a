package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
)

// Recorder holds the prometheus collectors of the discovery engine. A nil
// Recorder records nothing.
type Recorder struct {
	entitiesGauge     *prometheus.GaugeVec
	durationHistogram *prometheus.HistogramVec
	runsCounter       *prometheus.CounterVec
	skippedCounter    *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	return &Recorder{
		entitiesGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cloudflare_discovery_entities",
				Help: "The number of entities submitted by the last successful run, per kind.",
			},
			[]string{"kind"},
		),
		durationHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cloudflare_discovery_run_duration_seconds",
				Help:    "The duration in seconds of a discovery run.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),
		runsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudflare_discovery_runs_total",
				Help: "The number of discovery runs, by outcome.",
			},
			[]string{"outcome"},
		),
		skippedCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudflare_discovery_skipped_items_total",
				Help: "The number of resources left out of a run because they failed to enrich or map.",
			},
			[]string{"kind"},
		),
	}
}

// Collectors returns every collector so the caller can register them
func (r *Recorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.entitiesGauge,
		r.durationHistogram,
		r.runsCounter,
		r.skippedCounter,
	}
}

// RecordRun records the outcome of a run. result may be nil when the run
// never started.
func (r *Recorder) RecordRun(result *RunResult, err error) {
	if r == nil {
		return
	}

	outcome := outcomeSucceeded
	if err != nil {
		outcome = outcomeFailed
	}
	r.runsCounter.WithLabelValues(outcome).Inc()

	if result == nil {
		return
	}
	r.durationHistogram.WithLabelValues(outcome).Observe(result.Duration.Seconds())

	if err != nil || result.Counts == nil {
		return
	}
	for pair := result.Counts.Oldest(); pair != nil; pair = pair.Next() {
		r.entitiesGauge.WithLabelValues(string(pair.Key)).Set(float64(pair.Value))
	}
}

// RecordSkip counts one resource left out of a run
func (r *Recorder) RecordSkip(kind string) {
	if r == nil {
		return
	}
	r.skippedCounter.WithLabelValues(kind).Inc()
}

// RecordOverlap counts a run that was not started because another was in
// progress
func (r *Recorder) RecordOverlap() {
	if r == nil {
		return
	}
	r.runsCounter.WithLabelValues(outcomeSkipped).Inc()
}
