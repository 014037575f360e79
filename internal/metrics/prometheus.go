package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exposes run counters for scraping. Gauges hold the last
// run's values; counters accumulate across runs served by this process.
type PrometheusRecorder struct {
	lastRun  *prometheus.GaugeVec
	totals   *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewPrometheusRecorder registers the run collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleetcare",
			Name:      "last_run_items",
			Help:      "Counters reported by the most recent maintenance run.",
		}, []string{"counter"}),
		totals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetcare",
			Name:      "run_items_total",
			Help:      "Counters accumulated across maintenance runs.",
		}, []string{"counter"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetcare",
			Name:      "runs_total",
			Help:      "Maintenance runs by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fleetcare",
			Name:      "run_duration_seconds",
			Help:      "Wall time of maintenance runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	for _, c := range []prometheus.Collector{r.lastRun, r.totals, r.runs, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RecordRun updates the collectors.
func (r *PrometheusRecorder) RecordRun(_ context.Context, counts map[string]int, duration time.Duration, failed bool) {
	for name, v := range counts {
		r.lastRun.WithLabelValues(name).Set(float64(v))
		r.totals.WithLabelValues(name).Add(float64(v))
	}
	result := "success"
	if failed {
		result = "failed"
	}
	r.runs.WithLabelValues(result).Inc()
	r.duration.Observe(duration.Seconds())
}
