// Package metrics exposes Prometheus collectors for refresh cycles. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rawrsheets"

// Cycle outcomes used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder holds the refresh collectors.
type Recorder struct {
	cycles      *prometheus.CounterVec
	skipped     prometheus.Counter
	duration    prometheus.Histogram
	lastRefresh prometheus.Gauge
	entries     prometheus.Gauge
}

// NewRecorder registers the collectors with reg. When reg is nil the
// collectors are created but not registered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles run, by result.",
		}, []string{"result"}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_skipped_total",
			Help:      "Due-checks that found the cache fresh and did not fetch.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of refresh cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lastRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		entries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_entries",
			Help:      "Entries in the last committed dataset.",
		}),
	}
}

// Skipped records a due-check that did not fetch.
func (r *Recorder) Skipped() {
	if r == nil {
		return
	}
	r.skipped.Inc()
}

// Succeeded records a committed cycle.
func (r *Recorder) Succeeded(took time.Duration, at time.Time, entries int) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(ResultSuccess).Inc()
	r.duration.Observe(took.Seconds())
	r.lastRefresh.Set(float64(at.UnixMilli()) / 1000)
	r.entries.Set(float64(entries))
}

// Failed records an aborted cycle.
func (r *Recorder) Failed(took time.Duration) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(ResultFailure).Inc()
	r.duration.Observe(took.Seconds())
}
