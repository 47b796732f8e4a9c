// Package metrics exposes Prometheus counters for trips and runs on a
// private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveRuns prometheus.Gauge

	TripsCreated  prometheus.Counter
	RunsAccepted  prometheus.Counter
	RunsCompleted *prometheus.CounterVec // arrived label: true|false
	Arrivals      prometheus.Counter

	Samples      prometheus.Counter
	StreamErrors prometheus.Counter

	Rejected *prometheus.CounterVec // reason label: precondition|no_candidates|not_due|confirm|validation

	RecommendDuration prometheus.Histogram
	CandidatesServed  prometheus.Histogram

	NATSConnected prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "escape_active_runs",
			Help: "Runs currently between acceptance and completion.",
		}),
		TripsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escape_trips_created_total",
			Help: "Total trips created.",
		}),
		RunsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escape_runs_accepted_total",
			Help: "Total candidates accepted.",
		}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escape_runs_completed_total",
			Help: "Total runs completed, by whether arrival was observed.",
		}, []string{"arrived"}),
		Arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escape_arrivals_total",
			Help: "Total geofence arrivals latched.",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escape_position_samples_total",
			Help: "Total position samples folded into running trips.",
		}),
		StreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escape_position_stream_errors_total",
			Help: "Total position stream faults.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escape_transitions_rejected_total",
			Help: "Total rejected trip operations, by reason.",
		}, []string{"reason"}),
		RecommendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "escape_recommend_duration_seconds",
			Help:    "Time to load the pool and rank candidates.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		CandidatesServed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "escape_candidates_served",
			Help:    "Candidates returned per successful prep.",
			Buckets: prometheus.LinearBuckets(1, 1, 5),
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "escape_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.ActiveRuns,
		c.TripsCreated, c.RunsAccepted, c.RunsCompleted, c.Arrivals,
		c.Samples, c.StreamErrors,
		c.Rejected,
		c.RecommendDuration, c.CandidatesServed,
		c.NATSConnected,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// ObserveRecommend records one ranking pass.
func (c *Collector) ObserveRecommend(d time.Duration, candidates int) {
	c.RecommendDuration.Observe(d.Seconds())
	if candidates > 0 {
		c.CandidatesServed.Observe(float64(candidates))
	}
}

// RunCompleted records a completion.
func (c *Collector) RunCompleted(arrived bool) {
	label := "false"
	if arrived {
		label = "true"
	}
	c.RunsCompleted.WithLabelValues(label).Inc()
	c.ActiveRuns.Dec()
}

// Reject counts a refused operation.
func (c *Collector) Reject(reason string) {
	c.Rejected.WithLabelValues(reason).Inc()
}

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}
