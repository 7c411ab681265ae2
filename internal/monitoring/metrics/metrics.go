// Package metrics provides the telemetry collection API for the descriptor
// module.  The pipeline records its operational events through the
// DescriptorMetrics interface so that the implementation (Prometheus, noop)
// can be swapped without touching the numeric core.
package metrics

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

// DescriptorMetrics is the telemetry contract for the descriptor pipeline.
type DescriptorMetrics interface {
	// RecordForward records a single forward evaluation.
	RecordForward(ctx context.Context, p *ForwardMetricParams)

	// RecordStatsPass records one statistics accumulation pass over a set of
	// training frames.
	RecordStatsPass(ctx context.Context, frames int, durationMs float64)

	// RecordRestore records a checkpoint restoration event.
	RecordRestore(ctx context.Context, suffix string, variables int, success bool)

	// Snapshot returns a point-in-time view of the counters, primarily for
	// tests and status endpoints.
	Snapshot() Stats
}

// ForwardMetricParams carries the data for a single forward evaluation.
type ForwardMetricParams struct {
	Kind       string  `json:"kind"`
	Natoms     int     `json:"natoms"`
	DurationMs float64 `json:"duration_ms"`
	Success    bool    `json:"success"`
}

// Stats is a point-in-time snapshot of descriptor telemetry.
type Stats struct {
	TotalForwards      int64 `json:"total_forwards"`
	SuccessfulForwards int64 `json:"successful_forwards"`
	FailedForwards     int64 `json:"failed_forwards"`
	StatsPasses        int64 `json:"stats_passes"`
	Restores           int64 `json:"restores"`
}

// ---------------------------------------------------------------------------
// Prometheus implementation
// ---------------------------------------------------------------------------

const metricsPrefix = "atomistic_descriptor_"

var defaultLatencyBuckets = []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000}

type prometheusMetrics struct {
	forwardLatency *prometheus.HistogramVec
	forwardTotal   *prometheus.CounterVec
	statsDuration  prometheus.Histogram
	statsFrames    prometheus.Counter
	restoreTotal   *prometheus.CounterVec

	totalFwd   atomic.Int64
	successFwd atomic.Int64
	failedFwd  atomic.Int64
	statsRuns  atomic.Int64
	restores   atomic.Int64
}

// NewPrometheusMetrics creates a Prometheus-backed collector and registers
// all metrics with the supplied Registerer.  A nil registerer falls back to
// prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registerer prometheus.Registerer) (DescriptorMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &prometheusMetrics{}

	m.forwardLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "forward_duration_milliseconds",
		Help:    "Histogram of descriptor forward-pass latency in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"kind"})

	m.forwardTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "forward_total",
		Help: "Total number of descriptor forward evaluations.",
	}, []string{"kind", "status"})

	m.statsDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricsPrefix + "stats_pass_duration_milliseconds",
		Help:    "Histogram of normalization-statistics pass duration in milliseconds.",
		Buckets: defaultLatencyBuckets,
	})

	m.statsFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "stats_frames_total",
		Help: "Total number of training frames consumed by statistics passes.",
	})

	m.restoreTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "checkpoint_restore_total",
		Help: "Total number of checkpoint restorations.",
	}, []string{"status"})

	collectors := []prometheus.Collector{
		m.forwardLatency,
		m.forwardTotal,
		m.statsDuration,
		m.statsFrames,
		m.restoreTotal,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *prometheusMetrics) RecordForward(_ context.Context, p *ForwardMetricParams) {
	if p == nil {
		return
	}
	status := "success"
	if !p.Success {
		status = "failure"
	}
	m.forwardLatency.WithLabelValues(p.Kind).Observe(p.DurationMs)
	m.forwardTotal.WithLabelValues(p.Kind, status).Inc()

	m.totalFwd.Add(1)
	if p.Success {
		m.successFwd.Add(1)
	} else {
		m.failedFwd.Add(1)
	}
}

func (m *prometheusMetrics) RecordStatsPass(_ context.Context, frames int, durationMs float64) {
	m.statsDuration.Observe(durationMs)
	m.statsFrames.Add(float64(frames))
	m.statsRuns.Add(1)
}

func (m *prometheusMetrics) RecordRestore(_ context.Context, _ string, _ int, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.restoreTotal.WithLabelValues(status).Inc()
	m.restores.Add(1)
}

func (m *prometheusMetrics) Snapshot() Stats {
	return Stats{
		TotalForwards:      m.totalFwd.Load(),
		SuccessfulForwards: m.successFwd.Load(),
		FailedForwards:     m.failedFwd.Load(),
		StatsPasses:        m.statsRuns.Load(),
		Restores:           m.restores.Load(),
	}
}

// ---------------------------------------------------------------------------
// Noop implementation
// ---------------------------------------------------------------------------

type noopMetrics struct{}

func (noopMetrics) RecordForward(context.Context, *ForwardMetricParams) {}
func (noopMetrics) RecordStatsPass(context.Context, int, float64)       {}
func (noopMetrics) RecordRestore(context.Context, string, int, bool)    {}
func (noopMetrics) Snapshot() Stats                                     { return Stats{} }

// NewNoopMetrics returns a DescriptorMetrics that records nothing.  It is the
// default when no collector is injected.
func NewNoopMetrics() DescriptorMetrics { return noopMetrics{} }
