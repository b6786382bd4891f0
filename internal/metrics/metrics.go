// Package metrics exposes the Prometheus collectors of the cleaning service.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "dataset_cleaner"

// Collector holds the service metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	JobsTotal         *prometheus.CounterVec
	JobsInFlight      prometheus.Gauge
	StageDuration     *prometheus.HistogramVec
	StageFaults       *prometheus.CounterVec
	ColumnErrors      *prometheus.CounterVec
	DegradedStages    *prometheus.CounterVec
	KnowledgeCalls    *prometheus.CounterVec
	KnowledgeDuration prometheus.Histogram
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "jobs_total",
			Help:      "Jobs that reached a terminal status",
		}, []string{"status"}),
		JobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently processing",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of completed stages",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		StageFaults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stage_faults_total",
			Help:      "Stage-level faults that failed a job",
		}, []string{"stage"}),
		ColumnErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "column_errors_total",
			Help:      "Column-level errors recorded in stage outcomes",
		}, []string{"stage"}),
		DegradedStages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "degraded_stages_total",
			Help:      "Stages that fell back to rule-based behaviour",
		}, []string{"stage"}),
		KnowledgeCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "knowledge_calls_total",
			Help:      "Domain knowledge service calls by result",
		}, []string{"result"}),
		KnowledgeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "knowledge_call_duration_seconds",
			Help:      "Domain knowledge service call latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// JobStarted counts a job entering processing.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.JobsInFlight.Inc()
}

// JobFinished counts a job reaching a terminal status.
func (c *Collector) JobFinished(status string) {
	if c == nil {
		return
	}
	c.JobsInFlight.Dec()
	c.JobsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records a committed stage outcome.
func (c *Collector) ObserveStage(outcome domain.StageOutcome) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(outcome.Stage).Observe(outcome.Duration.Seconds())
	if n := len(outcome.Errors); n > 0 {
		c.ColumnErrors.WithLabelValues(outcome.Stage).Add(float64(n))
	}
	if outcome.Degraded {
		c.DegradedStages.WithLabelValues(outcome.Stage).Inc()
	}
}

// StageFault counts a stage that failed its job.
func (c *Collector) StageFault(stage string) {
	if c == nil {
		return
	}
	c.StageFaults.WithLabelValues(stage).Inc()
}

// ObserveKnowledge implements knowledge.Observer.
func (c *Collector) ObserveKnowledge(result string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.KnowledgeCalls.WithLabelValues(result).Inc()
	c.KnowledgeDuration.Observe(elapsed.Seconds())
}
