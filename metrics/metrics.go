// Package metrics exposes Prometheus instrumentation for the analysis pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	remoteFailures     *prometheus.CounterVec
	extractions        *prometheus.CounterVec
	schedulerSignals   *prometheus.CounterVec
	schedulerRuns      *prometheus.CounterVec
	scansStored        *prometheus.CounterVec
}

// New registers the pipeline collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "evaluations_total",
			Help:      "Evaluations by terminal status, classifier route and verdict.",
		}, []string{"status", "route", "flagged"}),
		evaluationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "watchdog",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall clock time of one evaluation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		remoteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "remote_failures_total",
			Help:      "Remote classifier calls that fell back to local scoring.",
		}, []string{"reason"}),
		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "extractions_total",
			Help:      "Extractions by platform and contributing source.",
		}, []string{"platform", "source"}),
		schedulerSignals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "scheduler_signals_total",
			Help:      "Change signals received by the scheduler.",
		}, []string{"kind"}),
		schedulerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "scheduler_runs_total",
			Help:      "Debounced scheduler runs by outcome.",
		}, []string{"outcome"}),
		scansStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "scans_stored_total",
			Help:      "Scan records persisted, by whether evidence was archived.",
		}, []string{"archived"}),
	}
}

// ObserveEvaluation records one finished evaluation
func (m *Metrics) ObserveEvaluation(status, route string, flagged bool, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(status, route, boolLabel(flagged)).Inc()
	m.evaluationDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RemoteFailure records a remote classifier fallback
func (m *Metrics) RemoteFailure(reason string) {
	if m == nil {
		return
	}
	m.remoteFailures.WithLabelValues(reason).Inc()
}

// Extraction records which sources contributed text
func (m *Metrics) Extraction(platform string, sources []string) {
	if m == nil {
		return
	}
	if len(sources) == 0 {
		m.extractions.WithLabelValues(platform, "none").Inc()
		return
	}
	for _, s := range sources {
		m.extractions.WithLabelValues(platform, s).Inc()
	}
}

// SchedulerSignal records a received change signal
func (m *Metrics) SchedulerSignal(kind string) {
	if m == nil {
		return
	}
	m.schedulerSignals.WithLabelValues(kind).Inc()
}

// SchedulerRun records a debounced run outcome
func (m *Metrics) SchedulerRun(outcome string) {
	if m == nil {
		return
	}
	m.schedulerRuns.WithLabelValues(outcome).Inc()
}

// ScanStored records a persisted scan
func (m *Metrics) ScanStored(archived bool) {
	if m == nil {
		return
	}
	m.scansStored.WithLabelValues(boolLabel(archived)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
