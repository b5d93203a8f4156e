package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts pass manager activity per pass. A nil *Metrics records
// nothing.
type Metrics struct {
	PassRuns       *prometheus.CounterVec
	PassMatches    *prometheus.CounterVec
	PassChanges    *prometheus.CounterVec
	PassErrors     *prometheus.CounterVec
	NonConvergence *prometheus.CounterVec
	PassDuration   *prometheus.HistogramVec
	FoldCache      *prometheus.CounterVec
}

// NewMetrics registers the pass metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PassRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_pass_runs_total",
			Help: "Total pass executions by pass",
		}, []string{"pass"}),
		PassMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_pass_matches_total",
			Help: "Total pattern matches by pass",
		}, []string{"pass"}),
		PassChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_pass_changes_total",
			Help: "Total graph rewrites by pass",
		}, []string{"pass"}),
		PassErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_pass_errors_total",
			Help: "Total pass failures by pass and category",
		}, []string{"pass", "category"}),
		NonConvergence: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_pass_nonconvergence_total",
			Help: "Total fixed-point runs that hit the iteration cap",
		}, []string{"pass"}),
		PassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lattice_pass_duration_seconds",
			Help:    "Pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"pass"}),
		FoldCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_fold_cache_total",
			Help: "Constant folding cache lookups by result",
		}, []string{"result"}),
	}
}

// ObservePass records one pass execution.
func (m *Metrics) ObservePass(pass string, matches, changes int, d time.Duration) {
	if m == nil {
		return
	}
	m.PassRuns.WithLabelValues(pass).Inc()
	m.PassMatches.WithLabelValues(pass).Add(float64(matches))
	m.PassChanges.WithLabelValues(pass).Add(float64(changes))
	m.PassDuration.WithLabelValues(pass).Observe(d.Seconds())
}

// ObserveError records a pass failure.
func (m *Metrics) ObserveError(pass, category string) {
	if m == nil {
		return
	}
	m.PassErrors.WithLabelValues(pass, category).Inc()
}

// ObserveNonConvergence records a fixed-point run that hit its cap.
func (m *Metrics) ObserveNonConvergence(pass string) {
	if m == nil {
		return
	}
	m.NonConvergence.WithLabelValues(pass).Inc()
}

// ObserveFoldCache adds fold cache hits and misses.
func (m *Metrics) ObserveFoldCache(hits, misses int64) {
	if m == nil {
		return
	}
	m.FoldCache.WithLabelValues("hit").Add(float64(hits))
	m.FoldCache.WithLabelValues("miss").Add(float64(misses))
}
