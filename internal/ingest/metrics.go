package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	fetchAttempts *prometheus.CounterVec
	vettingScore  prometheus.Histogram
	runs          *prometheus.CounterVec
	leads         *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in binaries and a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		fetchAttempts: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadfinder_fetch_attempts_total",
			Help: "Fetch attempts by outcome (ok, bad_status, error).",
		}, []string{"outcome"}),
		vettingScore: auto.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadfinder_vetting_score",
			Help:    "Wealth-marker score of vetted websites.",
			Buckets: []float64{-10, 0, 20, 30, 40, 50, 70, 90},
		}),
		runs: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadfinder_runs_total",
			Help: "Pipeline runs by listing source (maps, places, none).",
		}, []string{"source"}),
		leads: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadfinder_leads_total",
			Help: "Assembled leads by lead type and estimated budget.",
		}, []string{"lead_type", "budget"}),
		runDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadfinder_run_duration_seconds",
			Help:    "Wall time of a full pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

func (m *Metrics) fetchAttempt(outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeVetting(score int) {
	if m == nil {
		return
	}
	m.vettingScore.Observe(float64(score))
}

func (m *Metrics) runFinished(source string, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(source).Inc()
	m.runDuration.Observe(seconds)
}

func (m *Metrics) leadEmitted(l Lead) {
	if m == nil {
		return
	}
	m.leads.WithLabelValues(string(l.LeadType), string(l.EstimatedBudget)).Inc()
}
