package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	matchingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "matching",
			Name:      "runs_total",
			Help:      "Total number of matching runs by outcome.",
		},
		[]string{"trigger", "status"},
	)

	matchingRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "housing",
			Subsystem: "matching",
			Name:      "run_duration_seconds",
			Help:      "Duration of matching runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"trigger"},
	)

	matchesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "matching",
			Name:      "matches_created_total",
			Help:      "Total number of Pendiente matches created by matching runs.",
		},
	)

	beneficiaryErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "matching",
			Name:      "beneficiary_errors_total",
			Help:      "Total number of beneficiaries skipped because of an error during a run.",
		},
	)

	compatibilityScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "housing",
			Subsystem: "matching",
			Name:      "compatibility_score",
			Help:      "Distribution of computed compatibility scores.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10), // 10 to 100
		},
	)

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "matching",
			Name:      "decisions_total",
			Help:      "Total number of approve/reject decisions by result.",
		},
		[]string{"decision", "result"},
	)
)

func init() {
	Registry.MustRegister(
		matchingRuns,
		matchingRunDuration,
		matchesCreated,
		beneficiaryErrors,
		compatibilityScores,
		decisions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRun records the outcome of one matching run.
func ObserveRun(trigger, status string, created, errors int, took time.Duration) {
	matchingRuns.WithLabelValues(trigger, status).Inc()
	matchingRunDuration.WithLabelValues(trigger).Observe(took.Seconds())
	matchesCreated.Add(float64(created))
	beneficiaryErrors.Add(float64(errors))
}

func ObserveScore(score float64) {
	compatibilityScores.Observe(score)
}

// ObserveDecision records an approve/reject attempt; a nil err counts as success.
func ObserveDecision(decision string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	decisions.WithLabelValues(decision, result).Inc()
}
