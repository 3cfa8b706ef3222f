// Package metrics exposes prometheus counters and gauges for the engine.
package metrics

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/runweave/runweave/types"
)

const (
	MetricsNamespace = "runweave"
)

var Debug bool

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of engine errors",
	}, []string{
		"error",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of executed test-case runs",
	}, []string{
		"test_id",
		"status",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the most recent run per test case",
	}, []string{
		"test_id",
	})

	groupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "group_runs_total",
		Help:      "Count of suite and plan executions",
	}, []string{
		"group_id",
		"kind",
		"status",
	})
)

// RecordError counts one engine error.
func RecordError(error string) {
	if Debug {
		log.Debug("metric inc", "m", "errors_total", "error", error)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordRun counts one completed test-case run.
func RecordRun(testID string, status types.RunStatus, duration time.Duration) {
	if Debug {
		log.Debug("metric inc",
			"m", "runs_total", "test_id", testID, "status", status, "duration", duration)
	}
	runsTotal.WithLabelValues(testID, string(status)).Inc()
	runDuration.WithLabelValues(testID).Set(duration.Seconds())
}

// RecordGroup counts one completed suite or plan execution.
func RecordGroup(groupID string, kind types.ManifestKind, status types.RunStatus) {
	groupRunsTotal.WithLabelValues(groupID, string(kind), string(status)).Inc()
}
