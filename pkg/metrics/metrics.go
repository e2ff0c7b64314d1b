package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	debrisFlow = "debris_flow"

	// Pipeline metrics
	stageRunsTotal       = "stage_runs_total"
	stageDurationSeconds = "stage_duration_seconds"

	// Asset metrics
	assetTransfersTotal = "asset_transfers_total"

	// Memory metrics
	availableMemoryGB = "available_memory_gb"

	// Labels
	stageLabel     = "stage"
	stateLabel     = "state"
	directionLabel = "direction"
)

var stageRunLabels = []string{
	stageLabel,
	stateLabel,
}

var assetTransferLabels = []string{
	directionLabel,
	stateLabel,
}

/**
* Metrics definition
**/
var stageRunsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: debrisFlow,
		Name:      stageRunsTotal,
		Help:      "number of finished pipeline stage runs per stage and terminal state",
	},
	stageRunLabels,
)

var stageDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: debrisFlow,
		Name:      stageDurationSeconds,
		Help:      "wall clock seconds spent in each pipeline stage",
		Buckets:   prometheus.ExponentialBuckets(0.5, 4, 8),
	},
	[]string{stageLabel},
)

var assetTransfersTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: debrisFlow,
		Name:      assetTransfersTotal,
		Help:      "number of object store transfers per direction and terminal state",
	},
	assetTransferLabels,
)

var availableMemoryMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: debrisFlow,
		Name:      availableMemoryGB,
		Help:      "available system memory at the last batch sample",
	},
)

func IncreaseStageRunsTotalMetric(stage, state string) {
	labels := prometheus.Labels{
		stageLabel: stage,
		stateLabel: state,
	}
	stageRunsTotalMetric.With(labels).Inc()
}

func ObserveStageDurationMetric(stage string, seconds float64) {
	labels := prometheus.Labels{
		stageLabel: stage,
	}
	stageDurationMetric.With(labels).Observe(seconds)
}

func IncreaseAssetTransfersTotalMetric(direction, state string) {
	labels := prometheus.Labels{
		directionLabel: direction,
		stateLabel:     state,
	}
	assetTransfersTotalMetric.With(labels).Inc()
}

func UpdateAvailableMemoryMetric(gb float64) {
	availableMemoryMetric.Set(gb)
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(stageRunsTotalMetric)
	prometheus.MustRegister(stageDurationMetric)
	prometheus.MustRegister(assetTransfersTotalMetric)
	prometheus.MustRegister(availableMemoryMetric)
}
