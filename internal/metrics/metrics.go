// Package metrics declares the prometheus collectors of fimwatch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomeClean = "clean"
	OutcomeDrift = "drift"
	OutcomeError = "error"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fimwatch_cycles_total",
		Help: "Cumulative number of monitoring cycles, by outcome.",
	}, []string{"outcome"})
	CycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fimwatch_cycle_duration_seconds",
		Help:    "Duration of monitoring cycles.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})
	Files = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fimwatch_files",
		Help: "Number of files per classification in the most recent cycle.",
	}, []string{"kind"})
	NotifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fimwatch_notify_failures_total",
		Help: "Cumulative number of alerts which could not be delivered.",
	})
	BaselineSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fimwatch_baseline_saves_total",
		Help: "Cumulative number of baselines written, by reason.",
	}, []string{"reason"})
	LastAnomalyTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fimwatch_last_anomaly_timestamp_seconds",
		Help: "Unix time of the most recent cycle which detected drift.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
