// internal/metrics/prometheus.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hostwatch/internal/database"
)

// Prometheus metrics
var (
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostwatch_sweep_duration_seconds",
			Help:    "Time spent running a full evaluation sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_sweeps_total",
			Help: "Total number of evaluation sweeps run",
		},
		[]string{"result"},
	)

	CheckEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_check_evaluations_total",
			Help: "Check evaluations by kind and outcome",
		},
		[]string{"check", "outcome"},
	)

	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_alert_transitions_total",
			Help: "Alert state transitions produced by the sweep",
		},
		[]string{"check", "transition"},
	)

	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostwatch_active_alerts",
			Help: "Alerts currently open or acknowledged",
		},
	)

	ActiveHosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostwatch_active_hosts_total",
			Help: "Number of active hosts being monitored",
		},
	)

	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_readings_ingested_total",
			Help: "Metric readings accepted from agents",
		},
		[]string{"result"},
	)
)

type Collector struct {
	store database.Store
}

func NewCollector(store database.Store) *Collector {
	return &Collector{store: store}
}

func (c *Collector) RecordSweep(duration time.Duration, failed bool) {
	SweepDuration.Observe(duration.Seconds())
	result := "ok"
	if failed {
		result = "error"
	}
	SweepsTotal.WithLabelValues(result).Inc()
}

// RecordEvaluation outcomes: alerting, normal, no_data, skipped, error.
func (c *Collector) RecordEvaluation(check, outcome string) {
	CheckEvaluations.WithLabelValues(check, outcome).Inc()
}

func (c *Collector) RecordTransition(check, transition string) {
	AlertTransitions.WithLabelValues(check, transition).Inc()
}

func (c *Collector) RecordIngestion(ok bool) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	ReadingsIngested.WithLabelValues(result).Inc()
}

// UpdateSystemMetrics refreshes the gauges from store state.
func (c *Collector) UpdateSystemMetrics(ctx context.Context) error {
	stats, err := c.store.GetStats(ctx)
	if err != nil {
		return err
	}

	ActiveHosts.Set(float64(stats.ActiveHosts))
	ActiveAlerts.Set(float64(stats.OpenAlerts + stats.AckedAlerts))

	return nil
}
