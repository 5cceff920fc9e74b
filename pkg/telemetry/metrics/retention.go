package metrics

import (
	"archival-hq/keeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RetentionMetrics tracks retention enforcement.
//
// Metrics:
//   - keeper_archive_retention_sweeps_total: sweeps by mode
//   - keeper_archive_retention_deletions_total: deletions by entity type and outcome
type RetentionMetrics struct {
	sweepsTotal    *prometheus.CounterVec
	deletionsTotal *prometheus.CounterVec
}

// NewRetentionMetrics creates and registers retention metrics with the
// provided registry.
func NewRetentionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RetentionMetrics {
	rm := &RetentionMetrics{
		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_sweeps_total",
				Help:      "Total number of retention sweeps by mode",
			},
			[]string{"mode"},
		),

		deletionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_deletions_total",
				Help:      "Total number of retention deletion attempts by outcome",
			},
			[]string{"entity_type", "outcome"},
		),
	}

	registry.MustRegister(rm.sweepsTotal, rm.deletionsTotal)

	return rm
}
